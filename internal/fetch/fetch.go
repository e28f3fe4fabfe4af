// Package fetch downloads pages over plain HTTP for static inspection, with
// per-domain throttling.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"

	"searchbot/internal/config"
	"searchbot/internal/logging"
	"searchbot/internal/page"
)

// ErrCircuitOpen is returned while a domain is refusing requests after
// repeated failures.
var ErrCircuitOpen = errors.New("circuit breaker open for domain")

// Fetcher retrieves HTML documents as read-only pages.
type Fetcher struct {
	http    *resty.Client
	limiter *RateLimiter
	logger  logging.Logger
}

// New creates a fetcher. userAgent is sent with every request when set.
func New(cfg config.FetchConfig, userAgent string, logger logging.Logger) *Fetcher {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	logger = logger.WithField("component", "fetch")

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8").
		SetHeader("Accept-Language", "en-US,en;q=0.9")
	if userAgent != "" {
		client.SetHeader("User-Agent", userAgent)
	}

	return &Fetcher{
		http:    client,
		limiter: NewRateLimiter(cfg, logger),
		logger:  logger,
	}
}

// Limiter exposes the per-domain limiter.
func (f *Fetcher) Limiter() *RateLimiter {
	return f.limiter
}

// Fetch downloads rawURL and parses it. The returned page reports the URL
// after redirects.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*page.Snapshot, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return nil, fmt.Errorf("invalid URL %q", rawURL)
	}
	domain := strings.ToLower(u.Hostname())

	if err := f.limiter.Wait(ctx, domain); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}

	resp, err := f.http.R().SetContext(ctx).Get(rawURL)
	if err != nil {
		f.limiter.RecordFailure(domain, err)
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	if !resp.IsSuccess() {
		err := fmt.Errorf("unexpected HTTP status %d from %s", resp.StatusCode(), rawURL)
		f.limiter.RecordFailure(domain, err)
		return nil, err
	}
	f.limiter.RecordSuccess(domain)

	finalURL := rawURL
	if resp.RawResponse != nil && resp.RawResponse.Request != nil {
		finalURL = resp.RawResponse.Request.URL.String()
	}

	f.logger.Debug("Fetched page", map[string]interface{}{
		"url":    finalURL,
		"status": resp.StatusCode(),
		"bytes":  len(resp.Body()),
	})
	return page.NewSnapshot(bytes.NewReader(resp.Body()), finalURL)
}
