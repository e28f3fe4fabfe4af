package fetch

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"searchbot/internal/config"
	"searchbot/internal/logging"
)

// CircuitState is the state of a per-domain circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (cs CircuitState) String() string {
	switch cs {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

type domainState struct {
	limiter      *rate.Limiter
	requests     int64
	failures     int
	lastFailTime time.Time
	state        CircuitState
}

// RateLimiter throttles requests per domain and stops sending to a domain
// after repeated failures until ResetTimeout has passed.
type RateLimiter struct {
	cfg     config.FetchConfig
	domains map[string]*domainState
	mu      sync.Mutex
	now     func() time.Time
	logger  logging.Logger
}

// NewRateLimiter creates a limiter from the fetch configuration.
func NewRateLimiter(cfg config.FetchConfig, logger logging.Logger) *RateLimiter {
	return &RateLimiter{
		cfg:     cfg,
		domains: make(map[string]*domainState),
		now:     time.Now,
		logger:  logger.WithField("component", "rate_limiter"),
	}
}

// Wait blocks until a request to domain may be sent. It returns
// ErrCircuitOpen without waiting when the domain's breaker is open.
func (rl *RateLimiter) Wait(ctx context.Context, domain string) error {
	rl.mu.Lock()
	d := rl.domain(domain)
	if !rl.allowedLocked(domain, d) {
		rl.mu.Unlock()
		return ErrCircuitOpen
	}
	d.requests++
	limiter := d.limiter
	rl.mu.Unlock()

	return limiter.Wait(ctx)
}

// RecordSuccess closes a half-open breaker.
func (rl *RateLimiter) RecordSuccess(domain string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	d := rl.domain(domain)
	if d.state == CircuitHalfOpen {
		rl.logger.Info("Circuit breaker closed after successful request", map[string]interface{}{"domain": domain})
	}
	d.state = CircuitClosed
	d.failures = 0
}

// RecordFailure counts a failure and opens the breaker at MaxFailures, or
// immediately when the breaker was half-open.
func (rl *RateLimiter) RecordFailure(domain string, err error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	d := rl.domain(domain)
	d.failures++
	d.lastFailTime = rl.now()

	if d.state == CircuitHalfOpen || (d.state == CircuitClosed && d.failures >= rl.cfg.MaxFailures) {
		d.state = CircuitOpen
		rl.logger.Warn("Circuit breaker opened due to failures", map[string]interface{}{
			"domain":   domain,
			"failures": d.failures,
			"error":    err.Error(),
		})
	}
}

// State returns the breaker state for domain.
func (rl *RateLimiter) State(domain string) CircuitState {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	d := rl.domain(domain)
	rl.allowedLocked(domain, d)
	return d.state
}

// Stats returns counters for domain.
func (rl *RateLimiter) Stats(domain string) map[string]interface{} {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	d := rl.domain(domain)
	return map[string]interface{}{
		"requests":      d.requests,
		"failure_count": d.failures,
		"circuit_state": d.state.String(),
		"limit":         float64(d.limiter.Limit()),
		"burst":         d.limiter.Burst(),
	}
}

// allowedLocked moves an open breaker to half-open once ResetTimeout has
// elapsed and reports whether a request may go out.
func (rl *RateLimiter) allowedLocked(domain string, d *domainState) bool {
	if d.state == CircuitOpen && rl.now().Sub(d.lastFailTime) > rl.cfg.ResetTimeout {
		d.state = CircuitHalfOpen
		rl.logger.Info("Circuit breaker transitioned to half-open", map[string]interface{}{"domain": domain})
	}
	return d.state != CircuitOpen
}

// domain gets or creates the state for a domain; callers hold mu.
func (rl *RateLimiter) domain(name string) *domainState {
	name = strings.ToLower(name)
	if d, ok := rl.domains[name]; ok {
		return d
	}

	rps := rate.Limit(float64(rl.cfg.RateLimit) / 60.0)
	d := &domainState{limiter: rate.NewLimiter(rps, rl.cfg.Burst)}
	rl.domains[name] = d

	rl.logger.Debug("Created new domain rate limiter", map[string]interface{}{
		"domain": name,
		"rate":   float64(rps),
		"burst":  rl.cfg.Burst,
	})
	return d
}
