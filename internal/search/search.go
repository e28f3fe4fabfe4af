// Package search drives the search engine start page: type a query, submit
// it, and clear a reCAPTCHA interstitial if one shows up.
package search

import (
	"context"
	"fmt"
	"time"

	"searchbot/internal/config"
	"searchbot/internal/logging"
	"searchbot/internal/page"
	"searchbot/pkg/utils"
)

// ChallengeSolver is the part of the captcha solver the search flow needs.
type ChallengeSolver interface {
	TrySolve(ctx context.Context, p page.Page) bool
}

// Result describes one completed search.
type Result struct {
	Query           string
	Title           string
	ChallengeSolved bool
	Duration        time.Duration
}

// MainPage is the search engine start page.
type MainPage struct {
	page   page.Page
	cfg    config.SearchConfig
	solver ChallengeSolver
	sleep  func(ctx context.Context, d time.Duration) error
	logger logging.Logger
}

// NewMainPage binds the page object to an open page. solver may be nil.
func NewMainPage(p page.Page, cfg config.SearchConfig, solver ChallengeSolver, logger logging.Logger) *MainPage {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &MainPage{
		page:   p,
		cfg:    cfg,
		solver: solver,
		sleep:  utils.Sleep,
		logger: logger.WithField("component", "search"),
	}
}

// Search types query (or the configured default) into the search box, pauses
// like a person would, submits, and gives the solver one chance to clear a
// challenge on the results page.
func (m *MainPage) Search(ctx context.Context, query string) (Result, error) {
	start := time.Now()
	if query == "" {
		query = m.cfg.Query
	}
	res := Result{Query: query}

	box, err := m.page.Element(ctx, m.cfg.BoxSelector)
	if err != nil {
		return res, fmt.Errorf("search box %q: %w", m.cfg.BoxSelector, err)
	}

	if err := m.sleep(ctx, m.cfg.Pause); err != nil {
		return res, err
	}
	if err := box.Input(ctx, query); err != nil {
		return res, fmt.Errorf("failed to type query: %w", err)
	}
	if err := m.sleep(ctx, m.cfg.Pause); err != nil {
		return res, err
	}
	if err := box.Submit(ctx); err != nil {
		return res, fmt.Errorf("failed to submit query: %w", err)
	}

	m.logger.Info("Search submitted", map[string]interface{}{"query": query})

	if err := m.waitForResults(ctx); err != nil {
		return res, err
	}

	if m.solver != nil {
		res.ChallengeSolved = m.solver.TrySolve(ctx, m.page)
	}

	title, err := page.Title(ctx, m.page)
	if err != nil {
		m.logger.Warn("Failed to read page title", map[string]interface{}{"error": err.Error()})
	}
	res.Title = title
	res.Duration = time.Since(start)

	m.logger.Info("Search completed", map[string]interface{}{
		"query":            query,
		"title":            title,
		"challenge_solved": res.ChallengeSolved,
		"duration":         utils.FormatDuration(res.Duration),
	})
	return res, nil
}

// waitForResults waits up to ResultsTimeout for the page the submit led to.
// A page that is still loading when the timeout expires is inspected as is;
// only cancellation of ctx aborts the search.
func (m *MainPage) waitForResults(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, m.cfg.ResultsTimeout)
	defer cancel()

	err := m.page.WaitLoad(waitCtx)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	m.logger.Warn("Results page did not finish loading", map[string]interface{}{
		"error":   err.Error(),
		"timeout": m.cfg.ResultsTimeout.String(),
	})
	return nil
}
