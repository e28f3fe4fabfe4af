package captcha

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"searchbot/internal/config"
)

func newTestSolver(t *testing.T, svc *fakeService, mutate func(*config.RecaptchaConfig), extra ...Option) (*Solver, *recordingSleeper) {
	t.Helper()
	cfg := testConfig(svc.server.URL)
	if mutate != nil {
		mutate(&cfg)
	}

	sleeper := &recordingSleeper{}
	opts := append([]Option{WithLogger(quietLogger()), WithSleeper(sleeper.sleep)}, extra...)
	return NewSolver(cfg, opts...), sleeper
}

func TestSolver_Disabled(t *testing.T) {
	svc := newFakeService(t, okSubmit, tokenReady)
	s, _ := newTestSolver(t, svc, func(c *config.RecaptchaConfig) { c.Enabled = false })
	p := newFakePage(t, widgetHTML, loginURL)

	if s.TrySolve(context.Background(), p) {
		t.Error("disabled solver must report false")
	}
	if svc.submitCount()+svc.pollCount() != 0 {
		t.Error("disabled solver must not contact the service")
	}
	if len(p.injected) != 0 {
		t.Error("disabled solver must not touch the page")
	}
}

func TestSolver_MissingAPIKey(t *testing.T) {
	svc := newFakeService(t, okSubmit, tokenReady)
	s, _ := newTestSolver(t, svc, func(c *config.RecaptchaConfig) { c.APIKey = "" })

	if s.TrySolve(context.Background(), newFakePage(t, widgetHTML, loginURL)) {
		t.Error("expected false without an API key")
	}
	if svc.submitCount() != 0 {
		t.Error("no request may be made without an API key")
	}
}

func TestSolver_NoChallenge(t *testing.T) {
	svc := newFakeService(t, okSubmit, tokenReady)
	s, _ := newTestSolver(t, svc, nil)

	out := s.Solve(context.Background(), newFakePage(t, `<form><input name="q"></form>`, loginURL))
	if out.Solved() || out.State != StateNoChallenge {
		t.Errorf("state = %s, want no_challenge", out.State)
	}
	if svc.submitCount() != 0 {
		t.Error("no request may be made when no challenge is present")
	}
}

func TestSolver_SubmitsExactV2Payload(t *testing.T) {
	svc := newFakeService(t, okSubmit, tokenReady)
	s, _ := newTestSolver(t, svc, nil)

	if !s.TrySolve(context.Background(), newFakePage(t, widgetHTML, loginURL)) {
		t.Fatal("expected success")
	}

	got := map[string]string{}
	for k, v := range svc.submits[0] {
		got[k] = v[0]
	}
	want := map[string]string{
		"key":       "test-key",
		"method":    "userrecaptcha",
		"googlekey": testSiteKey,
		"pageurl":   loginURL,
		"json":      "1",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("submitted %v, want %v", got, want)
	}
}

func TestSolver_SubmitRejected(t *testing.T) {
	svc := newFakeService(t, `{"status":0,"request":"ERROR_WRONG_USER_KEY"}`, tokenReady)
	s, sleeper := newTestSolver(t, svc, nil)
	p := newFakePage(t, widgetHTML, loginURL)

	out := s.Solve(context.Background(), p)
	if out.Solved() || out.State != StateSubmitFailed {
		t.Errorf("state = %s, want submit_failed", out.State)
	}
	if svc.pollCount() != 0 || len(sleeper.waits) != 0 {
		t.Error("a rejected submission must not be polled")
	}
	if len(p.injected) != 0 {
		t.Error("nothing may be injected after a rejected submission")
	}
}

func TestSolver_PollsUntilReady(t *testing.T) {
	svc := newFakeService(t, okSubmit, notReady, tokenReady)
	s, sleeper := newTestSolver(t, svc, nil)
	p := newFakePage(t, widgetHTML, loginURL)

	out := s.Solve(context.Background(), p)
	if !out.Solved() {
		t.Fatalf("expected success, state = %s", out.State)
	}
	if svc.pollCount() != 2 {
		t.Errorf("polls = %d, want 2", svc.pollCount())
	}
	if want := []time.Duration{5 * time.Second, 5 * time.Second}; !reflect.DeepEqual(sleeper.waits, want) {
		t.Errorf("waits = %v, want %v", sleeper.waits, want)
	}
	if !reflect.DeepEqual(p.injected, []string{"TOKEN"}) {
		t.Errorf("injected = %v, want [TOKEN]", p.injected)
	}
	if out.Job.RequestID != "2122988149" || out.Job.Status != JobReady {
		t.Errorf("unexpected job %+v", out.Job)
	}
	if out.Descriptor.DetectedBy != "widget" {
		t.Errorf("detected by %q", out.Descriptor.DetectedBy)
	}
}

func TestSolver_Timeout(t *testing.T) {
	svc := newFakeService(t, okSubmit, notReady)
	s, sleeper := newTestSolver(t, svc, func(c *config.RecaptchaConfig) {
		c.PollInterval = 5 * time.Second
		c.MaxWait = 23 * time.Second
	})
	p := newFakePage(t, widgetHTML, loginURL)

	out := s.Solve(context.Background(), p)
	if out.Solved() || out.State != StatePollTimedOut {
		t.Errorf("state = %s, want poll_timed_out", out.State)
	}
	if svc.pollCount() != 4 {
		t.Errorf("polls = %d, want 4", svc.pollCount())
	}
	if len(sleeper.waits) != 4 {
		t.Errorf("waits = %d, want 4", len(sleeper.waits))
	}
	if out.Job.Status != JobTimedOut {
		t.Errorf("job status = %s", out.Job.Status)
	}
	if len(p.injected) != 0 {
		t.Error("nothing may be injected after a timeout")
	}
}

func TestSolver_PollError(t *testing.T) {
	svc := newFakeService(t, okSubmit, notReady, unsolvable, tokenReady)
	s, _ := newTestSolver(t, svc, nil)

	out := s.Solve(context.Background(), newFakePage(t, widgetHTML, loginURL))
	if out.Solved() || out.State != StatePollFailed {
		t.Errorf("state = %s, want poll_failed", out.State)
	}
	if svc.pollCount() != 2 {
		t.Errorf("polling must stop at the first error, polls = %d", svc.pollCount())
	}
}

func TestSolver_CancelledWhileWaiting(t *testing.T) {
	svc := newFakeService(t, okSubmit, notReady)
	cancelled := func(context.Context, time.Duration) error { return context.Canceled }
	s, _ := newTestSolver(t, svc, nil, WithSleeper(cancelled))

	out := s.Solve(context.Background(), newFakePage(t, widgetHTML, loginURL))
	if out.Solved() || out.State != StatePollFailed {
		t.Errorf("state = %s, want poll_failed", out.State)
	}
	if svc.pollCount() != 0 {
		t.Errorf("polls = %d, want 0", svc.pollCount())
	}
}

func TestSolver_InvalidMinScoreIsDropped(t *testing.T) {
	svc := newFakeService(t, okSubmit, tokenReady)
	s, _ := newTestSolver(t, svc, func(c *config.RecaptchaConfig) {
		c.Version = "v3"
		c.Action = "login"
		c.MinScore = "not-a-number"
	})

	if !s.TrySolve(context.Background(), newFakePage(t, widgetHTML, loginURL)) {
		t.Fatal("invalid min score must not prevent solving")
	}

	form := svc.submits[0]
	if form.Get("version") != "v3" || form.Get("action") != "login" {
		t.Errorf("unexpected v3 fields %v", form)
	}
	if _, ok := form["min_score"]; ok {
		t.Error("min_score must be omitted when unparsable")
	}
}

func TestSolver_InjectionErrorStillSucceeds(t *testing.T) {
	svc := newFakeService(t, okSubmit, tokenReady)
	s, _ := newTestSolver(t, svc, nil)
	p := newFakePage(t, widgetHTML, loginURL)
	p.evalErr = context.DeadlineExceeded

	if !s.TrySolve(context.Background(), p) {
		t.Error("an injection failure after a token still counts as solved")
	}
}

func TestSolver_RecordsDomain(t *testing.T) {
	svc := newFakeService(t, `{"status":0,"request":"ERROR_ZERO_BALANCE"}`, tokenReady)
	registry, err := NewDomainRegistry(filepath.Join(t.TempDir(), "domains.txt"), quietLogger())
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}
	s, _ := newTestSolver(t, svc, nil, WithDomainRegistry(registry))

	s.TrySolve(context.Background(), newFakePage(t, widgetHTML, "https://www.example.com/login"))

	if !registry.Known("https://example.com/other") {
		t.Error("expected example.com to be recorded")
	}
}

func TestParseMinScore(t *testing.T) {
	tests := map[string]*float64{
		"":     nil,
		"  ":   nil,
		"abc":  nil,
		"NaN":  nil,
		"-0.1": nil,
		"1.5":  nil,
		"0.7":  floatPtr(0.7),
		" 0 ":  floatPtr(0),
		"1":    floatPtr(1),
	}

	for raw, want := range tests {
		got := parseMinScore(raw, quietLogger())
		switch {
		case want == nil && got != nil:
			t.Errorf("parseMinScore(%q) = %v, want nil", raw, *got)
		case want != nil && (got == nil || *got != *want):
			t.Errorf("parseMinScore(%q) = %v, want %v", raw, got, *want)
		}
	}
}

func floatPtr(f float64) *float64 { return &f }

func TestSolver_NonPositivePollInterval(t *testing.T) {
	for _, interval := range []time.Duration{0, -time.Second} {
		svc := newFakeService(t, okSubmit, tokenReady)
		s, sleeper := newTestSolver(t, svc, func(c *config.RecaptchaConfig) { c.PollInterval = interval })

		out := s.Solve(context.Background(), newFakePage(t, widgetHTML, loginURL))
		if out.Solved() || out.State != StatePollTimedOut {
			t.Errorf("interval %v: state = %s, want poll_timed_out", interval, out.State)
		}
		if svc.pollCount() != 0 || len(sleeper.waits) != 0 {
			t.Errorf("interval %v: polls = %d, waits = %d, want none", interval, svc.pollCount(), len(sleeper.waits))
		}
	}
}
