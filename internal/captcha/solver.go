package captcha

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"searchbot/internal/config"
	"searchbot/internal/logging"
	"searchbot/internal/page"
	"searchbot/pkg/utils"
)

// Outcome summarises one solve attempt.
type Outcome struct {
	State      State
	Descriptor Descriptor
	Job        SolveJob
	Duration   time.Duration
}

// Solved reports whether a token was obtained and injection attempted.
func (o Outcome) Solved() bool {
	return o.State == StateDone
}

// Solver detects a reCAPTCHA widget on a page, has it solved by an external
// service and writes the token back into the page.
type Solver struct {
	cfg       config.RecaptchaConfig
	service   Service
	detectors []Detector
	domains   *DomainRegistry
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time
	logger    logging.Logger
}

// Option customises a Solver.
type Option func(*Solver)

// WithService replaces the 2captcha client.
func WithService(svc Service) Option {
	return func(s *Solver) { s.service = svc }
}

// WithDetectors replaces the detector chain.
func WithDetectors(detectors []Detector) Option {
	return func(s *Solver) { s.detectors = detectors }
}

// WithDomainRegistry records every domain where a challenge is detected.
func WithDomainRegistry(r *DomainRegistry) Option {
	return func(s *Solver) { s.domains = r }
}

// WithSleeper replaces the wait between polls.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Solver) { s.sleep = sleep }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Solver) { s.logger = l }
}

// NewSolver creates a solver. Without WithService a 2captcha client is built
// from cfg.
func NewSolver(cfg config.RecaptchaConfig, opts ...Option) *Solver {
	s := &Solver{
		cfg:       cfg,
		detectors: DefaultDetectors,
		sleep:     utils.Sleep,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logging.GetGlobalLogger()
	}
	s.logger = s.logger.WithField("component", "recaptcha")

	if s.service == nil {
		s.service = NewTwoCaptchaClient(cfg)
	}
	return s
}

// TrySolve solves a challenge on p if one is present and the solver is
// enabled. It never returns an error: every failure is logged and reported as
// false. p is borrowed and left open.
func (s *Solver) TrySolve(ctx context.Context, p page.Page) bool {
	return s.Solve(ctx, p).Solved()
}

// Solve is TrySolve with the full outcome.
func (s *Solver) Solve(ctx context.Context, p page.Page) (out Outcome) {
	out.State = StateIdle

	if !s.cfg.Enabled {
		return out
	}
	if s.cfg.APIKey == "" {
		s.logger.Warn("reCAPTCHA solver enabled but RECAPTCHA_API_KEY is missing")
		return out
	}

	start := s.now()
	log := s.logger.WithField("attempt_id", utils.GenerateRequestID())
	step := func(e Event) {
		next, err := Transition(out.State, e)
		if err != nil {
			log.Error("Unexpected solver transition", map[string]interface{}{"error": err.Error()})
			return
		}
		out.State = next
	}
	defer func() { out.Duration = s.now().Sub(start) }()

	step(EventStart)
	desc, ok := s.describe(ctx, p, log)
	if !ok {
		step(EventNoSiteKey)
		log.Debug("No reCAPTCHA detected on page")
		return out
	}
	out.Descriptor = desc
	step(EventSiteKeyFound)

	if s.domains != nil {
		if err := s.domains.Record(desc.PageURL); err != nil {
			log.Debug("Failed to record captcha domain", map[string]interface{}{"error": err.Error()})
		}
	}

	log = log.WithFields(map[string]interface{}{
		"site_key":    desc.SiteKey,
		"page_url":    desc.PageURL,
		"variant":     desc.Variant.String(),
		"detected_by": desc.DetectedBy,
	})
	log.Info("Submitting reCAPTCHA to 2Captcha")

	requestID, err := s.service.Submit(ctx, SolveRequest{Descriptor: desc, SubmittedAt: s.now()})
	if err != nil {
		step(EventSubmitRejected)
		log.Warn("2Captcha create task failed", map[string]interface{}{"error": err.Error()})
		return out
	}
	step(EventSubmitAccepted)

	out.Job = SolveJob{RequestID: requestID, Status: JobPending}
	log = log.WithField("request_id", requestID)
	log.Info("Polling 2Captcha for solution")

	result, ok := s.poll(ctx, &out.Job, step, log)
	if !ok {
		return out
	}

	step(EventInject)
	if err := InjectToken(ctx, p, result.Token); err != nil {
		log.Warn("reCAPTCHA token injection failed", map[string]interface{}{"error": err.Error()})
	} else {
		log.Info("reCAPTCHA token injected")
	}
	step(EventInjected)

	return out
}

// poll waits one full interval before every query and gives up after
// floor(MaxWait/PollInterval) queries.
func (s *Solver) poll(ctx context.Context, job *SolveJob, step func(Event), log logging.Logger) (SolveResult, bool) {
	interval := s.cfg.PollInterval
	if interval <= 0 {
		job.Status = JobTimedOut
		step(EventWaitExhausted)
		log.Warn("Invalid poll interval; not polling", map[string]interface{}{"poll_interval": interval.String()})
		return SolveResult{}, false
	}

	for elapsed := interval; elapsed <= s.cfg.MaxWait; elapsed += interval {
		if err := s.sleep(ctx, interval); err != nil {
			job.Status = JobFailed
			step(EventPollRejected)
			log.Warn("2Captcha polling aborted", map[string]interface{}{"error": err.Error()})
			return SolveResult{}, false
		}

		token, ready, err := s.service.Poll(ctx, job.RequestID)
		if err != nil {
			job.Status = JobFailed
			step(EventPollRejected)
			log.Warn("2Captcha polling error", map[string]interface{}{"error": err.Error()})
			return SolveResult{}, false
		}
		if ready {
			job.Status = JobReady
			step(EventTokenReceived)
			return SolveResult{Token: token}, true
		}
		step(EventNotReady)
	}

	job.Status = JobTimedOut
	step(EventWaitExhausted)
	log.Warn("2Captcha result timeout", map[string]interface{}{"max_wait": s.cfg.MaxWait.String()})
	return SolveResult{}, false
}

// Describe runs detection only and builds the descriptor the solver would
// submit. It makes no network calls.
func (s *Solver) Describe(ctx context.Context, p page.Page) (Descriptor, bool) {
	return s.describe(ctx, p, s.logger)
}

func (s *Solver) describe(ctx context.Context, p page.Page, log logging.Logger) (Descriptor, bool) {
	siteKey, detectedBy, ok := DetectSiteKey(ctx, p, s.detectors)
	if !ok {
		return Descriptor{}, false
	}

	pageURL, err := p.URL(ctx)
	if err != nil {
		log.Warn("Failed to read current page URL", map[string]interface{}{"error": err.Error()})
	}

	return Descriptor{
		SiteKey:    siteKey,
		PageURL:    pageURL,
		Variant:    ParseVariant(s.cfg.Version),
		Action:     s.cfg.Action,
		MinScore:   parseMinScore(s.cfg.MinScore, log),
		Enterprise: s.cfg.Enterprise,
		Proxy:      s.cfg.Proxy,
		DetectedBy: detectedBy,
	}, true
}

// parseMinScore returns nil for an empty, unparsable or out-of-range value,
// warning in the latter two cases.
func parseMinScore(raw string, log logging.Logger) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || v < 0 || v > 1 {
		log.Warn("Invalid RECAPTCHA_MIN_SCORE; ignoring", map[string]interface{}{"value": raw})
		return nil
	}
	return &v
}
