package captcha

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"searchbot/internal/config"
	"searchbot/internal/logging"
	"searchbot/internal/page"
)

// fakePage serves fabricated markup and emulates the two scripts the solver
// runs: the site-key global lookup and token injection.
type fakePage struct {
	*page.Snapshot
	global   interface{}
	evalErr  error
	injected []string
}

func newFakePage(t *testing.T, html, pageURL string) *fakePage {
	t.Helper()
	s, err := page.NewSnapshotFromString(html, pageURL)
	if err != nil {
		t.Fatalf("failed to build page: %v", err)
	}
	return &fakePage{Snapshot: s}
}

func (f *fakePage) Eval(_ context.Context, fn string, args ...interface{}) (interface{}, error) {
	switch fn {
	case siteKeyGlobalsJS:
		return f.global, nil
	case injectTokenJS:
		if len(args) == 1 {
			if token, ok := args[0].(string); ok {
				f.injected = append(f.injected, token)
			}
		}
		return nil, f.evalErr
	}
	return nil, page.ErrNoScripting
}

// fakeService is an in.php/res.php stand-in. Poll answers are consumed in
// order and the last one repeats.
type fakeService struct {
	mu             sync.Mutex
	submits        []url.Values
	polls          []url.Values
	submitResponse string
	pollResponses  []string
	server         *httptest.Server
}

func newFakeService(t *testing.T, submitResponse string, pollResponses ...string) *fakeService {
	t.Helper()
	f := &fakeService{submitResponse: submitResponse, pollResponses: pollResponses}

	mux := http.NewServeMux()
	mux.HandleFunc("/in.php", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.submits = append(f.submits, r.PostForm)
		f.mu.Unlock()
		fmt.Fprint(w, f.submitResponse)
	})
	mux.HandleFunc("/res.php", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.polls = append(f.polls, r.URL.Query())
		idx := len(f.polls) - 1
		if idx >= len(f.pollResponses) {
			idx = len(f.pollResponses) - 1
		}
		resp := f.pollResponses[idx]
		f.mu.Unlock()
		fmt.Fprint(w, resp)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeService) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submits)
}

func (f *fakeService) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.polls)
}

// recordingSleeper returns immediately and remembers every requested wait.
type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waits = append(r.waits, d)
	return ctx.Err()
}

func testConfig(apiURL string) config.RecaptchaConfig {
	return config.RecaptchaConfig{
		Enabled:        true,
		APIKey:         "test-key",
		Version:        "v2",
		APIURL:         apiURL,
		PollInterval:   5 * time.Second,
		MaxWait:        120 * time.Second,
		RequestTimeout: 5 * time.Second,
	}
}

func quietLogger() logging.Logger {
	return logging.NewMultiLogger()
}

const (
	okSubmit    = `{"status":1,"request":"2122988149"}`
	notReady    = `{"status":0,"request":"CAPCHA_NOT_READY"}`
	tokenReady  = `{"status":1,"request":"TOKEN"}`
	unsolvable  = `{"status":0,"request":"ERROR_CAPTCHA_UNSOLVABLE"}`
	widgetHTML  = `<html><body><form><div class="g-recaptcha" data-sitekey="6Lc...xyz"></div><textarea id="g-recaptcha-response"></textarea></form></body></html>`
	loginURL    = "https://example.com/login"
	testSiteKey = "6Lc...xyz"
)
