package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/chrome"

	"searchbot/internal/config"
	"searchbot/internal/logging"
	"searchbot/internal/page"
)

// RemoteDriver starts Chrome on a WebDriver server such as a Selenium grid or
// a standalone chromedriver.
type RemoteDriver struct {
	cfg    config.BrowserConfig
	logger logging.Logger
}

type remoteSession struct {
	wd        selenium.WebDriver
	page      *page.WebDriverPage
	logger    logging.Logger
	closeOnce sync.Once
	closeErr  error
}

// Capabilities builds the session request. The profile directory lives on the
// WebDriver host and is unique per session.
func (d *RemoteDriver) Capabilities() selenium.Capabilities {
	profileDir := filepath.Join(os.TempDir(), "chrome-user-data-"+uuid.NewString())

	caps := selenium.Capabilities{"browserName": "chrome"}
	caps.AddChrome(chrome.Capabilities{
		Args: chromeArgs(d.cfg, profileDir),
		Path: d.cfg.ChromeBin,
		Prefs: map[string]interface{}{
			"credentials_enable_service":       false,
			"profile.password_manager_enabled": false,
		},
		ExcludeSwitches: []string{"enable-automation"},
		W3C:             true,
	})
	return caps
}

// Open creates a remote session and navigates it to the configured website.
// WebDriver calls do not take a context; ctx is only checked up front.
func (d *RemoteDriver) Open(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	wd, err := selenium.NewRemote(d.Capabilities(), d.cfg.RemoteURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create WebDriver session at %s: %w", d.cfg.RemoteURL, err)
	}
	s := &remoteSession{wd: wd, page: page.NewWebDriverPage(wd), logger: d.logger}

	if err := wd.SetPageLoadTimeout(d.cfg.PageLoadTimeout); err != nil {
		d.logger.Warn("Failed to set page load timeout", map[string]interface{}{"error": err.Error()})
	}

	website := d.cfg.Website()
	if err := wd.Get(website); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to navigate to %s: %w", website, err)
	}

	d.logger.Info("Browser session opened", map[string]interface{}{
		"driver":     "webdriver",
		"url":        website,
		"remote_url": d.cfg.RemoteURL,
		"headless":   d.cfg.Headless,
	})
	return s, nil
}

func (s *remoteSession) Page() page.Page {
	return s.page
}

// Close ends the remote session. The remote browser removes its own profile.
func (s *remoteSession) Close() error {
	s.closeOnce.Do(func() {
		if err := s.wd.Quit(); err != nil {
			s.closeErr = fmt.Errorf("failed to quit WebDriver session: %w", err)
		}
		s.logger.Debug("Browser session closed")
	})
	return s.closeErr
}
