package browser

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"searchbot/internal/config"
	"searchbot/internal/logging"
	"searchbot/internal/page"
)

// RodDriver launches a local Chrome and drives it over the DevTools protocol.
type RodDriver struct {
	cfg    config.BrowserConfig
	logger logging.Logger
}

type rodSession struct {
	browser    *rod.Browser
	launcher   *launcher.Launcher
	page       *page.RodPage
	profileDir string
	logger     logging.Logger
	closeOnce  sync.Once
	closeErr   error
}

// Open launches Chrome with a fresh profile, creates a page and navigates it
// to the configured website.
func (d *RodDriver) Open(ctx context.Context) (Session, error) {
	profileDir, err := os.MkdirTemp("", "searchbot-profile-")
	if err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}

	l := d.newLauncher(profileDir)
	controlURL, err := l.Launch()
	if err != nil {
		os.RemoveAll(profileDir)
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		os.RemoveAll(profileDir)
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	s := &rodSession{browser: b, launcher: l, profileDir: profileDir, logger: d.logger}

	rp, err := d.createPage(b)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.page = page.NewRodPage(rp)

	website := d.cfg.Website()
	navCtx, cancel := context.WithTimeout(ctx, d.cfg.PageLoadTimeout)
	defer cancel()
	if err := rp.Context(navCtx).Navigate(website); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to navigate to %s: %w", website, err)
	}
	if err := rp.Context(navCtx).WaitLoad(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to load %s: %w", website, err)
	}

	d.logger.Info("Browser session opened", map[string]interface{}{
		"driver":   "rod",
		"url":      website,
		"headless": d.cfg.Headless,
	})
	return s, nil
}

func (d *RodDriver) newLauncher(profileDir string) *launcher.Launcher {
	l := launcher.New().
		Headless(d.cfg.Headless).
		UserDataDir(profileDir)

	for _, f := range chromeFlags(d.cfg, "") {
		if f.value == "" {
			l = l.Set(flags.Flag(f.name))
		} else {
			l = l.Set(flags.Flag(f.name), f.value)
		}
	}

	if chromePath := systemChromePath(d.cfg); chromePath != "" {
		l = l.Bin(chromePath)
		d.logger.Debug("Using system Chrome browser", map[string]interface{}{
			"chrome_path": chromePath,
		})
	} else {
		d.logger.Warn("System Chrome not found, Rod will download browser")
	}
	return l
}

// createPage opens a tab, hardened with go-rod/stealth when enabled.
func (d *RodDriver) createPage(b *rod.Browser) (*rod.Page, error) {
	var (
		p   *rod.Page
		err error
	)
	if d.cfg.Stealth {
		p, err = stealth.Page(b)
	} else {
		p, err = b.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	err = p.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             1920,
		Height:            1080,
		DeviceScaleFactor: 1,
	})
	if err != nil {
		d.logger.Warn("Failed to set viewport", map[string]interface{}{"error": err.Error()})
	}

	if d.cfg.UserAgent != "" {
		err = p.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: d.cfg.UserAgent})
		if err != nil {
			d.logger.Warn("Failed to set user agent", map[string]interface{}{"error": err.Error()})
		}
	}
	return p, nil
}

func (s *rodSession) Page() page.Page {
	return s.page
}

// Close quits the browser and removes its profile directory.
func (s *rodSession) Close() error {
	s.closeOnce.Do(func() {
		if err := s.browser.Close(); err != nil {
			s.logger.Warn("Failed to close browser", map[string]interface{}{"error": err.Error()})
			s.launcher.Kill()
		}
		s.launcher.Cleanup()
		if err := os.RemoveAll(s.profileDir); err != nil {
			s.closeErr = fmt.Errorf("failed to remove profile directory: %w", err)
		}
		s.logger.Debug("Browser session closed")
	})
	return s.closeErr
}
