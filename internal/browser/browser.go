// Package browser prepares a Chrome session pointed at the configured start
// page, either locally through the DevTools protocol or on a remote WebDriver
// server.
package browser

import (
	"context"
	"fmt"
	"os"
	"strings"

	"searchbot/internal/config"
	"searchbot/internal/logging"
	"searchbot/internal/page"
)

// UnsupportedBrowserError is returned for any browser other than chrome.
type UnsupportedBrowserError struct {
	Name string
}

func (e *UnsupportedBrowserError) Error() string {
	return fmt.Sprintf("unsupported browser %q: only chrome is supported", e.Name)
}

// Session is an open browser with its start page loaded. Close must be called
// exactly once.
type Session interface {
	Page() page.Page
	Close() error
}

// Driver opens browser sessions.
type Driver interface {
	Open(ctx context.Context) (Session, error)
}

// NewDriver picks a driver for cfg: a remote WebDriver session when a remote
// URL is set, a locally launched Chrome otherwise.
func NewDriver(cfg config.BrowserConfig, logger logging.Logger) (Driver, error) {
	if !strings.EqualFold(strings.TrimSpace(cfg.Name), "chrome") {
		return nil, &UnsupportedBrowserError{Name: cfg.Name}
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	logger = logger.WithField("component", "browser")

	if cfg.RemoteURL != "" {
		return &RemoteDriver{cfg: cfg, logger: logger}, nil
	}
	return &RodDriver{cfg: cfg, logger: logger}, nil
}

// Open is NewDriver followed by Driver.Open.
func Open(ctx context.Context, cfg config.BrowserConfig, logger logging.Logger) (Session, error) {
	d, err := NewDriver(cfg, logger)
	if err != nil {
		return nil, err
	}
	return d.Open(ctx)
}

// chromeFlag is a command-line switch without the leading dashes.
type chromeFlag struct {
	name  string
	value string
}

func (f chromeFlag) String() string {
	if f.value == "" {
		return "--" + f.name
	}
	return "--" + f.name + "=" + f.value
}

// chromeFlags returns the switches every session is started with. profileDir
// gives each session its own user data directory.
func chromeFlags(cfg config.BrowserConfig, profileDir string) []chromeFlag {
	fl := []chromeFlag{
		{name: "disable-blink-features", value: "AutomationControlled"},
		{name: "no-sandbox"},
		{name: "disable-dev-shm-usage"},
		{name: "disable-gpu"},
		{name: "disable-extensions"},
		{name: "disable-software-rasterizer"},
		{name: "window-size", value: "1920,1080"},
	}
	if profileDir != "" {
		fl = append(fl, chromeFlag{name: "user-data-dir", value: profileDir})
	}
	if cfg.UserAgent != "" {
		fl = append(fl, chromeFlag{name: "user-agent", value: cfg.UserAgent})
	}
	return fl
}

// chromeArgs renders flags for a WebDriver capability list.
func chromeArgs(cfg config.BrowserConfig, profileDir string) []string {
	var args []string
	for _, f := range chromeFlags(cfg, profileDir) {
		args = append(args, f.String())
	}
	if cfg.Headless {
		args = append(args, "--headless=new")
	}
	return args
}

// systemChromePath returns the configured binary or the first Chrome found in
// a well-known location, or "" to let rod download one.
func systemChromePath(cfg config.BrowserConfig) string {
	if cfg.ChromeBin != "" {
		if _, err := os.Stat(cfg.ChromeBin); err == nil {
			return cfg.ChromeBin
		}
	}

	commonPaths := []string{
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/usr/bin/google-chrome",
		"/usr/bin/google-chrome-stable",
		"/opt/google/chrome/chrome",
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
		"C:\\Program Files\\Google\\Chrome\\Application\\chrome.exe",
		"C:\\Program Files (x86)\\Google\\Chrome\\Application\\chrome.exe",
	}
	for _, path := range commonPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
