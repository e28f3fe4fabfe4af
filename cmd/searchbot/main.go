package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"searchbot/internal/captcha"
	"searchbot/internal/config"
	"searchbot/internal/logging"
)

var version = "dev"

var configPath string

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "searchbot",
		Short:   "Browser automation with reCAPTCHA solving through 2captcha",
		Version: version,
		Long: `searchbot drives Chrome to the configured search page, runs a query and,
when ENABLE_RECAPTCHA_SOLVER is set, clears a reCAPTCHA challenge by having
2captcha solve it and injecting the returned token.`,
		Example: `  # Search with the configured default query
  searchbot search

  # Search for a specific term through a Selenium grid
  SELENIUM_REMOTE_URL=http://localhost:4444/wd/hub searchbot search "golang generics"

  # Inspect pages for a reCAPTCHA site key without a browser
  searchbot detect https://www.google.com/recaptcha/api2/demo ./saved-page.html

  # Show the 2captcha account balance
  RECAPTCHA_API_KEY=... searchbot balance`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "Path to the YAML configuration file")

	rootCmd.AddCommand(newSearchCmd(), newDetectCmd(), newBalanceCmd())
	return rootCmd
}

// setup loads configuration and starts logging. The returned function closes
// the logging system.
func setup() (*config.Config, logging.Logger, func(), error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logging.InitializeLogging(cfg.Logging); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger := logging.GetGlobalLogger()

	return cfg, logger, func() { _ = logging.CloseLogging() }, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// domainRegistry opens the challenge-domain file when one is configured.
func domainRegistry(cfg *config.Config, logger logging.Logger) *captcha.DomainRegistry {
	if cfg.Recaptcha.DomainsFile == "" {
		return nil
	}

	registry, err := captcha.NewDomainRegistry(cfg.Recaptcha.DomainsFile, logger)
	if err != nil {
		logger.Warn("Failed to load captcha domains; continuing without", map[string]interface{}{
			"file":  cfg.Recaptcha.DomainsFile,
			"error": err.Error(),
		})
		return nil
	}
	return registry
}
