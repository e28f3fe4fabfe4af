package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"searchbot/internal/browser"
	"searchbot/internal/captcha"
	"searchbot/internal/search"
)

func newSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search [query]",
		Short: "Open the search page, run a query and solve a reCAPTCHA if one appears",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, closeLogging, err := setup()
			if err != nil {
				return err
			}
			defer closeLogging()

			ctx, cancel := signalContext()
			defer cancel()

			session, err := browser.Open(ctx, cfg.Browser, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := session.Close(); err != nil {
					logger.Warn("Failed to close browser session", map[string]interface{}{"error": err.Error()})
				}
			}()

			opts := []captcha.Option{captcha.WithLogger(logger)}
			if registry := domainRegistry(cfg, logger); registry != nil {
				opts = append(opts, captcha.WithDomainRegistry(registry))
			}
			solver := captcha.NewSolver(cfg.Recaptcha, opts...)

			res, err := search.NewMainPage(session.Page(), cfg.Search, solver, logger).
				Search(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "query:  %s\ntitle:  %s\nsolved: %t\n", res.Query, res.Title, res.ChallengeSolved)
			return nil
		},
	}
}
