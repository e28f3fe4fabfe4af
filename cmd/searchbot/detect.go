package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"searchbot/internal/captcha"
	"searchbot/internal/fetch"
	"searchbot/internal/page"
)

type detection struct {
	Target     string `json:"target"`
	PageURL    string `json:"page_url,omitempty"`
	Found      bool   `json:"found"`
	SiteKey    string `json:"site_key,omitempty"`
	DetectedBy string `json:"detected_by,omitempty"`
	Variant    string `json:"variant,omitempty"`
	Error      string `json:"error,omitempty"`
}

func newDetectCmd() *cobra.Command {
	var (
		asJSON  bool
		pageURL string
	)

	cmd := &cobra.Command{
		Use:   "detect <url|file>...",
		Short: "Look for a reCAPTCHA site key in pages without starting a browser",
		Long: `detect fetches each URL (or reads each local HTML file) and runs the
static site-key detectors on it. Keys only exposed through page scripts are
not visible this way.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, closeLogging, err := setup()
			if err != nil {
				return err
			}
			defer closeLogging()

			ctx, cancel := signalContext()
			defer cancel()

			fetcher := fetch.New(cfg.Fetch, cfg.Browser.UserAgent, logger)
			solver := captcha.NewSolver(cfg.Recaptcha, captcha.WithLogger(logger))
			registry := domainRegistry(cfg, logger)

			results := make([]detection, 0, len(args))
			for _, target := range args {
				if ctx.Err() != nil {
					break
				}
				d := detectOne(ctx, fetcher, solver, target, pageURL)
				if d.Found && registry != nil {
					if err := registry.Record(d.PageURL); err != nil {
						logger.Debug("Failed to record captcha domain", map[string]interface{}{"error": err.Error()})
					}
				}
				results = append(results, d)
			}

			return writeDetections(cmd.OutOrStdout(), results, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	cmd.Flags().StringVar(&pageURL, "page-url", "", "Page URL to report for local files")
	return cmd
}

func detectOne(ctx context.Context, fetcher *fetch.Fetcher, solver *captcha.Solver, target, pageURL string) detection {
	d := detection{Target: target}

	p, err := loadPage(ctx, fetcher, target, pageURL)
	if err != nil {
		d.Error = err.Error()
		return d
	}

	desc, ok := solver.Describe(ctx, p)
	d.PageURL, _ = p.URL(ctx)
	if !ok {
		return d
	}

	d.Found = true
	d.PageURL = desc.PageURL
	d.SiteKey = desc.SiteKey
	d.DetectedBy = desc.DetectedBy
	d.Variant = desc.Variant.String()
	return d
}

func loadPage(ctx context.Context, fetcher *fetch.Fetcher, target, pageURL string) (*page.Snapshot, error) {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return fetcher.Fetch(ctx, target)
	}

	f, err := os.Open(target)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", target, err)
	}
	defer f.Close()

	if pageURL == "" {
		abs, err := filepath.Abs(target)
		if err != nil {
			abs = target
		}
		pageURL = "file://" + filepath.ToSlash(abs)
	}
	return page.NewSnapshot(f, pageURL)
}

func writeDetections(w io.Writer, results []detection, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TARGET\tSITE KEY\tDETECTED BY\tVARIANT")
	for _, d := range results {
		switch {
		case d.Error != "":
			fmt.Fprintf(tw, "%s\terror: %s\t\t\n", d.Target, d.Error)
		case !d.Found:
			fmt.Fprintf(tw, "%s\t-\t\t\n", d.Target)
		default:
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Target, d.SiteKey, d.DetectedBy, d.Variant)
		}
	}
	return tw.Flush()
}
