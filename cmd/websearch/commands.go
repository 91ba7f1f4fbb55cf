package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/websearch/internal/frontier"
	"github.com/JakeFAU/websearch/internal/search"
	"github.com/JakeFAU/websearch/internal/session"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and crawl workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := resolveService(cmd.Context())
			if err != nil {
				return err
			}
			return svc.Run(cmd.Context())
		},
	}
}

type crawlSummary struct {
	SessionID string            `json:"session_id"`
	Crawled   int               `json:"crawled"`
	Skipped   int               `json:"skipped"`
	Failed    int               `json:"failed"`
	Duration  string            `json:"duration"`
	Failures  []crawlFailure    `json:"failures,omitempty"`
	Results   []frontier.Result `json:"results,omitempty"`
}

type crawlFailure struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

func newCrawlCmd() *cobra.Command {
	var limit int
	var sessionID string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "crawl <url>",
		Short: "Crawl from a seed URL and wait for the run to finish",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := resolveService(cmd.Context())
			if err != nil {
				return err
			}
			report, runErr := svc.Crawl(cmd.Context(), session.StartRequest{
				SeedURL:   args[0],
				PageLimit: limit,
				SessionID: sessionID,
			})
			if report.SessionID != "" {
				if err := writeJSON(cmd, summarize(report, verbose)); err != nil {
					return err
				}
			}
			if runErr != nil {
				return fmt.Errorf("crawl: %w", runErr)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum pages to store (0 uses crawler.default_page_limit)")
	cmd.Flags().StringVar(&sessionID, "session", "", "session id (generated when empty)")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "include every per-URL result")
	return cmd
}

func summarize(report frontier.Report, verbose bool) crawlSummary {
	out := crawlSummary{
		SessionID: report.SessionID,
		Crawled:   report.Crawled,
		Skipped:   report.Count(frontier.StatusSkipped),
		Failed:    report.Count(frontier.StatusFailed),
		Duration:  report.Duration.String(),
	}
	for _, f := range report.Failures() {
		msg := ""
		if f.Err != nil {
			msg = f.Err.Error()
		}
		out.Failures = append(out.Failures, crawlFailure{URL: f.URL, Error: msg})
	}
	if verbose {
		out.Results = report.Results
	}
	return out
}

func newSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query...>",
		Short: "Search stored pages for every query word",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := resolveService(cmd.Context())
			if err != nil {
				return err
			}
			results, err := svc.Search(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			if results == nil {
				results = []search.Result{}
			}
			return writeJSON(cmd, results)
		},
	}
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every stored page and session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := resolveService(cmd.Context())
			if err != nil {
				return err
			}
			if err := svc.Clear(cmd.Context()); err != nil {
				return fmt.Errorf("clear: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "Database cleared successfully")
			return err
		},
	}
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
