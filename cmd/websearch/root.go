package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/websearch/internal/app"
	"github.com/JakeFAU/websearch/internal/config"
	"github.com/JakeFAU/websearch/internal/frontier"
	"github.com/JakeFAU/websearch/internal/logging"
	"github.com/JakeFAU/websearch/internal/search"
	"github.com/JakeFAU/websearch/internal/session"
)

// service is the application surface the commands drive.
type service interface {
	Run(ctx context.Context) error
	Crawl(ctx context.Context, req session.StartRequest) (frontier.Report, error)
	Search(ctx context.Context, query string) ([]search.Result, error)
	Clear(ctx context.Context) error
	Close(ctx context.Context) error
}

type serviceKeyType struct{}

// newService builds the application from a config path. Tests replace it.
var newService = func(ctx context.Context, cfgPath string) (service, func(), error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logging.Sync(logger)
		return nil, nil, fmt.Errorf("build application: %w", err)
	}
	return a, func() { logging.Sync(logger) }, nil
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	var cleanup func()

	cmd := &cobra.Command{
		Use:   "websearch",
		Short: "Crawl the web from a seed URL and search the stored pages.",
		Long: `websearch crawls breadth-first from a seed URL within a page budget,
stores each page's visible text and outbound links, and answers keyword
queries ranked by each page's link count.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			svc, done, err := newService(cmd.Context(), cfgFile)
			if err != nil {
				return err
			}
			cleanup = done
			cmd.SetContext(context.WithValue(cmd.Context(), serviceKeyType{}, svc))
			return nil
		},

		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			defer func() {
				if cleanup != nil {
					cleanup()
				}
			}()
			svc, err := resolveService(cmd.Context())
			if err != nil {
				return nil
			}
			if err := svc.Close(context.WithoutCancel(cmd.Context())); err != nil {
				return fmt.Errorf("close application: %w", err)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON); WEBSEARCH_* env vars override it")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newClearCmd())
	return cmd
}

func resolveService(ctx context.Context) (service, error) {
	if ctx == nil {
		return nil, errors.New("application services not initialized")
	}
	svc, ok := ctx.Value(serviceKeyType{}).(service)
	if !ok || svc == nil {
		return nil, errors.New("application services not initialized")
	}
	return svc, nil
}
