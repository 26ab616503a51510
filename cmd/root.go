// Package cmd defines the CLI commands of the indexer executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/search-indexer/internal/app"
	"github.com/JakeFAU/search-indexer/internal/config"
	"github.com/JakeFAU/search-indexer/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// newApp builds the service container. Tests replace it to avoid touching
// real infrastructure.
var newApp = func(cfg config.Config, logger *zap.Logger) *app.App {
	return app.New(cfg, logger)
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "indexer",
		Short: "Consumes crawl results from a message queue and stores them.",
		Long: `indexer reads crawl-result messages from a queue, validates them against
the crawler message schema, normalizes their text and hands them to a storage
backend, acknowledging every message exactly once.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development, logging.WithLevel(cfg.Logging.Level))
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			zap.ReplaceGlobals(logger)

			a := newApp(cfg, logger)
			if err := a.InitTracing(cmd.Context()); err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return
			}
			if err := a.Close(); err != nil {
				a.Logger().Warn("shutdown failed", zap.Error(err))
			}
			_ = a.Logger().Sync()
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	cmd.AddCommand(newConsumeCmd(), newCrawlCmd())
	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	a, ok := ctx.Value(appKey).(*app.App)
	if !ok || a == nil {
		return nil, errors.New("application services not initialized")
	}
	return a, nil
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		zap.L().Error("command execution failed", zap.Error(err))
		os.Exit(1)
	}
}
