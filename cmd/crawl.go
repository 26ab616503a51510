package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl [urls...]",
		Short: "Fetches pages and publishes crawl results",
		Long: `Fetches each URL (or crawler.targets from the configuration when none are
given), extracts title, description and visible text, and publishes one
crawl-result message per page to the configured publisher.`,
		RunE: runCrawlCommand,
	}
}

func runCrawlCommand(cmd *cobra.Command, args []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	targets := args
	if len(targets) == 0 {
		targets = a.Config().Crawler.Targets
	}
	if len(targets) == 0 {
		return errors.New("no urls given and crawler.targets is empty")
	}

	producer, err := a.Producer(cmd.Context())
	if err != nil {
		return fmt.Errorf("build producer: %w", err)
	}

	summary, err := producer.Run(cmd.Context(), targets)
	a.Logger().Info("crawl command finished",
		zap.Int("published", summary.Published),
		zap.Int("failed", summary.Failed),
	)
	if err != nil && summary.Published == 0 {
		return fmt.Errorf("crawl: %w", err)
	}
	return nil
}
