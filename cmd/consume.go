package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/search-indexer/internal/api"
	"github.com/JakeFAU/search-indexer/internal/server"
)

func newConsumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Runs the delivery loop",
		Long: `Starts the configured number of consumers against the configured transport
and storage backend, and serves health, readiness, metrics and stats on the ops
port until the stream ends or the process is signaled.`,
		RunE: runConsumeCommand,
	}
}

func runConsumeCommand(cmd *cobra.Command, _ []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := a.Config()

	group, err := a.ConsumerGroup(cmd.Context())
	if err != nil {
		return fmt.Errorf("build consumers: %w", err)
	}
	a.Logger().Info("starting consumers",
		zap.Int("instances", group.Len()),
		zap.String("transport", cfg.Transport.Kind),
		zap.String("storage", cfg.Storage.Kind),
	)

	apiServer := api.NewServer(a.Stats(), nil, a.Logger())
	runner := server.New(fmt.Sprintf(":%d", cfg.Server.Port), apiServer, group, a.Logger())
	if err := runner.Run(cmd.Context()); err != nil {
		return fmt.Errorf("run consumers: %w", err)
	}

	snap := a.Stats().Snapshot()
	a.Logger().Info("consume command finished",
		zap.Uint64("accepted", snap.Accepted),
		zap.Uint64("rejected", snap.Rejected),
	)
	return nil
}
