package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MOE349/tenmil-backend-sub001/config"
	"github.com/MOE349/tenmil-backend-sub001/logging"
)

var beatLogLevel string

var beatCmd = &cobra.Command{
	Use:   "beat",
	Short: "Run the scheduler and beat tasks without the HTTP API",
	RunE:  runBeat,
}

func init() {
	beatCmd.Flags().StringVar(&beatLogLevel, "loglevel", "INFO", "Log level: DEBUG, INFO, WARNING, ERROR or CRITICAL")
}

func runBeat(_ *cobra.Command, _ []string) error {
	if _, err := logging.ParseLevel(beatLogLevel); err != nil {
		return fmt.Errorf("invalid --loglevel: %w", err)
	}

	c, err := buildContainer(func(cfg *config.Config) {
		cfg.LogLevel = beatLogLevel
	})
	if err != nil {
		return err
	}
	defer closeContainer(c)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := startScheduling(ctx, c, true); err != nil {
		return err
	}
	c.Logger().Info("beat running", "jobs", c.Scheduler().Len())

	<-ctx.Done()
	c.Scheduler().Stop()
	return nil
}
