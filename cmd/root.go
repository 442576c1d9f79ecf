// Package cmd implements the tenmil backend CLI using cobra.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MOE349/tenmil-backend-sub001/config"
	"github.com/MOE349/tenmil-backend-sub001/container"
)

const version = "0.1.0"

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:           "tenmil",
	Short:         "Tenmil backend: saving plans and their scheduled cron jobs",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = version

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(beatCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(cronjobCmd)
}

// buildContainer loads the configuration, applies overrides and wires services
func buildContainer(override func(*config.Config)) (*container.Container, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if override != nil {
		override(cfg)
	}
	return container.New(cfg)
}
