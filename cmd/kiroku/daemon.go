package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harunnryd/kiroku/internal/maintenance"

	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run background maintenance for the store",
	Long:  `Starts the maintenance scheduler: periodic index rebuilds and, when enabled, auto-archival of completed runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return fmt.Errorf("config not loaded")
		}

		svc, err := buildService(cfg)
		if err != nil {
			return err
		}

		runner, err := maintenance.NewRunner(svc, cfg.Maintenance, cfg.Archive.Endpoint != "")
		if err != nil {
			return fmt.Errorf("failed to create maintenance runner: %w", err)
		}
		if err := runner.Start(); err != nil {
			return fmt.Errorf("failed to start maintenance runner: %w", err)
		}

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		slog.Info("Shutdown signal received, stopping maintenance runner")

		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		runner.Stop(stopCtx)

		slog.Info("Maintenance runner stopped gracefully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
