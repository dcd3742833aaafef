package main

import (
	"fmt"
	"os"

	"github.com/harunnryd/kiroku/internal/config"
	"github.com/harunnryd/kiroku/internal/logger"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "kiroku",
	Short: "Kiroku run-event store",
	Long:  `Kiroku is an embedded, append-only event log for workflow runs, with consolidation, indexing, and S3 archival.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cmd)
		if err != nil {
			return err
		}

		logger.Setup(cfg.Log.Level)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.kiroku/config.yaml)")
	rootCmd.PersistentFlags().String("log.level", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("store.base_path", "", "base directory for run storage (default is $HOME/.kiroku/runs)")
}
