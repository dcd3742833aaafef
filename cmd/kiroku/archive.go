package main

import (
	"github.com/spf13/cobra"
)

var consolidateCmd = &cobra.Command{
	Use:   "consolidate <run-id>",
	Short: "Consolidate a run's events into events.jsonl",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := buildService(cfg)
		if err != nil {
			return err
		}

		res := svc.ConsolidateEvents(args[0])
		return printResult(res, res.Status, res.Error)
	},
}

var archiveCmd = &cobra.Command{
	Use:   "archive <run-id>",
	Short: "Upload a run's artifacts to object storage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := buildService(cfg)
		if err != nil {
			return err
		}

		res := svc.ArchiveRun(cmd.Context(), args[0])
		return printResult(res, res.Status, res.Error)
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <run-id>",
	Short: "Restore a run's archived artifacts to local storage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := buildService(cfg)
		if err != nil {
			return err
		}

		res := svc.RestoreRun(cmd.Context(), args[0])
		return printResult(res, res.Status, res.Error)
	},
}

var archivedCmd = &cobra.Command{
	Use:   "archived",
	Short: "List runs present in object storage",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := buildService(cfg)
		if err != nil {
			return err
		}

		filters, err := filtersFromFlags(cmd)
		if err != nil {
			return err
		}

		res := svc.ListArchived(cmd.Context(), filters)
		return printResult(res, res.Status, res.Error)
	},
}

func init() {
	rootCmd.AddCommand(consolidateCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(restoreCmd)

	rootCmd.AddCommand(archivedCmd)
	archivedCmd.Flags().String("org", "", "filter by org")
	archivedCmd.Flags().String("project", "", "filter by project")
}
