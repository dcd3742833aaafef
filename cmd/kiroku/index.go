package main

import (
	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the runs index",
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the runs index from a full directory walk",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := buildService(cfg)
		if err != nil {
			return err
		}

		res := svc.RebuildIndex()
		return printResult(res, res.Status, res.Error)
	},
}

func init() {
	indexCmd.AddCommand(indexRebuildCmd)
	rootCmd.AddCommand(indexCmd)
}
