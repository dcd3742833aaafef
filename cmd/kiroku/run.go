package main

import (
	"fmt"

	"github.com/harunnryd/kiroku/internal/store"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init <run-id>",
	Short: "Initialize a run",
	Long:  `Creates the run directory, metadata.json, state.json, and the events/ subdirectory for an org/project/uuid run id.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := buildService(cfg)
		if err != nil {
			return err
		}

		workID, _ := cmd.Flags().GetString("work-id")
		origin, _ := cmd.Flags().GetString("origin")

		res := svc.InitRun(args[0], workID, origin)
		return printResult(res, res.Status, res.Error)
	},
}

var getCmd = &cobra.Command{
	Use:   "get <run-id>",
	Short: "Show a run's metadata and state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := buildService(cfg)
		if err != nil {
			return err
		}

		includeEvents, _ := cmd.Flags().GetBool("events")

		res := svc.GetRun(args[0], includeEvents)
		return printResult(res, res.Status, res.Error)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List runs",
	Long:  `Lists run summaries newest-first, using the runs index when available and a directory walk otherwise.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := buildService(cfg)
		if err != nil {
			return err
		}

		filters, err := filtersFromFlags(cmd)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")

		res := svc.ListRuns(filters, limit)
		return printResult(res, res.Status, res.Error)
	},
}

func filtersFromFlags(cmd *cobra.Command) (store.ListFilters, error) {
	org, _ := cmd.Flags().GetString("org")
	project, _ := cmd.Flags().GetString("project")
	workID, _ := cmd.Flags().GetString("work-id")
	status, _ := cmd.Flags().GetString("status")

	if project != "" && org == "" {
		return store.ListFilters{}, fmt.Errorf("--project requires --org")
	}

	return store.ListFilters{
		Org:     org,
		Project: project,
		WorkID:  workID,
		Status:  status,
	}, nil
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().String("work-id", "", "work item the run belongs to")
	initCmd.Flags().String("origin", "", "origin of the run (cli, ci, api)")

	rootCmd.AddCommand(getCmd)
	getCmd.Flags().Bool("events", false, "include the event count")

	rootCmd.AddCommand(listCmd)
	listCmd.Flags().String("org", "", "filter by org")
	listCmd.Flags().String("project", "", "filter by project")
	listCmd.Flags().String("work-id", "", "filter by work item id")
	listCmd.Flags().String("status", "", "filter by run status")
	listCmd.Flags().Int("limit", 50, "maximum number of runs to return")
}
