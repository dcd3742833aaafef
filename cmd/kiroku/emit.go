package main

import (
	"fmt"
	"strings"

	"github.com/harunnryd/kiroku/internal/store"

	"github.com/spf13/cobra"
)

var emitCmd = &cobra.Command{
	Use:   "emit <run-id>",
	Short: "Append an event to a run's log",
	Long:  `Allocates the next event id, writes the event file under events/, and advances the run state summary.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := buildService(cfg)
		if err != nil {
			return err
		}

		input, err := eventInputFromFlags(cmd)
		if err != nil {
			return err
		}

		res := svc.EmitEvent(args[0], input)
		return printResult(res, res.Status, res.Error)
	},
}

func eventInputFromFlags(cmd *cobra.Command) (store.EventInput, error) {
	typ, _ := cmd.Flags().GetString("type")
	phase, _ := cmd.Flags().GetString("phase")
	step, _ := cmd.Flags().GetString("step")
	status, _ := cmd.Flags().GetString("status")
	message, _ := cmd.Flags().GetString("message")
	durationMS, _ := cmd.Flags().GetInt64("duration-ms")
	metaPairs, _ := cmd.Flags().GetStringSlice("meta")
	artifacts, _ := cmd.Flags().GetStringSlice("artifact")
	errCode, _ := cmd.Flags().GetString("error-code")
	errMessage, _ := cmd.Flags().GetString("error-message")

	input := store.EventInput{
		Type:      store.EventType(typ),
		Phase:     phase,
		Step:      step,
		Status:    status,
		Message:   message,
		Artifacts: artifacts,
	}

	if cmd.Flags().Changed("duration-ms") {
		input.DurationMS = &durationMS
	}

	if len(metaPairs) > 0 {
		meta := make(map[string]any, len(metaPairs))
		for _, pair := range metaPairs {
			key, value, found := strings.Cut(pair, "=")
			if !found || key == "" {
				return store.EventInput{}, fmt.Errorf("invalid --meta entry %q, expected key=value", pair)
			}
			meta[key] = value
		}
		input.Metadata = meta
	}

	if errCode != "" || errMessage != "" {
		input.Error = &store.EventError{Code: errCode, Message: errMessage}
	}

	return input, nil
}

func init() {
	rootCmd.AddCommand(emitCmd)
	emitCmd.Flags().String("type", "", "event type (required)")
	emitCmd.Flags().String("phase", "", "workflow phase")
	emitCmd.Flags().String("step", "", "step within the phase")
	emitCmd.Flags().String("status", "", "status carried by the event")
	emitCmd.Flags().String("message", "", "human-readable message")
	emitCmd.Flags().Int64("duration-ms", 0, "duration of the completed work in milliseconds")
	emitCmd.Flags().StringSlice("meta", nil, "metadata entries as key=value")
	emitCmd.Flags().StringSlice("artifact", nil, "artifact paths produced by the event")
	emitCmd.Flags().String("error-code", "", "error code for failure events")
	emitCmd.Flags().String("error-message", "", "error message for failure events")
	emitCmd.MarkFlagRequired("type")
}
