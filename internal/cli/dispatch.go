package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/subsku/internal/dispatch"
)

// DispatchOptions holds flags for the dispatch command.
type DispatchOptions struct {
	*RootOptions
	StoreFlags
}

// DispatchResult is the output of the dispatch command.
type DispatchResult struct {
	Outcomes  []dispatch.Outcome `json:"outcomes"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
}

// NewDispatchCommand creates the dispatch command.
func NewDispatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DispatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dispatch <events.yaml>",
		Short: "Run events from a file synchronously",
		Long: `Feed the events in a YAML file to the engine, one at a time, and print
each outcome. No queue and no retries: a failed event is reported and the
next one runs.

File format:
  events:
    - topic: orders/create
      payload:
        order_id: "1001"
        line_items: [{id: li1, sku: ABC, quantity: 2}]

Exit codes:
  0 - Every event succeeded
  1 - One or more events failed
  2 - Command error (unreadable file, bad config, etc.)

Example:
  subsku dispatch --db ./subsku.db --platform-state platform.yaml events.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDispatch(opts, args[0], cmd)
		},
	}

	opts.StoreFlags.register(cmd)
	return cmd
}

func runDispatch(opts *DispatchOptions, path string, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions, &opts.StoreFlags)
	if err != nil {
		return err
	}
	logger := setupLogging(opts.RootOptions, cfg)

	envelopes, err := dispatch.LoadEnvelopes(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load events", err)
	}

	a, err := openApp(cfg, opts.PlatformState, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	formatter := newFormatter(opts.RootOptions, cmd)
	result := DispatchResult{Outcomes: make([]dispatch.Outcome, 0, len(envelopes))}

	for i, env := range envelopes {
		ev, err := env.Decode()
		if err != nil {
			out := dispatch.Outcome{Topic: env.Topic, Error: err.Error(), Err: err}
			result.Outcomes = append(result.Outcomes, out)
			result.Failed++
			formatter.VerboseLog("event %d: %v", i, err)
			continue
		}
		formatter.VerboseLog("event %d: %s %s", i, ev.Topic(), ev.Key())

		out := a.dispatcher.Dispatch(cmd.Context(), ev)
		result.Outcomes = append(result.Outcomes, out)
		if out.Success {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}

	if opts.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		for _, out := range result.Outcomes {
			fmt.Fprintln(w, formatOutcome(out))
		}
		fmt.Fprintf(w, "\nDispatched %d event(s): %d succeeded, %d failed\n",
			len(result.Outcomes), result.Succeeded, result.Failed)
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d event(s) failed", result.Failed))
	}
	return nil
}

// formatOutcome renders one outcome as a single text line.
func formatOutcome(out dispatch.Outcome) string {
	mark := "✓"
	if !out.Success {
		mark = "✗"
	}
	line := fmt.Sprintf("%s %s %s", mark, out.Topic, out.Key)

	if out.Data != nil {
		if out.Data.Duplicate {
			return line + " (duplicate)"
		}
		parts := make([]string, 0, len(out.Data.Items))
		for _, it := range out.Data.Items {
			id := it.LineItemID
			if id == "" {
				id = it.SKU
			}
			part := fmt.Sprintf("%s: %s", id, it.Status)
			if len(it.SubUnits) > 0 {
				part += " " + strings.Join(it.SubUnits, ",")
			}
			parts = append(parts, part)
		}
		if len(parts) > 0 {
			line += " (" + strings.Join(parts, "; ") + ")"
		}
	}
	if out.Error != "" {
		line += "\n  " + out.Error
	}
	return line
}
