package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/sagalog/internal/ir"
)

// HistoryEvent is one event of an instance's history as printed by the
// history command.
type HistoryEvent struct {
	Seq   int             `json:"seq"`
	ID    string          `json:"id"`
	Event json.RawMessage `json:"event"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <instance>",
		Short: "Print an instance's events in order",
		Long: `Print the events recorded for a step instance, in append order, in their
wire format. Each event is shown with its content-addressed id.

Examples:
  sagalog history order-1/0
  sagalog history order-1/0 --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(rootOpts, args[0], cmd)
		},
	}
}

func runHistory(opts *RootOptions, instanceID string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	repo, closeRepo, err := opts.repository(ctx)
	if err != nil {
		return err
	}
	defer closeRepo()

	events, err := repo.Read(ctx, instanceID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read history", err)
	}

	rows := make([]HistoryEvent, 0, len(events))
	for i, ev := range events {
		data, err := ir.MarshalEvent(ev)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to encode event", err)
		}
		id, err := ir.EventID(instanceID, ev)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to hash event", err)
		}
		rows = append(rows, HistoryEvent{Seq: i + 1, ID: id, Event: data})
	}

	out := opts.formatter(cmd)
	if out.IsJSON() {
		return out.Success(rows)
	}
	if len(rows) == 0 {
		fmt.Fprintf(out.Writer, "No events for %s.\n", instanceID)
		return nil
	}
	for _, r := range rows {
		fmt.Fprintf(out.Writer, "%d %s\n", r.Seq, r.Event)
		out.VerboseLog("  id: %s", r.ID)
	}
	return nil
}
