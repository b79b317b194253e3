package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/sagalog/internal/store"
)

// InstanceSummary is one row of the instances listing.
type InstanceSummary struct {
	InstanceID string `json:"instance_id"`
	Status     string `json:"status"`
	Events     int    `json:"events"`
}

// NewInstancesCommand creates the instances command.
func NewInstancesCommand(rootOpts *RootOptions) *cobra.Command {
	var inFlightOnly bool

	cmd := &cobra.Command{
		Use:   "instances",
		Short: "List step instances in the repository",
		Long: `List every step instance that has recorded events, with its status:
fresh, in-flight (precall without call), succeeded, failed or invalid.

Examples:
  sagalog instances --db ./sagalog.db
  sagalog instances --in-flight --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstances(rootOpts, inFlightOnly, cmd)
		},
	}
	cmd.Flags().BoolVar(&inFlightOnly, "in-flight", false, "only list instances interrupted between precall and call")
	return cmd
}

func runInstances(opts *RootOptions, inFlightOnly bool, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	repo, closeRepo, err := opts.repository(ctx)
	if err != nil {
		return err
	}
	defer closeRepo()

	var states []store.InstanceState
	if inFlightOnly {
		states, err = store.FindInFlight(ctx, repo)
	} else {
		states, err = store.InspectAll(ctx, repo)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list instances", err)
	}

	rows := make([]InstanceSummary, 0, len(states))
	for _, st := range states {
		rows = append(rows, InstanceSummary{InstanceID: st.InstanceID, Status: st.Status(), Events: len(st.Events)})
	}

	out := opts.formatter(cmd)
	if out.IsJSON() {
		return out.Success(rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(out.Writer, "No instances found.")
		return nil
	}
	for _, r := range rows {
		fmt.Fprintf(out.Writer, "%-40s %-10s %d event(s)\n", r.InstanceID, r.Status, r.Events)
	}
	return nil
}
