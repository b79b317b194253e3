package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewPurgeCommand creates the purge command.
func NewPurgeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge <instance>...",
		Short: "Delete the history of step instances",
		Long: `Delete every event recorded for the given step instances. A purged step
runs as fresh the next time its saga runs.

Examples:
  sagalog purge order-1/0 order-1/1`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPurge(rootOpts, args, cmd)
		},
	}
}

func runPurge(opts *RootOptions, ids []string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	repo, closeRepo, err := opts.repository(ctx)
	if err != nil {
		return err
	}
	defer closeRepo()

	for _, id := range ids {
		if err := repo.Delete(ctx, id); err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to purge %s", id), err)
		}
	}

	out := opts.formatter(cmd)
	if out.IsJSON() {
		return out.Success(map[string]any{"purged": ids})
	}
	return out.Success(fmt.Sprintf("Purged %d instance(s).", len(ids)))
}
