package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/sagalog/internal/history"
	"github.com/roach88/sagalog/internal/store"
)

// ReconcileResult is the reconciled state of one step.
type ReconcileResult struct {
	InstanceID string          `json:"instance_id"`
	Name       string          `json:"name"`
	State      string          `json:"state"`
	Success    *bool           `json:"success,omitempty"`
	Ret        json.RawMessage `json:"ret,omitempty"`
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <instance> <name>",
		Short: "Show how a step would resume",
		Long: `Reconcile a step instance's history with an effect name, exactly as the
engine does before running the step, and print the resulting state:

  fresh       no events; the effect will run
  in-flight   precall only; the probe decides whether the effect re-runs
  completed   precall and call; the recorded outcome is replayed

The instance id is also the step id.

Exit codes:
  0 - History is consistent with the step
  1 - History belongs to another step or violates the protocol
  2 - Command error

Examples:
  sagalog reconcile order-1/1 chargePayment`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(rootOpts, args[0], args[1], cmd)
		},
	}
}

func runReconcile(opts *RootOptions, instanceID, name string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	repo, closeRepo, err := opts.repository(ctx)
	if err != nil {
		return err
	}
	defer closeRepo()

	out := opts.formatter(cmd)
	rec, err := history.Reconcile(ctx, store.NewStream(repo, instanceID), instanceID, name)
	switch {
	case history.IsUnexpectedEvent(err):
		return out.Fail(ExitFailure, CodeUnexpected, "history does not match step", nil, err)
	case errors.Is(err, history.ErrContractViolation):
		return out.Fail(ExitFailure, CodeViolation, "history violates the step protocol", nil, err)
	case err != nil:
		return WrapExitError(ExitCommandError, "failed to reconcile", err)
	}

	result := ReconcileResult{InstanceID: instanceID, Name: name, State: rec.State.String()}
	if rec.Call != nil {
		success := rec.Call.Success
		result.Success = &success
		result.Ret = rec.Call.Ret
	}

	if out.IsJSON() {
		return out.Success(result)
	}
	fmt.Fprintf(out.Writer, "%s %s: %s\n", instanceID, name, result.State)
	if result.Success != nil {
		fmt.Fprintf(out.Writer, "  success: %t\n", *result.Success)
		fmt.Fprintf(out.Writer, "  ret: %s\n", result.Ret)
	}
	return nil
}
