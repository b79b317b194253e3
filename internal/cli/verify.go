package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/sagalog/internal/store"
)

// VerifyInstance is the verification result for a single instance.
type VerifyInstance struct {
	InstanceID string   `json:"instance_id"`
	Status     string   `json:"status"`
	Violations []string `json:"violations,omitempty"`
}

// VerifyResult holds the overall verification result.
type VerifyResult struct {
	Instances []VerifyInstance `json:"instances"`
	Total     int              `json:"total"`
	InFlight  int              `json:"in_flight"`
	Invalid   int              `json:"invalid"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check every instance against the step protocol",
		Long: `Check that every step instance holds at most one precall and one call,
that the call follows the precall, and that all events name the same step.

In-flight instances are reported but are not violations: the next run of
their saga probes them.

Exit codes:
  0 - All instances are valid
  1 - At least one instance violates the protocol
  2 - Command error (repository unreachable, etc.)

Examples:
  sagalog verify --db ./sagalog.db
  sagalog verify --backend redis --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(rootOpts, cmd)
		},
	}
}

func runVerify(opts *RootOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	repo, closeRepo, err := opts.repository(ctx)
	if err != nil {
		return err
	}
	defer closeRepo()

	states, err := store.InspectAll(ctx, repo)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to inspect repository", err)
	}

	result := VerifyResult{Instances: make([]VerifyInstance, 0, len(states)), Total: len(states)}
	for _, st := range states {
		result.Instances = append(result.Instances, VerifyInstance{
			InstanceID: st.InstanceID,
			Status:     st.Status(),
			Violations: st.Violations,
		})
		if len(st.Violations) > 0 {
			result.Invalid++
		} else if st.InFlight() {
			result.InFlight++
		}
	}

	out := opts.formatter(cmd)
	if out.IsJSON() {
		if result.Invalid > 0 {
			return out.Fail(ExitFailure, CodeViolation, "protocol violations found", result, nil)
		}
		return out.Success(result)
	}

	w := out.Writer
	fmt.Fprintf(w, "Verified %d instance(s): %d in-flight, %d invalid\n", result.Total, result.InFlight, result.Invalid)
	for _, inst := range result.Instances {
		if len(inst.Violations) == 0 {
			out.VerboseLog("ok   %s (%s)", inst.InstanceID, inst.Status)
			continue
		}
		fmt.Fprintf(w, "FAIL %s\n", inst.InstanceID)
		for _, v := range inst.Violations {
			fmt.Fprintf(w, "  - %s\n", v)
		}
	}
	if result.Invalid > 0 {
		return NewExitError(ExitFailure, "protocol violations found")
	}
	return nil
}
