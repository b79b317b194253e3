package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/sagalog/internal/ir"
	"github.com/roach88/sagalog/internal/metrics"
	"github.com/roach88/sagalog/internal/saga"
	"github.com/roach88/sagalog/internal/store"
)

// compensationName names the event pair recording a saga's compensation.
const compensationName = "compensate"

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	SagaID  string
	OrderID string
	Amount  int64
	FailAt  int
	Metrics bool

	// IDGenerator allows overriding the saga id generator (for testing).
	// If nil, defaults to saga.UUIDv7Generator.
	IDGenerator saga.IDGenerator
}

// RunResult reports one run of the order saga.
type RunResult struct {
	SagaID      string   `json:"saga_id"`
	Status      string   `json:"status"` // "completed" | "failed"
	Result      any      `json:"result,omitempty"`
	Error       string   `json:"error,omitempty"`
	Compensated []string `json:"compensated,omitempty"`

	// CompensationReplayed is set when an earlier run already compensated
	// the saga; Compensated then lists what that run undid.
	CompensationReplayed bool `json:"compensation_replayed,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}
	return newRunCommand(opts)
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the built-in order saga",
		Long: `Run the order saga (reserveInventory, chargePayment, shipOrder) against
the configured repository. When a step fails, the compensations of every
step recorded so far run in reverse order.

Running again with the same --saga replays recorded steps instead of
executing them, so a completed saga reports the same result and a failed
one reports the same failure. Completed compensations are recorded in the
<saga>/compensation instance and are not run again; a compensation that
failed or was interrupted is retried.

Exit codes:
  0 - Saga completed
  1 - Saga failed (compensations were run)
  2 - Command error

Examples:
  sagalog run --db ./sagalog.db
  sagalog run --saga order-1 --fail-at 2
  sagalog run --backend memory --metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrderSaga(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.SagaID, "saga", "", "saga id (default: a new UUIDv7)")
	cmd.Flags().StringVar(&opts.OrderID, "order", "", "order id (default: the saga id)")
	cmd.Flags().Int64Var(&opts.Amount, "amount", 1000, "amount to charge, in cents")
	cmd.Flags().IntVar(&opts.FailAt, "fail-at", 0, "make step n fail (1 reserve, 2 charge, 3 ship)")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "print Prometheus metrics to stderr after the run")

	return cmd
}

func runOrderSaga(opts *RunOptions, cmd *cobra.Command) error {
	if opts.FailAt < 0 || opts.FailAt > 3 {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid --fail-at %d: must be between 0 and 3", opts.FailAt))
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := opts.repository(ctx)
	if err != nil {
		return err
	}
	defer closeRepo()

	sagaID := opts.SagaID
	if sagaID == "" {
		gen := opts.IDGenerator
		if gen == nil {
			gen = saga.UUIDv7Generator{}
		}
		sagaID = gen.Generate()
	}
	req := OrderRequest{OrderID: opts.OrderID, Amount: opts.Amount, FailAt: opts.FailAt}
	if req.OrderID == "" {
		req.OrderID = sagaID
	}

	m := metrics.New(nil)
	rt := saga.NewRuntime(repo,
		saga.WithLogger(slog.Default()),
		saga.WithMetrics(m),
		saga.WithValues(map[string]string{"backend": opts.Config.Backend}),
	)
	demo := newOrderSaga()

	slog.Info("running order saga", "saga_id", sagaID, "order_id", req.OrderID)
	res, runErr := saga.RunWorkflow(ctx, rt, demo.workflow(), sagaID, req)

	out := opts.formatter(cmd)
	if opts.Metrics {
		defer func() {
			if err := m.WritePrometheus(out.GetErrWriter()); err != nil {
				slog.Warn("failed to write metrics", "error", err)
			}
		}()
	}

	if runErr == nil {
		result := RunResult{SagaID: sagaID, Status: "completed", Result: res}
		if out.IsJSON() {
			return out.Success(result)
		}
		fmt.Fprintf(out.Writer, "Saga %s completed\n", sagaID)
		if shp, ok := res.(Shipment); ok {
			fmt.Fprintf(out.Writer, "  tracking: %s\n", shp.Tracking)
		}
		return nil
	}

	if ctx.Err() != nil {
		// Interrupted: the saga resumes on the next run, nothing to undo yet.
		return WrapExitError(ExitCommandError, "saga interrupted", runErr)
	}

	result := RunResult{SagaID: sagaID, Status: "failed", Error: runErr.Error()}
	compensated, replayed, compErr := compensateOnce(ctx, repo, rt, demo, sagaID)
	result.Compensated = compensated
	result.CompensationReplayed = replayed
	if compErr != nil {
		return out.Fail(ExitFailure, CodeCompensation, "compensation failed", result, compErr)
	}
	if !out.IsJSON() {
		fmt.Fprintf(out.Writer, "Saga %s failed: %v\n", sagaID, runErr)
		label := "compensated"
		if replayed {
			label = "compensated earlier"
		}
		for _, c := range result.Compensated {
			fmt.Fprintf(out.Writer, "  %s: %s\n", label, c)
		}
	}
	return out.Fail(ExitFailure, CodeSagaFailed, "saga failed", result, runErr)
}

// compensateOnce runs the saga's rollback actions unless an earlier run
// recorded a completed compensation. A precall is appended before the
// actions run and a call only once all of them succeed, so a failed or
// interrupted compensation is retried by the next run.
func compensateOnce(ctx context.Context, repo store.Repository, rt *saga.Runtime, demo *orderSaga, sagaID string) ([]string, bool, error) {
	instanceID := sagaID + "/compensation"
	state, err := store.Inspect(ctx, repo, instanceID)
	if err != nil {
		return nil, false, err
	}
	if state.Complete() && state.Success {
		var done []string
		call := state.Events[len(state.Events)-1].(ir.Call)
		if err := json.Unmarshal(call.Ret, &done); err != nil {
			return nil, true, fmt.Errorf("decode recorded compensation of %s: %w", sagaID, err)
		}
		slog.Info("compensation already recorded", "saga_id", sagaID)
		return done, true, nil
	}

	stream := store.NewStream(repo, instanceID)
	if err := stream.Publish(ctx, ir.Precall{StepID: instanceID, Name: compensationName}); err != nil {
		return nil, false, err
	}
	if err := rt.Compensate(sagaID); err != nil {
		return demo.compensations(), false, err
	}
	done := demo.compensations()
	ret, err := json.Marshal(done)
	if err != nil {
		return done, false, err
	}
	call := ir.Call{StepID: instanceID, Name: compensationName, Success: true, Ret: ret}
	if err := stream.Publish(ctx, call); err != nil {
		return done, false, err
	}
	return done, false, nil
}
