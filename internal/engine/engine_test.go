package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/roach88/sagalog/internal/effect"
	"github.com/roach88/sagalog/internal/history"
	"github.com/roach88/sagalog/internal/ir"
	"github.com/roach88/sagalog/internal/metrics"
	"github.com/roach88/sagalog/internal/rollback"
	"github.com/roach88/sagalog/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixture bundles the collaborators of one ExecuteStep call.
type fixture struct {
	engine  *Engine
	journal *testutil.Journal
	pub     *testutil.Publisher
	stack   *rollback.Stack
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	j := testutil.NewJournal()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	return &fixture{
		engine:  New(opts...),
		journal: j,
		pub:     testutil.NewPublisher(j),
		stack:   rollback.NewStack(quietLogger()),
	}
}

func (f *fixture) exec(ctx context.Context, stepID string, step effect.Step, events ...ir.Event) (any, error) {
	return f.engine.ExecuteStep(ctx, stepID, step, history.NewSliceIterator(events...), f.pub, f.stack.Register)
}

func successCall(stepID, name string, ret string) ir.Call {
	return ir.Call{StepID: stepID, Name: name, Success: true, Ret: json.RawMessage(ret)}
}

func failedCall(t *testing.T, stepID, name string, err error) ir.Call {
	t.Helper()
	ret, encErr := effect.EncodeError(err)
	require.NoError(t, encErr)
	return ir.Call{StepID: stepID, Name: name, Success: false, Ret: ret}
}

func TestExecuteStep_FreshSuccess(t *testing.T) {
	f := newFixture(t)
	eff := &testutil.Effect{Name: "effect1", Result: "result", Journal: f.journal}

	res, err := f.exec(context.Background(), "step1", eff.Bind("arg"))
	require.NoError(t, err)
	assert.Equal(t, "result", res)

	assert.Equal(t, []ir.Event{
		ir.Precall{StepID: "step1", Name: "effect1"},
		successCall("step1", "effect1", `"result"`),
	}, f.pub.Events())
	assert.Equal(t, 1, eff.Calls())
	assert.Equal(t, 0, eff.Probes())

	require.Equal(t, 1, f.stack.Len())
	require.NoError(t, f.stack.Compensate())
	assert.Equal(t, []testutil.RollbackCall{{Succeeded: true, Result: "result", Args: "arg"}}, eff.Rollbacks())
}

func TestExecuteStep_FreshOrdering(t *testing.T) {
	f := newFixture(t)
	eff := &testutil.Effect{Name: "effect1", Result: "result", Journal: f.journal}

	_, err := f.exec(context.Background(), "step1", eff.Bind(nil))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"publish precall step1/effect1",
		"effect effect1",
		"publish call step1/effect1",
	}, f.journal.Lines())
}

func TestExecuteStep_ReplaySuccessIsIdempotent(t *testing.T) {
	f := newFixture(t)
	eff := &testutil.Effect{Name: "effect1", Result: "fresh-value", Journal: f.journal}
	hist := []ir.Event{
		ir.Precall{StepID: "step1", Name: "effect1"},
		successCall("step1", "effect1", `"recorded"`),
	}

	for range 3 {
		res, err := f.exec(context.Background(), "step1", eff.Bind("arg"), hist...)
		require.NoError(t, err)
		assert.Equal(t, "recorded", res)
	}

	assert.Equal(t, 0, eff.Calls())
	assert.Equal(t, 0, eff.Probes())
	assert.Empty(t, f.pub.Events())
	assert.Equal(t, 3, f.stack.Len())

	require.NoError(t, f.stack.Compensate())
	for _, rb := range eff.Rollbacks() {
		assert.Equal(t, testutil.RollbackCall{Succeeded: true, Result: "recorded", Args: "arg"}, rb)
	}
}

func TestExecuteStep_ReplayFailure(t *testing.T) {
	f := newFixture(t)
	eff := &testutil.Effect{Name: "effect1", Result: "never"}
	recorded := effect.NewFailure("declined", "card %s declined", "4242")
	hist := []ir.Event{
		ir.Precall{StepID: "step1", Name: "effect1"},
		failedCall(t, "step1", "effect1", recorded),
	}

	var errs []error
	for range 2 {
		res, err := f.exec(context.Background(), "step1", eff.Bind("arg"), hist...)
		require.Error(t, err)
		assert.Nil(t, res)
		errs = append(errs, err)
	}

	assert.ErrorIs(t, errs[0], recorded)
	assert.Equal(t, errs[0], errs[1])
	var failure *effect.Failure
	require.True(t, errors.As(errs[0], &failure))
	assert.Equal(t, "declined", failure.Kind)

	assert.Equal(t, 0, eff.Calls())
	assert.Empty(t, f.pub.Events())
	require.Equal(t, 2, f.stack.Len())
	require.NoError(t, f.stack.Compensate())
	for _, rb := range eff.Rollbacks() {
		assert.Equal(t, testutil.RollbackCall{Succeeded: false, Result: nil, Args: "arg"}, rb)
	}
}

func TestExecuteStep_InFlightProbeSucceeded(t *testing.T) {
	f := newFixture(t)
	eff := &testutil.Effect{Name: "charge", Result: "ch-new", ProbeSucceeded: true, ProbeResult: "ch-old", Journal: f.journal}

	res, err := f.exec(context.Background(), "step1", eff.Bind("order-1"), ir.Precall{StepID: "step1", Name: "charge"})
	require.NoError(t, err)
	assert.Equal(t, "ch-old", res)

	assert.Equal(t, []ir.Event{successCall("step1", "charge", `"ch-old"`)}, f.pub.Events())
	assert.Equal(t, 0, eff.Calls())
	assert.Equal(t, 1, eff.Probes())

	require.NoError(t, f.stack.Compensate())
	assert.Equal(t, []testutil.RollbackCall{{Succeeded: true, Result: "ch-old", Args: "order-1"}}, eff.Rollbacks())
}

func TestExecuteStep_InFlightCallNeeded(t *testing.T) {
	f := newFixture(t)
	eff := &testutil.Effect{Name: "charge", Result: "ch-new", Journal: f.journal}

	res, err := f.exec(context.Background(), "step1", eff.Bind("order-1"), ir.Precall{StepID: "step1", Name: "charge"})
	require.NoError(t, err)
	assert.Equal(t, "ch-new", res)

	assert.Equal(t, []ir.Event{successCall("step1", "charge", `"ch-new"`)}, f.pub.Events())
	assert.Equal(t, []string{
		"probe charge",
		"effect charge",
		"publish call step1/charge",
	}, f.journal.Lines())
	assert.Equal(t, 1, f.stack.Len())
}

func TestExecuteStep_InFlightCallNeededFailure(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("gateway timeout")
	eff := &testutil.Effect{Name: "charge", Err: boom}

	_, err := f.exec(context.Background(), "step1", eff.Bind(nil), ir.Precall{StepID: "step1", Name: "charge"})
	assert.Equal(t, boom, err)
	assert.Equal(t, []ir.Event{failedCall(t, "step1", "charge", boom)}, f.pub.Events())
	assert.Equal(t, 1, f.stack.Len())
}

func TestExecuteStep_FreshFailureIsRecorded(t *testing.T) {
	f := newFixture(t)
	declined := effect.NewFailure("declined", "insufficient funds")
	eff := &testutil.Effect{Name: "charge", Err: declined}

	res, err := f.exec(context.Background(), "step1", eff.Bind("order-1"))
	assert.Nil(t, res)
	assert.Same(t, declined, err)

	events := f.pub.Events()
	require.Len(t, events, 2)
	call, ok := events[1].(ir.Call)
	require.True(t, ok)
	assert.False(t, call.Success)
	assert.JSONEq(t, `{"kind":"declined","message":"insufficient funds"}`, string(call.Ret))

	require.NoError(t, f.stack.Compensate())
	assert.Equal(t, []testutil.RollbackCall{{Succeeded: false, Args: "order-1"}}, eff.Rollbacks())

	// A later run replays the failure without re-invoking the effect.
	_, replayErr := f.exec(context.Background(), "step1", eff.Bind("order-1"), events...)
	assert.ErrorIs(t, replayErr, declined)
	assert.Equal(t, 1, eff.Calls())
}

func TestExecuteStep_PlainErrorRecordedByMessage(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("boom")
	eff := &testutil.Effect{Name: "charge", Err: boom}

	_, err := f.exec(context.Background(), "step1", eff.Bind(nil))
	assert.Equal(t, boom, err)

	calls := f.pub.Calls()
	require.Len(t, calls, 1)
	assert.JSONEq(t, `{"message":"boom"}`, string(calls[0].Ret))
}

func TestExecuteStep_Cancellation(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		history []ir.Event
		events  []ir.Event
	}{
		{
			name:   "fresh cancelled",
			err:    context.Canceled,
			events: []ir.Event{ir.Precall{StepID: "step1", Name: "charge"}},
		},
		{
			name:   "fresh deadline wrapped",
			err:    fmt.Errorf("charge: %w", context.DeadlineExceeded),
			events: []ir.Event{ir.Precall{StepID: "step1", Name: "charge"}},
		},
		{
			name:    "in-flight cancelled",
			err:     context.Canceled,
			history: []ir.Event{ir.Precall{StepID: "step1", Name: "charge"}},
			events:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			eff := &testutil.Effect{Name: "charge", Err: tt.err}

			_, err := f.exec(context.Background(), "step1", eff.Bind("order-1"), tt.history...)
			assert.Equal(t, tt.err, err)
			assert.Equal(t, tt.events, f.pub.Events())
			assert.Empty(t, f.pub.Calls())

			require.Equal(t, 1, f.stack.Len())
			require.NoError(t, f.stack.Compensate())
			assert.Equal(t, []testutil.RollbackCall{{Succeeded: false, Args: "order-1"}}, eff.Rollbacks())
		})
	}
}

func TestExecuteStep_CancelledContextBlocksEffect(t *testing.T) {
	f := newFixture(t)
	eff := &testutil.Effect{Name: "wait", Block: true}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := f.exec(ctx, "step1", eff.Bind(nil))
		done <- err
	}()

	// The precall is published before the effect starts blocking.
	require.Eventually(t, func() bool { return eff.Calls() == 1 }, timeout, tick)
	cancel()

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []ir.Event{ir.Precall{StepID: "step1", Name: "wait"}}, f.pub.Events())
	assert.Equal(t, 1, f.stack.Len())
}

func TestExecuteStep_HistoryMismatch(t *testing.T) {
	f := newFixture(t)
	eff := &testutil.Effect{Name: "effect1", Result: "result"}

	_, err := f.exec(context.Background(), "step1", eff.Bind(nil), ir.Precall{StepID: "step7", Name: "effect1"})
	require.Error(t, err)
	assert.True(t, history.IsUnexpectedEvent(err))
	assert.Contains(t, err.Error(), `stepId="step1"`)
	assert.Contains(t, err.Error(), `stepId="step7"`)

	assert.Equal(t, 0, eff.Calls())
	assert.Empty(t, f.pub.Events())
	assert.Equal(t, 0, f.stack.Len())
}

func TestExecuteStep_ProbeErrorPropagates(t *testing.T) {
	f := newFixture(t)
	probeErr := errors.New("ledger unreachable")
	eff := &testutil.Effect{Name: "charge", ProbeErr: probeErr}

	_, err := f.exec(context.Background(), "step1", eff.Bind(nil), ir.Precall{StepID: "step1", Name: "charge"})
	assert.Equal(t, probeErr, err)
	assert.Equal(t, 0, eff.Calls())
	assert.Empty(t, f.pub.Events())
	assert.Equal(t, 0, f.stack.Len())
}

func TestExecuteStep_PrecallPublishFailure(t *testing.T) {
	f := newFixture(t)
	diskFull := errors.New("disk full")
	f.pub.FailOn(ir.EventPrecall, diskFull)
	eff := &testutil.Effect{Name: "charge", Result: "ch-1"}

	_, err := f.exec(context.Background(), "step1", eff.Bind(nil))
	require.Error(t, err)
	assert.True(t, IsPublishError(err))
	assert.ErrorIs(t, err, diskFull)

	assert.Equal(t, 0, eff.Calls())
	assert.Equal(t, 0, f.stack.Len())
}

func TestExecuteStep_CallPublishFailureAfterSuccess(t *testing.T) {
	f := newFixture(t)
	diskFull := errors.New("disk full")
	f.pub.FailOn(ir.EventCall, diskFull)
	eff := &testutil.Effect{Name: "charge", Result: "ch-1"}

	_, err := f.exec(context.Background(), "step1", eff.Bind("order-1"))
	require.Error(t, err)
	var pe *PublishError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, ir.EventCall, pe.Event)
	assert.Nil(t, pe.StepErr)
	assert.ErrorIs(t, err, diskFull)

	require.Equal(t, 1, f.stack.Len())
	require.NoError(t, f.stack.Compensate())
	assert.Equal(t, []testutil.RollbackCall{{Succeeded: true, Result: "ch-1", Args: "order-1"}}, eff.Rollbacks())
}

func TestExecuteStep_CallPublishFailureAfterFailure(t *testing.T) {
	f := newFixture(t)
	diskFull := errors.New("disk full")
	declined := effect.NewFailure("declined", "no")
	f.pub.FailOn(ir.EventCall, diskFull)
	eff := &testutil.Effect{Name: "charge", Err: declined}

	_, err := f.exec(context.Background(), "step1", eff.Bind(nil))
	assert.True(t, IsPublishError(err))
	assert.ErrorIs(t, err, diskFull)
	assert.ErrorIs(t, err, declined)
	assert.Equal(t, 1, f.stack.Len())
}

func TestExecuteStep_RecordedResultOfWrongType(t *testing.T) {
	f := newFixture(t)
	count := effect.Define("count",
		func(context.Context, string) (int, error) { return 1, nil },
		effect.AlwaysCall[string, int],
		effect.NoRollback[string, int],
	)
	hist := []ir.Event{
		ir.Precall{StepID: "step1", Name: "count"},
		successCall("step1", "count", `"not a number"`),
	}

	_, err := f.exec(context.Background(), "step1", count.Bind("x"), hist...)
	var re *ResultError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "decode", re.Op)
	assert.Equal(t, 0, f.stack.Len())
}

func TestExecuteStep_TypedReplay(t *testing.T) {
	type receipt struct {
		ID     string `json:"id"`
		Amount int    `json:"amount"`
	}
	f := newFixture(t)
	charge := effect.Define("charge",
		func(_ context.Context, amount int) (receipt, error) { return receipt{ID: "ch-1", Amount: amount}, nil },
		effect.AlwaysCall[int, receipt],
		effect.NoRollback[int, receipt],
	)

	first, err := f.exec(context.Background(), "step1", charge.Bind(500))
	require.NoError(t, err)

	replayed, err := f.exec(context.Background(), "step1", charge.Bind(500), f.pub.Events()...)
	require.NoError(t, err)
	assert.Equal(t, receipt{ID: "ch-1", Amount: 500}, first)
	assert.Equal(t, first, replayed)
}

func TestExecuteStep_RollbackCapturesContextAndArgs(t *testing.T) {
	type ctxKey struct{}
	f := newFixture(t)

	var seen []string
	reserve := effect.Define("reserve",
		func(_ context.Context, sku string) (string, error) { return "res-" + sku, nil },
		effect.AlwaysCall[string, string],
		func(ctx context.Context, succeeded bool, result string, sku string) error {
			seen = append(seen, fmt.Sprintf("%v %t %s %s", ctx.Value(ctxKey{}), succeeded, result, sku))
			return nil
		},
	)

	ctx := context.WithValue(context.Background(), ctxKey{}, "tenant-a")
	_, err := f.exec(ctx, "step1", reserve.Bind("sku-9"))
	require.NoError(t, err)

	require.NoError(t, f.stack.Compensate())
	assert.Equal(t, []string{"tenant-a true res-sku-9 sku-9"}, seen)
}

func TestExecuteStep_MissingCollaborators(t *testing.T) {
	e := New(WithLogger(quietLogger()))
	pub := testutil.NewPublisher(nil)
	stack := rollback.NewStack(quietLogger())
	step := (&testutil.Effect{Name: "x"}).Bind(nil)
	ctx := context.Background()

	_, err := e.ExecuteStep(ctx, "s", nil, history.NewSliceIterator(), pub, stack.Register)
	assert.ErrorIs(t, err, ErrMissingCollaborator)
	_, err = e.ExecuteStep(ctx, "s", step, nil, pub, stack.Register)
	assert.ErrorIs(t, err, ErrMissingCollaborator)
	_, err = e.ExecuteStep(ctx, "s", step, history.NewSliceIterator(), nil, stack.Register)
	assert.ErrorIs(t, err, ErrMissingCollaborator)
	_, err = e.ExecuteStep(ctx, "s", step, history.NewSliceIterator(), pub, nil)
	assert.ErrorIs(t, err, ErrMissingCollaborator)
}

func TestExecuteStep_PublishFunc(t *testing.T) {
	e := New(WithLogger(quietLogger()))
	var got []ir.EventType
	pub := PublishFunc(func(_ context.Context, ev ir.Event) error {
		got = append(got, ev.Type())
		return nil
	})
	stack := rollback.NewStack(quietLogger())

	_, err := e.ExecuteStep(context.Background(), "s", (&testutil.Effect{Name: "x"}).Bind(nil), history.NewSliceIterator(), pub, stack.Register)
	require.NoError(t, err)
	assert.Equal(t, []ir.EventType{ir.EventPrecall, ir.EventCall}, got)
}

func TestExecuteStep_Metrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	f := newFixture(t, WithMetrics(m))
	ok := &testutil.Effect{Name: "ok", Result: 1}
	bad := &testutil.Effect{Name: "bad", Err: errors.New("no")}

	_, err := f.exec(context.Background(), "s1", ok.Bind(nil))
	require.NoError(t, err)
	_, err = f.exec(context.Background(), "s2", bad.Bind(nil))
	require.Error(t, err)
	_, err = f.exec(context.Background(), "s1", ok.Bind(nil), f.pub.Events()[:2]...)
	require.NoError(t, err)

	assert.Equal(t, 1.0, promtest.ToFloat64(m.StepsTotal.WithLabelValues(metrics.PathFresh, metrics.OutcomeSuccess)))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.StepsTotal.WithLabelValues(metrics.PathFresh, metrics.OutcomeFailure)))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.StepsTotal.WithLabelValues(metrics.PathCompleted, metrics.OutcomeSuccess)))
	assert.Equal(t, 2.0, promtest.ToFloat64(m.EventsPublished.WithLabelValues("precall")))
	assert.Equal(t, 2.0, promtest.ToFloat64(m.EventsPublished.WithLabelValues("call")))
	assert.Equal(t, 2.0, promtest.ToFloat64(m.RollbacksRegistered.WithLabelValues("true")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.RollbacksRegistered.WithLabelValues("false")))
}

func TestExecuteStep_Span(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	f := newFixture(t, WithTracer(tp.Tracer("test")))
	eff := &testutil.Effect{Name: "charge", Result: "ch-1"}

	_, err := f.exec(context.Background(), "step1", eff.Bind(nil), ir.Precall{StepID: "step1", Name: "charge"})
	require.NoError(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "sagalog.step", spans[0].Name())

	attrs := make(map[string]string)
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "step1", attrs["step.id"])
	assert.Equal(t, "charge", attrs["step.name"])
	assert.Equal(t, "in-flight", attrs["step.state"])
	assert.Equal(t, "success", attrs["step.outcome"])

	var names []string
	for _, ev := range spans[0].Events() {
		names = append(names, ev.Name)
	}
	assert.Equal(t, []string{"probe.call_needed", "rollback.registered"}, names)
}
