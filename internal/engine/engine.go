package engine

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/sagalog/internal/effect"
	"github.com/roach88/sagalog/internal/history"
	"github.com/roach88/sagalog/internal/ir"
	"github.com/roach88/sagalog/internal/metrics"
	"github.com/roach88/sagalog/internal/tracing"
)

// Engine executes steps against their recorded history.
//
// Engine is stateless between calls and safe for concurrent use across
// distinct step instances.
type Engine struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithTracer sets the tracer used for step spans. Default: the global
// provider's sagalog tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.tracer == nil {
		e.tracer = tracing.Tracer()
	}
	return e
}

// stepRun carries one ExecuteStep call through its path.
type stepRun struct {
	ctx      context.Context // caller's context, captured by rollback actions
	key      ir.StepKey
	step     effect.Step
	publish  Publisher
	register RollbackRegistrar
	path     string
	span     trace.Span
}

// ExecuteStep runs step under stepID, reconciling it with hist first.
//
// It returns the step's result, the effect's error unchanged, a
// *history.UnexpectedEventError when hist belongs to a different workflow,
// or a *PublishError when the event could not be recorded. ctx is passed to
// the history iterator, the probe, the effect and the publisher, and is
// captured by the registered rollback action.
func (e *Engine) ExecuteStep(
	ctx context.Context,
	stepID string,
	step effect.Step,
	hist history.Iterator,
	publish Publisher,
	register RollbackRegistrar,
) (any, error) {
	if step == nil || hist == nil || publish == nil || register == nil {
		return nil, ErrMissingCollaborator
	}

	key := ir.StepKey{StepID: stepID, Name: step.Name()}
	spanCtx, span := e.tracer.Start(ctx, "sagalog.step",
		trace.WithAttributes(
			tracing.AttrStepID.String(stepID),
			tracing.AttrStepName.String(key.Name),
		),
	)
	defer span.End()

	start := time.Now()
	run := &stepRun{ctx: ctx, key: key, step: step, publish: publish, register: register, span: span}

	rec, err := history.Reconcile(spanCtx, hist, stepID, key.Name)
	if err != nil {
		e.logger.Error("history reconciliation failed",
			"step_id", stepID,
			"name", key.Name,
			"error", err,
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "reconcile")
		return nil, err
	}
	span.SetAttributes(tracing.AttrStepState.String(rec.State.String()))

	var (
		result  any
		outcome string
	)
	switch rec.State {
	case history.StateCompleted:
		run.path = metrics.PathCompleted
		result, outcome, err = e.replay(run, rec.Call)
	case history.StateInFlight:
		run.path = metrics.PathInFlight
		result, outcome, err = e.resume(spanCtx, run)
	default:
		run.path = metrics.PathFresh
		result, outcome, err = e.fresh(spanCtx, run)
	}

	e.metrics.ObserveStep(run.path, outcome, time.Since(start))
	span.SetAttributes(tracing.AttrStepResult.String(outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	return result, err
}

// replay returns the recorded outcome. No effect, probe or publish runs.
func (e *Engine) replay(run *stepRun, call *ir.Call) (any, string, error) {
	if !call.Success {
		e.registerRollback(run, false, nil)
		e.logger.Debug("step replayed",
			"step_id", run.key.StepID,
			"name", run.key.Name,
			"success", false,
		)
		return nil, metrics.OutcomeFailure, effect.DecodeError(call.Ret)
	}

	result, err := run.step.DecodeResult(call.Ret)
	if err != nil {
		// The recorded payload does not fit the descriptor's result type;
		// the history is incompatible with this workflow.
		return nil, metrics.OutcomeError, &ResultError{Step: run.key, Op: "decode", Err: err}
	}
	e.registerRollback(run, true, result)
	e.logger.Debug("step replayed",
		"step_id", run.key.StepID,
		"name", run.key.Name,
		"success", true,
	)
	return result, metrics.OutcomeSuccess, nil
}

// resume probes an in-flight step before deciding whether to execute it.
func (e *Engine) resume(ctx context.Context, run *stepRun) (any, string, error) {
	probe, err := run.step.Probe(ctx)
	if err != nil {
		e.logger.Warn("probe failed",
			"step_id", run.key.StepID,
			"name", run.key.Name,
			"error", err,
		)
		return nil, metrics.OutcomeError, err
	}

	if result, ok := probe.Result(); ok {
		run.span.AddEvent("probe.succeeded")
		e.logger.Info("probe found completed side effect",
			"step_id", run.key.StepID,
			"name", run.key.Name,
		)
		return e.succeed(ctx, run, result)
	}

	run.span.AddEvent("probe.call_needed")
	e.logger.Info("probe requires re-execution",
		"step_id", run.key.StepID,
		"name", run.key.Name,
	)
	return e.execute(ctx, run)
}

// fresh records the precall and executes the effect.
func (e *Engine) fresh(ctx context.Context, run *stepRun) (any, string, error) {
	precall := ir.Precall{StepID: run.key.StepID, Name: run.key.Name}
	if err := run.publish.Publish(ctx, precall); err != nil {
		// The effect never ran; there is no outcome to compensate.
		return nil, metrics.OutcomeError, &PublishError{Event: ir.EventPrecall, Step: run.key, Err: err}
	}
	e.metrics.EventPublished(string(ir.EventPrecall))
	return e.execute(ctx, run)
}

// execute invokes the effect and applies the error policy.
func (e *Engine) execute(ctx context.Context, run *stepRun) (any, string, error) {
	result, err := run.step.Execute(ctx)
	if err == nil {
		return e.succeed(ctx, run, result)
	}

	if effect.IsCancellation(err) {
		e.registerRollback(run, false, nil)
		e.logger.Info("step cancelled",
			"step_id", run.key.StepID,
			"name", run.key.Name,
			"error", err,
		)
		return nil, metrics.OutcomeCancelled, err
	}

	ret, encErr := effect.EncodeError(err)
	if encErr == nil {
		encErr = run.publish.Publish(ctx, ir.Call{
			StepID:  run.key.StepID,
			Name:    run.key.Name,
			Success: false,
			Ret:     ret,
		})
	}
	e.registerRollback(run, false, nil)
	if encErr != nil {
		return nil, metrics.OutcomeError, &PublishError{Event: ir.EventCall, Step: run.key, Err: encErr, StepErr: err}
	}
	e.metrics.EventPublished(string(ir.EventCall))

	e.logger.Info("step failed",
		"step_id", run.key.StepID,
		"name", run.key.Name,
		"error", err,
	)
	return nil, metrics.OutcomeFailure, err
}

// succeed records a successful call for result.
func (e *Engine) succeed(ctx context.Context, run *stepRun, result any) (any, string, error) {
	ret, err := run.step.EncodeResult(result)
	if err != nil {
		e.registerRollback(run, true, result)
		return nil, metrics.OutcomeError, &ResultError{Step: run.key, Op: "encode", Err: err}
	}

	err = run.publish.Publish(ctx, ir.Call{
		StepID:  run.key.StepID,
		Name:    run.key.Name,
		Success: true,
		Ret:     ret,
	})
	e.registerRollback(run, true, result)
	if err != nil {
		return nil, metrics.OutcomeError, &PublishError{Event: ir.EventCall, Step: run.key, Err: err}
	}
	e.metrics.EventPublished(string(ir.EventCall))

	e.logger.Debug("step succeeded",
		"step_id", run.key.StepID,
		"name", run.key.Name,
		"path", run.path,
	)
	return result, metrics.OutcomeSuccess, nil
}

// registerRollback hands the registrar a closure over the step's arguments
// and its actual outcome.
func (e *Engine) registerRollback(run *stepRun, succeeded bool, result any) {
	ctx, step := run.ctx, run.step
	run.register(func() error {
		return step.Rollback(ctx, succeeded, result)
	})
	run.span.AddEvent("rollback.registered", trace.WithAttributes(attribute.Bool("succeeded", succeeded)))
	e.metrics.RollbackRegistered(succeeded)
}
