package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/sagalog/internal/effect"
	"github.com/roach88/sagalog/internal/engine"
	"github.com/roach88/sagalog/internal/history"
	"github.com/roach88/sagalog/internal/metrics"
	"github.com/roach88/sagalog/internal/tracing"
)

// ErrNilInvocation is returned when a sequence yields a nil invocation.
var ErrNilInvocation = errors.New("saga: sequence yielded a nil invocation")

// Binding is what the engine needs to run one step.
type Binding struct {
	StepID    string
	History   history.Iterator
	Publisher engine.Publisher
	Register  engine.RollbackRegistrar
}

// Environment supplies per-step bindings and resolves system parameters.
type Environment interface {
	// Bind returns the history, publisher and registrar for the index-th
	// effect step of the saga. index counts effect steps only.
	Bind(ctx context.Context, sagaID string, index int, step effect.Step) (Binding, error)

	// SystemParams resolves the effect.SystemParams pseudo-effect.
	SystemParams(ctx context.Context, sagaID string) (any, error)
}

// Driver runs sequences through an engine.
type Driver struct {
	engine  *engine.Engine
	env     Environment
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithDriverLogger sets the logger. Default: slog.Default().
func WithDriverLogger(l *slog.Logger) DriverOption {
	return func(d *Driver) { d.logger = l }
}

// WithDriverMetrics counts saga outcomes.
func WithDriverMetrics(m *metrics.Metrics) DriverOption {
	return func(d *Driver) { d.metrics = m }
}

// WithDriverTracer sets the tracer for saga spans.
func WithDriverTracer(t trace.Tracer) DriverOption {
	return func(d *Driver) { d.tracer = t }
}

// NewDriver creates a driver executing steps with eng in env.
func NewDriver(eng *engine.Engine, env Environment, opts ...DriverOption) *Driver {
	d := &Driver{engine: eng, env: env}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.tracer == nil {
		d.tracer = tracing.Tracer()
	}
	return d
}

// Run drives seq to completion and returns its result, or the first error
// from a step, the environment or the sequence itself. seq is closed
// before Run returns.
func (d *Driver) Run(ctx context.Context, sagaID string, seq Sequence) (result any, err error) {
	defer seq.Close()

	ctx, span := d.tracer.Start(ctx, "sagalog.saga",
		trace.WithAttributes(tracing.AttrSagaID.String(sagaID)))
	defer span.End()

	steps := 0
	defer func() {
		outcome := metrics.OutcomeSuccess
		switch {
		case err != nil && effect.IsCancellation(err):
			outcome = metrics.OutcomeCancelled
		case err != nil:
			outcome = metrics.OutcomeFailure
		}
		d.metrics.SagaFinished(outcome)
		span.SetAttributes(attribute.Int("saga.steps", steps))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
			d.logger.Warn("saga failed", "saga_id", sagaID, "steps", steps, "error", err)
			return
		}
		d.logger.Info("saga completed", "saga_id", sagaID, "steps", steps)
	}()

	var prev any
	for {
		inv, ok, err := seq.Next(ctx, prev)
		if err != nil {
			return nil, err
		}
		if !ok {
			return seq.Result(), nil
		}

		switch v := inv.(type) {
		case nil:
			return nil, ErrNilInvocation
		case effect.SystemParams:
			prev, err = d.env.SystemParams(ctx, sagaID)
			if err != nil {
				return nil, fmt.Errorf("saga %s: resolve system params: %w", sagaID, err)
			}
		case effect.Step:
			prev, err = d.step(ctx, sagaID, steps, v)
			if err != nil {
				return nil, err
			}
			steps++
		default:
			return nil, fmt.Errorf("saga %s: unsupported invocation %T", sagaID, inv)
		}
	}
}

func (d *Driver) step(ctx context.Context, sagaID string, index int, step effect.Step) (any, error) {
	b, err := d.env.Bind(ctx, sagaID, index, step)
	if err != nil {
		return nil, fmt.Errorf("saga %s: bind step %d: %w", sagaID, index, err)
	}
	d.logger.Debug("running step", "saga_id", sagaID, "step_id", b.StepID, "name", step.Name())
	return d.engine.ExecuteStep(ctx, b.StepID, step, b.History, b.Publisher, b.Register)
}

// Run builds the workflow's sequence for payload and drives it.
func Run[P any](ctx context.Context, d *Driver, wf Workflow[P], sagaID string, payload P) (any, error) {
	return d.Run(ctx, sagaID, wf(payload))
}
