package saga

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"strings"
	"sync"

	"github.com/roach88/sagalog/internal/effect"
	"github.com/roach88/sagalog/internal/engine"
	"github.com/roach88/sagalog/internal/metrics"
	"github.com/roach88/sagalog/internal/rollback"
	"github.com/roach88/sagalog/internal/store"
)

// SystemParams is the value Runtime resolves for effect.SystemParams.
type SystemParams struct {
	SagaID string
	Values map[string]string
}

// StepID names the index-th effect step of a saga: "<sagaID>/<index>".
func StepID(sagaID string, index int) string {
	return sagaID + "/" + strconv.Itoa(index)
}

// Runtime is an Environment backed by a store.Repository. Each step reads
// and appends its history through a store.Stream, and each saga collects
// its rollback actions on its own rollback.Stack.
//
// Thread-safety: distinct sagas may run concurrently; a single saga id must
// not be run by two goroutines at once.
type Runtime struct {
	repo   store.Repository
	driver *Driver
	logger *slog.Logger
	values map[string]string

	mu     sync.Mutex
	stacks map[string]*rollback.Stack
}

var _ Environment = (*Runtime)(nil)

// RuntimeOption configures a Runtime.
type RuntimeOption func(*runtimeConfig)

type runtimeConfig struct {
	logger     *slog.Logger
	metrics    *metrics.Metrics
	values     map[string]string
	engineOpts []engine.Option
	driverOpts []DriverOption
}

// WithLogger sets the logger for the runtime, its driver and engine.
func WithLogger(l *slog.Logger) RuntimeOption {
	return func(c *runtimeConfig) { c.logger = l }
}

// WithMetrics instruments the engine and the driver.
func WithMetrics(m *metrics.Metrics) RuntimeOption {
	return func(c *runtimeConfig) { c.metrics = m }
}

// WithValues sets the values exposed through SystemParams.
func WithValues(values map[string]string) RuntimeOption {
	return func(c *runtimeConfig) { c.values = maps.Clone(values) }
}

// WithEngineOptions passes extra options to the engine.
func WithEngineOptions(opts ...engine.Option) RuntimeOption {
	return func(c *runtimeConfig) { c.engineOpts = append(c.engineOpts, opts...) }
}

// WithDriverOptions passes extra options to the driver.
func WithDriverOptions(opts ...DriverOption) RuntimeOption {
	return func(c *runtimeConfig) { c.driverOpts = append(c.driverOpts, opts...) }
}

// NewRuntime creates a runtime over repo.
func NewRuntime(repo store.Repository, opts ...RuntimeOption) *Runtime {
	var cfg runtimeConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	engineOpts := append([]engine.Option{engine.WithLogger(cfg.logger), engine.WithMetrics(cfg.metrics)}, cfg.engineOpts...)
	driverOpts := append([]DriverOption{WithDriverLogger(cfg.logger), WithDriverMetrics(cfg.metrics)}, cfg.driverOpts...)

	r := &Runtime{
		repo:   repo,
		logger: cfg.logger,
		values: cfg.values,
		stacks: make(map[string]*rollback.Stack),
	}
	r.driver = NewDriver(engine.New(engineOpts...), r, driverOpts...)
	return r
}

// Bind implements Environment.
func (r *Runtime) Bind(_ context.Context, sagaID string, index int, _ effect.Step) (Binding, error) {
	if sagaID == "" {
		return Binding{}, fmt.Errorf("saga id is required")
	}
	stepID := StepID(sagaID, index)
	stream := store.NewStream(r.repo, stepID)
	return Binding{
		StepID:    stepID,
		History:   stream,
		Publisher: stream,
		Register:  r.stack(sagaID).Register,
	}, nil
}

// SystemParams implements Environment.
func (r *Runtime) SystemParams(_ context.Context, sagaID string) (any, error) {
	return SystemParams{SagaID: sagaID, Values: maps.Clone(r.values)}, nil
}

// Run drives seq as saga sagaID. The saga's rollback stack starts empty on
// every run: replayed steps register their recorded outcomes again, so a
// re-run holds exactly one action per step it reached.
func (r *Runtime) Run(ctx context.Context, sagaID string, seq Sequence) (any, error) {
	if sagaID != "" {
		r.mu.Lock()
		r.stacks[sagaID] = rollback.NewStack(r.logger)
		r.mu.Unlock()
	}
	return r.driver.Run(ctx, sagaID, seq)
}

// RunWorkflow runs wf with payload as saga sagaID on r.
func RunWorkflow[P any](ctx context.Context, r *Runtime, wf Workflow[P], sagaID string, payload P) (any, error) {
	return r.Run(ctx, sagaID, wf(payload))
}

// Pending returns the number of rollback actions registered for sagaID and
// not yet compensated.
func (r *Runtime) Pending(sagaID string) int {
	r.mu.Lock()
	s, ok := r.stacks[sagaID]
	r.mu.Unlock()
	if !ok {
		return 0
	}
	return s.Len()
}

// Compensate runs the saga's registered rollback actions, most recent
// first. Actions registered by replayed steps are included, so a saga
// re-run after a crash compensates the steps of earlier processes too.
// Only the actions of the latest run are held.
func (r *Runtime) Compensate(sagaID string) error {
	err := r.stack(sagaID).Compensate()
	if err != nil {
		return fmt.Errorf("saga %s: compensate: %w", sagaID, err)
	}
	return nil
}

// Forget drops the saga's rollback stack and deletes its step history.
// Call it once a saga has finished and will not be re-run.
func (r *Runtime) Forget(ctx context.Context, sagaID string) error {
	r.mu.Lock()
	delete(r.stacks, sagaID)
	r.mu.Unlock()

	ids, err := r.repo.Instances(ctx)
	if err != nil {
		return fmt.Errorf("saga %s: list history: %w", sagaID, err)
	}
	prefix := sagaID + "/"
	for _, id := range ids {
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		if _, err := strconv.Atoi(id[len(prefix):]); err != nil {
			continue
		}
		if err := r.repo.Delete(ctx, id); err != nil {
			return fmt.Errorf("saga %s: delete %s: %w", sagaID, id, err)
		}
	}
	r.logger.Debug("saga forgotten", "saga_id", sagaID)
	return nil
}

func (r *Runtime) stack(sagaID string) *rollback.Stack {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stacks[sagaID]
	if !ok {
		s = rollback.NewStack(r.logger)
		r.stacks[sagaID] = s
	}
	return s
}
