package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/roach88/sagalog/internal/effect"
	"github.com/roach88/sagalog/internal/engine"
	"github.com/roach88/sagalog/internal/ir"
	"github.com/roach88/sagalog/internal/rollback"
	"github.com/roach88/sagalog/internal/saga"
	"github.com/roach88/sagalog/internal/store"
)

// Harness runs one scenario. It is the saga.Environment of the run: steps
// read and append history through the repository, and every publish and
// rollback registration is traced.
type Harness struct {
	scenario *Scenario
	repo     store.Repository
	stack    *rollback.Stack
	logger   *slog.Logger

	mu     sync.Mutex
	result *Result
}

var _ saga.Environment = (*Harness)(nil)

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory repository. An error is
// returned only when the scenario cannot be set up; saga failures and
// unmet expectations are reported in the Result.
func Run(scenario *Scenario) (*Result, error) {
	return RunWithRepository(context.Background(), scenario, store.NewMemory())
}

// RunWithRepository executes a scenario against repo, which should be empty.
func RunWithRepository(ctx context.Context, scenario *Scenario, repo store.Repository) (*Result, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	h := &Harness{
		scenario: scenario,
		repo:     repo,
		stack:    rollback.NewStack(logger),
		logger:   logger,
		result:   NewResult(),
	}

	if err := h.preload(ctx); err != nil {
		return nil, fmt.Errorf("failed to preload history: %w", err)
	}

	steps, err := h.bindFlow()
	if err != nil {
		return nil, err
	}

	driver := saga.NewDriver(engine.New(engine.WithLogger(logger)), h, saga.WithDriverLogger(logger))
	out, runErr := driver.Run(ctx, scenario.SagaID, saga.Steps(steps...))

	result := h.result
	var compErr error
	if runErr != nil {
		result.Status = StatusFailed
		result.Err = runErr
		if scenario.Compensate {
			compErr = h.stack.Compensate()
		}
	} else {
		result.Status = StatusCompleted
		result.Output = out
	}

	h.checkExpectation(compErr)
	actx := &AssertionContext{Ctx: ctx, Repo: repo, SagaID: scenario.SagaID}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// preload appends the scenario's history.
func (h *Harness) preload(ctx context.Context) error {
	for _, hs := range h.scenario.History {
		instanceID := saga.StepID(h.scenario.SagaID, hs.Step)
		for _, he := range hs.Events {
			ev, err := historyEvent(instanceID, he)
			if err != nil {
				return err
			}
			if err := h.repo.Append(ctx, instanceID, ev); err != nil {
				return err
			}
		}
	}
	return nil
}

func historyEvent(instanceID string, he HistoryEvent) (ir.Event, error) {
	stepID := he.StepID
	if stepID == "" {
		stepID = instanceID
	}
	if he.Type == "precall" {
		return ir.Precall{StepID: stepID, Name: he.Name}, nil
	}
	ret, err := json.Marshal(he.Ret)
	if err != nil {
		return nil, fmt.Errorf("encode ret of %s: %w", instanceID, err)
	}
	return ir.Call{StepID: stepID, Name: he.Name, Success: he.Success, Ret: ret}, nil
}

// bindFlow defines one scripted descriptor per effect and binds the flow.
func (h *Harness) bindFlow() ([]effect.Invocation, error) {
	descs := make(map[string]*effect.Descriptor[any, any], len(h.scenario.Effects))
	for _, name := range sortedEffectNames(h.scenario.Effects) {
		s := &scripted{h: h, name: name, script: h.scenario.Effects[name]}
		descs[name] = effect.Define(name, s.run, s.probe, s.rollback)
	}

	steps := make([]effect.Invocation, 0, len(h.scenario.Flow))
	for i, fs := range h.scenario.Flow {
		d, ok := descs[fs.Effect]
		if !ok {
			return nil, fmt.Errorf("flow[%d]: effect %q is not scripted", i, fs.Effect)
		}
		steps = append(steps, d.Bind(fs.Args))
	}
	return steps, nil
}

// Bind implements saga.Environment.
func (h *Harness) Bind(_ context.Context, sagaID string, index int, step effect.Step) (saga.Binding, error) {
	stepID := saga.StepID(sagaID, index)
	stream := store.NewStream(h.repo, stepID)
	return saga.Binding{
		StepID:    stepID,
		History:   stream,
		Publisher: &tracingPublisher{h: h, stream: stream},
		Register: func(a rollback.Action) {
			h.trace(TraceEvent{Kind: KindRegister, StepID: stepID, Name: step.Name()})
			h.stack.Register(a)
		},
	}, nil
}

// SystemParams implements saga.Environment.
func (h *Harness) SystemParams(_ context.Context, sagaID string) (any, error) {
	return saga.SystemParams{SagaID: sagaID}, nil
}

func (h *Harness) trace(ev TraceEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.result.addTrace(ev)
}

// checkExpectation compares the outcome with scenario.Expect.
func (h *Harness) checkExpectation(compErr error) {
	exp := h.scenario.Expect
	r := h.result

	if r.Status != exp.Status {
		msg := fmt.Sprintf("expected saga to be %s, got %s", exp.Status, r.Status)
		if r.Err != nil {
			msg += ": " + r.Err.Error()
		}
		r.AddError(msg)
		return
	}

	if exp.Result != nil && r.Status == StatusCompleted {
		want, err1 := ir.MarshalCanonical(exp.Result)
		got, err2 := ir.MarshalCanonical(r.Output)
		switch {
		case err1 != nil || err2 != nil:
			r.AddError(fmt.Sprintf("cannot compare results: %v", errors.Join(err1, err2)))
		case string(want) != string(got):
			r.AddError(fmt.Sprintf("expected result %s, got %s", want, got))
		}
	}

	if exp.Error != "" && (r.Err == nil || !strings.Contains(r.Err.Error(), exp.Error)) {
		r.AddError(fmt.Sprintf("expected error containing %q, got %v", exp.Error, r.Err))
	}

	switch {
	case compErr != nil && exp.CompensationError == "":
		r.AddError(fmt.Sprintf("compensation failed: %v", compErr))
	case exp.CompensationError != "" && (compErr == nil || !strings.Contains(compErr.Error(), exp.CompensationError)):
		r.AddError(fmt.Sprintf("expected compensation error containing %q, got %v", exp.CompensationError, compErr))
	}
}

// tracingPublisher appends to the step's stream and traces the event.
type tracingPublisher struct {
	h      *Harness
	stream *store.Stream
}

func (p *tracingPublisher) Publish(ctx context.Context, ev ir.Event) error {
	if err := p.stream.Publish(ctx, ev); err != nil {
		return err
	}
	te := TraceEvent{StepID: ev.Key().StepID, Name: ev.Key().Name}
	switch e := ev.(type) {
	case ir.Precall:
		te.Kind = KindPrecall
	case ir.Call:
		te.Kind = KindCall
		te.Success = &e.Success
		te.Ret = e.Ret
	}
	p.h.trace(te)
	return nil
}

// scripted implements an effect from its EffectScript.
type scripted struct {
	h      *Harness
	name   string
	script EffectScript
}

func (s *scripted) run(ctx context.Context, args any) (any, error) {
	s.h.trace(TraceEvent{Kind: KindEffect, Name: s.name})
	if f := s.script.Error; f != nil {
		return nil, &effect.Failure{Kind: f.Kind, Message: f.Message}
	}
	return s.script.Result, nil
}

func (s *scripted) probe(ctx context.Context, args any) (effect.ProbeOutcome[any], error) {
	s.h.trace(TraceEvent{Kind: KindProbe, Name: s.name})
	switch s.script.Probe {
	case ProbeSucceeded:
		return effect.Succeeded(s.script.ProbeResult), nil
	case ProbeError:
		return effect.CallNeeded[any](), errors.New(s.script.ProbeError)
	default:
		return effect.CallNeeded[any](), nil
	}
}

func (s *scripted) rollback(ctx context.Context, succeeded bool, result any, args any) error {
	ev := TraceEvent{Kind: KindRollback, Name: s.name, Success: &succeeded}
	if result != nil {
		ret, err := json.Marshal(result)
		if err != nil {
			return err
		}
		ev.Ret = ret
	}
	s.h.trace(ev)
	if s.script.RollbackError != "" {
		return errors.New(s.script.RollbackError)
	}
	return nil
}
