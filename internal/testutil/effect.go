package testutil

import (
	"context"
	"sync"

	"github.com/roach88/sagalog/internal/effect"
)

// RollbackCall records one invocation of a scripted rollback.
type RollbackCall struct {
	Succeeded bool
	Result    any
	Args      any
}

// Effect is a scripted effect whose effect, probe and rollback bodies
// return configured values and count their invocations.
//
// Configure the exported fields before binding; Bind returns a Step backed
// by a real effect.Descriptor.
type Effect struct {
	Name string

	// Result and Err are returned by the effect. If Block is set the effect
	// waits for ctx to be cancelled and returns ctx.Err().
	Result any
	Err    error
	Block  bool

	// ProbeSucceeded selects the Succeeded variant with ProbeResult.
	ProbeSucceeded bool
	ProbeResult    any
	ProbeErr       error

	RollbackErr error

	Journal *Journal

	mu        sync.Mutex
	calls     int
	probes    int
	rollbacks []RollbackCall
	desc      *effect.Descriptor[any, any]
}

// Bind returns a step invoking the scripted bodies with args.
func (e *Effect) Bind(args any) effect.Step {
	e.mu.Lock()
	if e.desc == nil {
		e.desc = effect.Define(e.Name, e.run, e.probe, e.rollback)
	}
	d := e.desc
	e.mu.Unlock()
	return d.Bind(args)
}

func (e *Effect) run(ctx context.Context, args any) (any, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	e.Journal.Add("effect %s", e.Name)

	if e.Block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if e.Err != nil {
		return nil, e.Err
	}
	return e.Result, nil
}

func (e *Effect) probe(ctx context.Context, args any) (effect.ProbeOutcome[any], error) {
	e.mu.Lock()
	e.probes++
	e.mu.Unlock()
	e.Journal.Add("probe %s", e.Name)

	if e.ProbeErr != nil {
		return effect.CallNeeded[any](), e.ProbeErr
	}
	if e.ProbeSucceeded {
		return effect.Succeeded(e.ProbeResult), nil
	}
	return effect.CallNeeded[any](), nil
}

func (e *Effect) rollback(ctx context.Context, succeeded bool, result any, args any) error {
	e.mu.Lock()
	e.rollbacks = append(e.rollbacks, RollbackCall{Succeeded: succeeded, Result: result, Args: args})
	e.mu.Unlock()
	e.Journal.Add("rollback %s succeeded=%t", e.Name, succeeded)
	return e.RollbackErr
}

// Calls returns how many times the effect body ran.
func (e *Effect) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Probes returns how many times the probe ran.
func (e *Effect) Probes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.probes
}

// Rollbacks returns the recorded rollback invocations.
func (e *Effect) Rollbacks() []RollbackCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]RollbackCall(nil), e.rollbacks...)
}
