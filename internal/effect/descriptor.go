package effect

import (
	"context"
	"encoding/json"
	"fmt"
)

// Func performs the side effect with the bound arguments.
type Func[A, R any] func(ctx context.Context, args A) (R, error)

// ProbeFunc checks whether the side effect already happened.
type ProbeFunc[A, R any] func(ctx context.Context, args A) (ProbeOutcome[R], error)

// RollbackFunc compensates a step. succeeded reports whether the step's
// outcome was a success; result is the zero value otherwise.
type RollbackFunc[A, R any] func(ctx context.Context, succeeded bool, result R, args A) error

// Descriptor binds a named effect to its probe and rollback.
// Descriptors are immutable once defined and safe to share between sagas.
type Descriptor[A, R any] struct {
	name     string
	effect   Func[A, R]
	probe    ProbeFunc[A, R]
	rollback RollbackFunc[A, R]
}

// Define creates a Descriptor.
//
// Panics if name is empty or any function is nil. Descriptors are declared
// once at program start, so a malformed one is a programming error; use
// AlwaysCall and NoRollback when an effect has no meaningful probe or
// compensation.
func Define[A, R any](name string, effect Func[A, R], probe ProbeFunc[A, R], rollback RollbackFunc[A, R]) *Descriptor[A, R] {
	if name == "" {
		panic("effect.Define: name is required")
	}
	if effect == nil || probe == nil || rollback == nil {
		panic(fmt.Sprintf("effect.Define(%q): effect, probe and rollback are required", name))
	}
	return &Descriptor[A, R]{name: name, effect: effect, probe: probe, rollback: rollback}
}

// Name returns the descriptor name recorded in history events.
func (d *Descriptor[A, R]) Name() string {
	return d.name
}

// Bind returns an invocation of the descriptor with concrete arguments.
func (d *Descriptor[A, R]) Bind(args A) Step {
	return &boundStep[A, R]{desc: d, args: args}
}

// boundStep erases the descriptor's type parameters for the engine.
type boundStep[A, R any] struct {
	desc *Descriptor[A, R]
	args A
}

func (*boundStep[A, R]) isInvocation() {}

func (s *boundStep[A, R]) Kind() Kind { return KindEffect }

func (s *boundStep[A, R]) Name() string { return s.desc.name }

func (s *boundStep[A, R]) Args() any { return s.args }

func (s *boundStep[A, R]) Execute(ctx context.Context) (any, error) {
	return s.desc.effect(ctx, s.args)
}

func (s *boundStep[A, R]) Probe(ctx context.Context) (ProbeOutcome[any], error) {
	out, err := s.desc.probe(ctx, s.args)
	if err != nil {
		return CallNeeded[any](), err
	}
	if result, ok := out.Result(); ok {
		return Succeeded[any](result), nil
	}
	return CallNeeded[any](), nil
}

func (s *boundStep[A, R]) Rollback(ctx context.Context, succeeded bool, result any) error {
	var typed R
	if result != nil {
		r, ok := result.(R)
		if !ok {
			return fmt.Errorf("effect %q: rollback result has type %T, want %T", s.desc.name, result, typed)
		}
		typed = r
	}
	return s.desc.rollback(ctx, succeeded, typed, s.args)
}

func (s *boundStep[A, R]) EncodeResult(result any) (json.RawMessage, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("effect %q: encode result: %w", s.desc.name, err)
	}
	return data, nil
}

func (s *boundStep[A, R]) DecodeResult(raw json.RawMessage) (any, error) {
	var result R
	if len(raw) == 0 {
		return result, nil
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("effect %q: decode recorded result: %w", s.desc.name, err)
	}
	return result, nil
}
