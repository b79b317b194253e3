package history

import (
	"context"

	"github.com/roach88/sagalog/internal/ir"
)

// State is the replay state of a step derived from its history.
type State int

const (
	// StateFresh means no history: the step executes from scratch.
	StateFresh State = iota + 1

	// StateInFlight means a precall was recorded but no call followed.
	StateInFlight

	// StateCompleted means both events are recorded; the outcome is replayed.
	StateCompleted
)

// String returns the state name used in logs and CLI output.
func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateInFlight:
		return "in-flight"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Reconciliation is the outcome of reading a step's two history slots.
type Reconciliation struct {
	State State

	// Call is the recorded call event. Set only for StateCompleted.
	Call *ir.Call
}

// Reconcile reads the precall slot and the call slot from it and classifies
// the step identified by stepID and name.
//
// Both slots are always fetched, so the iterator is advanced at most twice.
// Each present event must have the slot's type and carry the expected
// stepID and name; otherwise *UnexpectedEventError is returned.
func Reconcile(ctx context.Context, it Iterator, stepID, name string) (Reconciliation, error) {
	want := ir.StepKey{StepID: stepID, Name: name}

	precall, err := fetchSlot(ctx, it, SlotPrecall, want)
	if err != nil {
		return Reconciliation{}, err
	}
	call, err := fetchSlot(ctx, it, SlotCall, want)
	if err != nil {
		return Reconciliation{}, err
	}

	switch {
	case precall == nil && call == nil:
		return Reconciliation{State: StateFresh}, nil
	case precall != nil && call == nil:
		return Reconciliation{State: StateInFlight}, nil
	case precall != nil && call != nil:
		c := call.(ir.Call)
		return Reconciliation{State: StateCompleted, Call: &c}, nil
	default:
		return Reconciliation{}, ErrContractViolation
	}
}

// fetchSlot advances the iterator once. It returns nil when the iterator is
// exhausted and the event (normalized to its value type) when it matches.
func fetchSlot(ctx context.Context, it Iterator, slot Slot, want ir.StepKey) (ir.Event, error) {
	ev, ok, err := it.Next(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	expected := ir.EventPrecall
	if slot == SlotCall {
		expected = ir.EventCall
	}

	var normalized ir.Event
	switch e := ev.(type) {
	case ir.Precall:
		normalized = e
	case *ir.Precall:
		normalized = *e
	case ir.Call:
		normalized = e
	case *ir.Call:
		normalized = *e
	}

	if normalized == nil || normalized.Type() != expected || normalized.Key() != want {
		return nil, &UnexpectedEventError{Slot: slot, Expected: expected, Want: want, Actual: ev}
	}
	return normalized, nil
}
