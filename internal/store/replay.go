package store

import (
	"context"
	"fmt"

	"github.com/roach88/sagalog/internal/ir"
)

// InstanceState summarizes one instance's history for recovery analysis.
type InstanceState struct {
	InstanceID string
	Events     []ir.Event

	HasPrecall bool
	HasCall    bool

	// Success is the recorded outcome. Meaningful only when HasCall.
	Success bool

	// Violations lists structural problems: duplicate slots, a call
	// recorded before its precall, or events naming different steps.
	Violations []string
}

// InFlight reports a precall without a call: the process stopped inside
// the step and the next run will probe it.
func (s InstanceState) InFlight() bool {
	return s.HasPrecall && !s.HasCall
}

// Complete reports that both slots are recorded.
func (s InstanceState) Complete() bool {
	return s.HasPrecall && s.HasCall
}

// Status returns a one-word description: "fresh", "in-flight", "succeeded",
// "failed" or "invalid".
func (s InstanceState) Status() string {
	switch {
	case len(s.Violations) > 0:
		return "invalid"
	case s.Complete() && s.Success:
		return "succeeded"
	case s.Complete():
		return "failed"
	case s.InFlight():
		return "in-flight"
	default:
		return "fresh"
	}
}

// AnalyzeEvents classifies an instance's events.
func AnalyzeEvents(instanceID string, events []ir.Event) InstanceState {
	state := InstanceState{InstanceID: instanceID, Events: events}

	var first ir.StepKey
	for i, ev := range events {
		key := ev.Key()
		if i == 0 {
			first = key
		} else if key != first {
			state.Violations = append(state.Violations,
				fmt.Sprintf("event %d names step %s, expected %s", i+1, key, first))
		}

		switch e := ev.(type) {
		case ir.Precall:
			if state.HasPrecall {
				state.Violations = append(state.Violations, "duplicate precall")
			}
			if state.HasCall {
				state.Violations = append(state.Violations, "precall recorded after call")
			}
			state.HasPrecall = true
		case ir.Call:
			if state.HasCall {
				state.Violations = append(state.Violations, "duplicate call")
			}
			if !state.HasPrecall {
				state.Violations = append(state.Violations, "call recorded without preceding precall")
			}
			state.HasCall = true
			state.Success = e.Success
		default:
			state.Violations = append(state.Violations, fmt.Sprintf("unsupported event %T", ev))
		}
	}
	return state
}

// Inspect reads and analyzes one instance.
func Inspect(ctx context.Context, repo Repository, instanceID string) (InstanceState, error) {
	events, err := repo.Read(ctx, instanceID)
	if err != nil {
		return InstanceState{InstanceID: instanceID}, fmt.Errorf("inspect %s: %w", instanceID, err)
	}
	return AnalyzeEvents(instanceID, events), nil
}

// InspectAll analyzes every instance in the repository, in instance order.
func InspectAll(ctx context.Context, repo Repository) ([]InstanceState, error) {
	ids, err := repo.Instances(ctx)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	states := make([]InstanceState, 0, len(ids))
	for _, id := range ids {
		st, err := Inspect(ctx, repo, id)
		if err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	return states, nil
}

// FindInFlight returns the instances stopped between precall and call.
func FindInFlight(ctx context.Context, repo Repository) ([]InstanceState, error) {
	states, err := InspectAll(ctx, repo)
	if err != nil {
		return nil, err
	}
	var inFlight []InstanceState
	for _, st := range states {
		if st.InFlight() && len(st.Violations) == 0 {
			inFlight = append(inFlight, st)
		}
	}
	return inFlight, nil
}
