package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/sagalog/internal/ir"
)

// TraceSnapshot captures the observable outcome of a scenario execution.
// It is serialized as canonical JSON for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	SagaID       string       `json:"saga_id"`
	Status       string       `json:"status"`
	Output       any          `json:"output,omitempty"`
	Error        string       `json:"error,omitempty"`
	Trace        []TraceEvent `json:"trace"`
}

// Snapshot builds the golden snapshot of result.
func Snapshot(name, sagaID string, result *Result) TraceSnapshot {
	s := TraceSnapshot{
		ScenarioName: name,
		SagaID:       sagaID,
		Status:       result.Status,
		Output:       result.Output,
		Trace:        result.Trace,
	}
	if result.Err != nil {
		s.Error = result.Err.Error()
	}
	return s
}

// MarshalSnapshot returns the canonical JSON of s.
func MarshalSnapshot(s TraceSnapshot) ([]byte, error) {
	return ir.MarshalCanonical(s)
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass; a snapshot mismatch
// fails t through goldie.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, scenario.SagaID, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, name, sagaID string, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(Snapshot(name, sagaID, result))
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
