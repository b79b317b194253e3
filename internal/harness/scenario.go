package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"
	"sort"

	"gopkg.in/yaml.v3"
)

// DefaultSagaID is used when a scenario does not name its saga.
const DefaultSagaID = "scenario"

// Scenario defines a saga run against preloaded history.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// SagaID is the saga id; step instances are "<saga_id>/<index>".
	SagaID string `yaml:"saga_id,omitempty"`

	// History preloads events before the saga runs.
	History []HistoryStep `yaml:"history,omitempty"`

	// Effects scripts each effect used by the flow, keyed by name.
	Effects map[string]EffectScript `yaml:"effects"`

	// Flow lists the saga's steps in order.
	Flow []FlowStep `yaml:"flow"`

	// Compensate runs the registered rollback actions after a failed saga.
	Compensate bool `yaml:"compensate,omitempty"`

	// Expect describes the saga's outcome.
	Expect Expectation `yaml:"expect"`

	// Assertions validate the trace and the final history.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// HistoryStep holds the preloaded events of one step instance.
type HistoryStep struct {
	Step   int            `yaml:"step"`
	Events []HistoryEvent `yaml:"events"`
}

// HistoryEvent is a preloaded event. StepID defaults to the instance id.
type HistoryEvent struct {
	Type    string `yaml:"type"` // "precall" | "call"
	StepID  string `yaml:"step_id,omitempty"`
	Name    string `yaml:"name"`
	Success bool   `yaml:"success,omitempty"`
	Ret     any    `yaml:"ret,omitempty"`
}

// Probe behaviours.
const (
	ProbeCallNeeded = "call_needed"
	ProbeSucceeded  = "succeeded"
	ProbeError      = "error"
)

// EffectScript scripts one effect's bodies.
type EffectScript struct {
	// Result is returned by the effect unless Error is set.
	Result any `yaml:"result,omitempty"`

	// Error makes the effect fail with an effect.Failure.
	Error *FailureScript `yaml:"error,omitempty"`

	// Probe is call_needed (default), succeeded or error.
	Probe       string `yaml:"probe,omitempty"`
	ProbeResult any    `yaml:"probe_result,omitempty"`
	ProbeError  string `yaml:"probe_error,omitempty"`

	// RollbackError makes the rollback fail.
	RollbackError string `yaml:"rollback_error,omitempty"`
}

// FailureScript is the failure an effect returns.
type FailureScript struct {
	Kind    string `yaml:"kind,omitempty"`
	Message string `yaml:"message"`
}

// FlowStep invokes one effect.
type FlowStep struct {
	Effect string `yaml:"effect"`
	Args   any    `yaml:"args,omitempty"`
}

// Saga outcomes.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Expectation describes the saga's outcome.
type Expectation struct {
	// Status is completed or failed.
	Status string `yaml:"status"`

	// Result is compared with the saga's result as canonical JSON.
	// If nil, the result is not checked.
	Result any `yaml:"result,omitempty"`

	// Error must be a substring of the saga's error.
	Error string `yaml:"error,omitempty"`

	// CompensationError must be a substring of the compensation error.
	CompensationError string `yaml:"compensation_error,omitempty"`
}

// Assertion validates the trace or the final history.
type Assertion struct {
	// Type is trace_contains, trace_order, trace_count or final_history.
	Type string `yaml:"type"`

	// Kind and Name select trace events (trace_contains, trace_count).
	Kind string `yaml:"kind,omitempty"`
	Name string `yaml:"name,omitempty"`

	// StepID narrows trace_contains to one step instance.
	StepID string `yaml:"step_id,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Events is the expected order of "kind name" labels (trace_order).
	Events []string `yaml:"events,omitempty"`

	// Step and Status check a step instance's history (final_history).
	Step   int    `yaml:"step,omitempty"`
	Status string `yaml:"status,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalHistory  = "final_history"
)

var traceKinds = []string{KindPrecall, KindCall, KindEffect, KindProbe, KindRegister, KindRollback}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.SagaID == "" {
		scenario.SagaID = DefaultSagaID
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for i, step := range s.Flow {
		if step.Effect == "" {
			return fmt.Errorf("flow[%d]: effect is required", i)
		}
		if _, ok := s.Effects[step.Effect]; !ok {
			return fmt.Errorf("flow[%d]: effect %q is not scripted", i, step.Effect)
		}
	}

	for _, name := range sortedEffectNames(s.Effects) {
		if err := validateEffect(name, s.Effects[name]); err != nil {
			return err
		}
	}

	for i, h := range s.History {
		if h.Step < 0 {
			return fmt.Errorf("history[%d]: step must be non-negative", i)
		}
		for j, ev := range h.Events {
			if ev.Type != "precall" && ev.Type != "call" {
				return fmt.Errorf("history[%d].events[%d]: type must be precall or call, got %q", i, j, ev.Type)
			}
			if ev.Name == "" {
				return fmt.Errorf("history[%d].events[%d]: name is required", i, j)
			}
		}
	}

	switch s.Expect.Status {
	case StatusCompleted, StatusFailed:
	default:
		return fmt.Errorf("expect.status must be %s or %s, got %q", StatusCompleted, StatusFailed, s.Expect.Status)
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateEffect(name string, e EffectScript) error {
	switch e.Probe {
	case "", ProbeCallNeeded, ProbeSucceeded:
	case ProbeError:
		if e.ProbeError == "" {
			return fmt.Errorf("effects.%s: probe_error is required when probe is error", name)
		}
	default:
		return fmt.Errorf("effects.%s: unknown probe %q", name, e.Probe)
	}
	if e.Error != nil && e.Error.Message == "" {
		return fmt.Errorf("effects.%s.error: message is required", name)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains, AssertTraceCount:
		if !slices.Contains(traceKinds, a.Kind) {
			return fmt.Errorf("assertions[%d]: kind must be one of %v for %s", index, traceKinds, a.Type)
		}
		if a.Name == "" {
			return fmt.Errorf("assertions[%d]: name is required for %s", index, a.Type)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for trace_order", index)
		}
	case AssertFinalHistory:
		if a.Status == "" {
			return fmt.Errorf("assertions[%d]: status is required for final_history", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func sortedEffectNames(m map[string]EffectScript) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
