package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/sagalog/internal/saga"
	"github.com/roach88/sagalog/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s", event.Seq, event.Label())
			if event.StepID != "" {
				fmt.Fprintf(&buf, " (%s)", event.StepID)
			}
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

func matches(event TraceEvent, a Assertion) bool {
	return event.Kind == a.Kind && event.Name == a.Name && (a.StepID == "" || event.StepID == a.StepID)
}

// assertTraceContains checks that an event of the assertion's kind and
// name appears in the trace.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if matches(event, assertion) {
			return nil
		}
	}

	expected := assertion.Kind + " " + assertion.Name
	if assertion.StepID != "" {
		expected += " on " + assertion.StepID
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that labelled events appear in the specified
// order. Events need not be consecutive; each label matches its first
// occurrence after the previous match.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	pos := 0
	for _, label := range assertion.Events {
		found := false
		for pos < len(trace) {
			event := trace[pos]
			pos++
			if event.Label() == label {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("events in order: %v", assertion.Events),
				Actual:   fmt.Sprintf("%q missing or out of order", label),
				Trace:    trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks if the event appears exactly the specified number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if matches(event, assertion) {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s %s", assertion.Count, assertion.Kind, assertion.Name),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalHistory checks the status of a step instance's history.
func assertFinalHistory(actx *AssertionContext, assertion Assertion) error {
	instanceID := saga.StepID(actx.SagaID, assertion.Step)
	state, err := store.Inspect(actx.Ctx, actx.Repo, instanceID)
	if err != nil {
		return err
	}
	if got := state.Status(); got != assertion.Status {
		actual := got
		if len(state.Violations) > 0 {
			actual += fmt.Sprintf(" (%s)", strings.Join(state.Violations, "; "))
		}
		return &AssertionError{
			Type:     AssertFinalHistory,
			Expected: fmt.Sprintf("%s is %s", instanceID, assertion.Status),
			Actual:   actual,
		}
	}
	return nil
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Ctx    context.Context
	Repo   store.Repository
	SagaID string
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides repository access for final_history assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalHistory:
			if actx == nil || actx.Repo == nil {
				err = fmt.Errorf("assertion[%d]: final_history requires a repository", i)
			} else {
				err = assertFinalHistory(actx, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
