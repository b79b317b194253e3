package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sagalog/internal/ir"
	"github.com/roach88/sagalog/internal/store"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Seq: 1, Kind: KindPrecall, StepID: "s/0", Name: "reserve"},
		{Seq: 2, Kind: KindEffect, Name: "reserve"},
		{Seq: 3, Kind: KindCall, StepID: "s/0", Name: "reserve"},
		{Seq: 4, Kind: KindRegister, StepID: "s/0", Name: "reserve"},
		{Seq: 5, Kind: KindPrecall, StepID: "s/1", Name: "charge"},
		{Seq: 6, Kind: KindEffect, Name: "charge"},
		{Seq: 7, Kind: KindCall, StepID: "s/1", Name: "charge"},
		{Seq: 8, Kind: KindRegister, StepID: "s/1", Name: "charge"},
		{Seq: 9, Kind: KindRollback, Name: "charge"},
		{Seq: 10, Kind: KindRollback, Name: "reserve"},
	}
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceContains(trace, Assertion{Kind: KindCall, Name: "charge"}))
	assert.NoError(t, assertTraceContains(trace, Assertion{Kind: KindPrecall, Name: "charge", StepID: "s/1"}))

	err := assertTraceContains(trace, Assertion{Kind: KindPrecall, Name: "charge", StepID: "s/0"})
	require.Error(t, err)
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertTraceContains, ae.Type)
	assert.Equal(t, "precall charge on s/0", ae.Expected)
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	tests := []struct {
		name   string
		events []string
		ok     bool
	}{
		{"in order", []string{"call reserve", "call charge"}, true},
		{"non-consecutive", []string{"precall reserve", "register charge", "rollback reserve"}, true},
		{"reversed rollbacks", []string{"rollback charge", "rollback reserve"}, true},
		{"out of order", []string{"rollback reserve", "rollback charge"}, false},
		{"missing", []string{"call ship"}, false},
		{"repeated label needs two occurrences", []string{"call charge", "call charge"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertTraceOrder(trace, Assertion{Type: AssertTraceOrder, Events: tt.events})
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceCount(trace, Assertion{Kind: KindRegister, Name: "charge", Count: 1}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Kind: KindProbe, Name: "charge", Count: 0}))

	err := assertTraceCount(trace, Assertion{Kind: KindEffect, Name: "reserve", Count: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Expected: 2 occurrences of effect reserve")
	assert.Contains(t, err.Error(), "Actual: 1 occurrences")
}

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{
		Type:     AssertTraceCount,
		Expected: "1 occurrences of call a",
		Actual:   "0 occurrences",
		Trace: []TraceEvent{
			{Seq: 1, Kind: KindPrecall, StepID: "s/0", Name: "a"},
			{Seq: 2, Kind: KindEffect, Name: "a"},
		},
	}

	want := "Assertion failed: trace_count\n" +
		"  Expected: 1 occurrences of call a\n" +
		"  Actual: 0 occurrences\n" +
		"\nFull trace:\n" +
		"  [1] precall a (s/0)\n" +
		"  [2] effect a\n"
	assert.Equal(t, want, err.Error())
}

func TestAssertFinalHistory(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemory()
	require.NoError(t, repo.Append(ctx, "s/0", ir.Precall{StepID: "s/0", Name: "a"}))
	require.NoError(t, repo.Append(ctx, "s/0", ir.Call{StepID: "s/0", Name: "a", Success: true, Ret: []byte("1")}))
	require.NoError(t, repo.Append(ctx, "s/1", ir.Precall{StepID: "s/1", Name: "b"}))
	require.NoError(t, repo.Append(ctx, "s/2", ir.Precall{StepID: "s/2", Name: "c"}))
	require.NoError(t, repo.Append(ctx, "s/2", ir.Call{StepID: "s/2", Name: "d", Success: true, Ret: []byte("1")}))
	actx := &AssertionContext{Ctx: ctx, Repo: repo, SagaID: "s"}

	assert.NoError(t, assertFinalHistory(actx, Assertion{Step: 0, Status: "succeeded"}))
	assert.NoError(t, assertFinalHistory(actx, Assertion{Step: 1, Status: "in-flight"}))
	assert.NoError(t, assertFinalHistory(actx, Assertion{Step: 3, Status: "fresh"}))

	err := assertFinalHistory(actx, Assertion{Step: 1, Status: "succeeded"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Expected: s/1 is succeeded")
	assert.Contains(t, err.Error(), "Actual: in-flight")

	err = assertFinalHistory(actx, Assertion{Step: 2, Status: "in-flight"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Actual: invalid (")
}

func TestEvaluateAssertions(t *testing.T) {
	result := NewResult()
	result.Trace = sampleTrace()

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceContains, Kind: KindCall, Name: "reserve"},
		{Type: AssertTraceCount, Kind: KindRollback, Name: "charge", Count: 1},
		{Type: AssertTraceOrder, Events: []string{"call charge", "call reserve"}},
		{Type: AssertFinalHistory, Step: 0, Status: "fresh"},
		{Type: "bogus"},
	}, nil)

	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], "Assertion failed: trace_order")
	assert.Equal(t, "assertion[3]: final_history requires a repository", errs[1])
	assert.Equal(t, `assertion[4]: unknown assertion type "bogus"`, errs[2])
}
