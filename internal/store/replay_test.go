package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sagalog/internal/ir"
)

func TestAnalyzeEvents(t *testing.T) {
	tests := []struct {
		name       string
		events     []ir.Event
		status     string
		violations int
	}{
		{name: "empty", events: nil, status: "fresh"},
		{name: "precall only", events: []ir.Event{testPrecall("s", "n")}, status: "in-flight"},
		{
			name:   "succeeded",
			events: []ir.Event{testPrecall("s", "n"), testCall("s", "n", true, `1`)},
			status: "succeeded",
		},
		{
			name:   "failed",
			events: []ir.Event{testPrecall("s", "n"), testCall("s", "n", false, `{"message":"x"}`)},
			status: "failed",
		},
		{
			name:       "call before precall",
			events:     []ir.Event{testCall("s", "n", true, `1`), testPrecall("s", "n")},
			status:     "invalid",
			violations: 2,
		},
		{
			name:       "mixed steps",
			events:     []ir.Event{testPrecall("s", "n"), testCall("s", "other", true, `1`)},
			status:     "invalid",
			violations: 1,
		},
		{
			name:       "duplicate precall",
			events:     []ir.Event{testPrecall("s", "n"), testPrecall("s", "n")},
			status:     "invalid",
			violations: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := AnalyzeEvents("i", tt.events)
			assert.Equal(t, tt.status, st.Status())
			assert.Len(t, st.Violations, tt.violations)
		})
	}
}

func TestInspectAll_AndFindInFlight(t *testing.T) {
	ctx := context.Background()
	repo := NewMemory()
	require.NoError(t, repo.Append(ctx, "saga/0", testPrecall("saga/0", "reserve")))
	require.NoError(t, repo.Append(ctx, "saga/0", testCall("saga/0", "reserve", true, `1`)))
	require.NoError(t, repo.Append(ctx, "saga/1", testPrecall("saga/1", "charge")))

	states, err := InspectAll(ctx, repo)
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, "succeeded", states[0].Status())
	assert.Equal(t, "in-flight", states[1].Status())

	inFlight, err := FindInFlight(ctx, repo)
	require.NoError(t, err)
	require.Len(t, inFlight, 1)
	assert.Equal(t, "saga/1", inFlight[0].InstanceID)
}

func TestEncodeEvent(t *testing.T) {
	enc, err := EncodeEvent("saga/0", testPrecall("saga/0", "reserve"))
	require.NoError(t, err)
	assert.Equal(t, ir.EventPrecall, enc.Type)
	assert.Equal(t, "saga/0", enc.StepID)
	assert.Equal(t, "reserve", enc.Name)
	assert.Len(t, enc.ID, 64)
	assert.Equal(t, `{"type":"precall","payload":{"stepId":"saga/0","name":"reserve"}}`, string(enc.Data))

	_, err = EncodeEvent("", testPrecall("s", "n"))
	assert.ErrorIs(t, err, ErrEmptyInstance)
	_, err = EncodeEvent("i", nil)
	assert.Error(t, err)
}
