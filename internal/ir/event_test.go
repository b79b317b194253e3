package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalEvent_WireShape(t *testing.T) {
	tests := []struct {
		name     string
		event    Event
		expected string
	}{
		{
			name:     "precall",
			event:    Precall{StepID: "step1", Name: "effect1"},
			expected: `{"type":"precall","payload":{"stepId":"step1","name":"effect1"}}`,
		},
		{
			name:     "successful call",
			event:    Call{StepID: "step1", Name: "effect1", Success: true, Ret: json.RawMessage(`"result"`)},
			expected: `{"type":"call","payload":{"stepId":"step1","name":"effect1","success":true,"ret":"result"}}`,
		},
		{
			name:     "failed call with object payload",
			event:    Call{StepID: "s", Name: "n", Ret: json.RawMessage(`{"message":"boom"}`)},
			expected: `{"type":"call","payload":{"stepId":"s","name":"n","success":false,"ret":{"message":"boom"}}}`,
		},
		{
			name:     "call without ret",
			event:    Call{StepID: "s", Name: "n", Success: true},
			expected: `{"type":"call","payload":{"stepId":"s","name":"n","success":true,"ret":null}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := MarshalEvent(tt.event)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(data))
		})
	}
}

func TestUnmarshalEvent_RoundTrip(t *testing.T) {
	events := []Event{
		Precall{StepID: "saga-1/0", Name: "reserve"},
		Call{StepID: "saga-1/0", Name: "reserve", Success: true, Ret: json.RawMessage(`{"id":7}`)},
		Call{StepID: "saga-1/1", Name: "charge", Success: false, Ret: json.RawMessage(`{"message":"declined"}`)},
	}

	for _, ev := range events {
		data, err := MarshalEvent(ev)
		require.NoError(t, err)

		decoded, err := UnmarshalEvent(data)
		require.NoError(t, err)
		assert.Equal(t, ev, decoded)
	}
}

func TestUnmarshalEvent_NullRet(t *testing.T) {
	decoded, err := UnmarshalEvent([]byte(`{"type":"call","payload":{"stepId":"s","name":"n","success":true}}`))
	require.NoError(t, err)

	call, ok := decoded.(Call)
	require.True(t, ok, "expected Call, got %T", decoded)
	assert.Equal(t, json.RawMessage("null"), call.Ret)
}

func TestUnmarshalEvent_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{`},
		{"unknown type", `{"type":"checkpoint","payload":{"stepId":"s","name":"n"}}`},
		{"missing payload", `{"type":"precall"}`},
		{"missing step id", `{"type":"precall","payload":{"name":"n"}}`},
		{"missing name", `{"type":"call","payload":{"stepId":"s","success":true,"ret":1}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalEvent([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestEvent_Key(t *testing.T) {
	p := Precall{StepID: "step1", Name: "effect1"}
	c := Call{StepID: "step1", Name: "effect1", Success: true}

	assert.Equal(t, EventPrecall, p.Type())
	assert.Equal(t, EventCall, c.Type())
	assert.Equal(t, p.Key(), c.Key())
	assert.Equal(t, "step1/effect1", p.Key().String())
}
