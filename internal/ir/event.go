package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EventType is the persisted discriminator of a history event.
type EventType string

const (
	// EventPrecall is recorded before an effect is invoked.
	EventPrecall EventType = "precall"

	// EventCall is recorded after an effect invocation resolves or rejects.
	EventCall EventType = "call"
)

// Event is a sealed interface over the two history event variants.
// Only Precall and Call implement it; switch on the concrete type for
// exhaustive handling.
type Event interface {
	// Type returns the persisted discriminator.
	Type() EventType

	// Key returns the step identity the event was recorded for.
	Key() StepKey

	isEvent()
}

// StepKey identifies one step instance: the caller-supplied step id plus
// the effect descriptor name.
type StepKey struct {
	StepID string
	Name   string
}

// String renders the key as stepID/name for logs and error messages.
func (k StepKey) String() string {
	return k.StepID + "/" + k.Name
}

// Precall marks that an effect is about to be invoked.
type Precall struct {
	StepID string `json:"stepId"`
	Name   string `json:"name"`
}

func (Precall) isEvent() {}

// Type implements Event.
func (Precall) Type() EventType { return EventPrecall }

// Key implements Event.
func (p Precall) Key() StepKey { return StepKey{StepID: p.StepID, Name: p.Name} }

// Call records the outcome of an effect invocation.
//
// When Success is true, Ret holds the JSON-encoded result. When false, Ret
// holds the JSON-encoded failure payload (see effect.Failure).
type Call struct {
	StepID  string          `json:"stepId"`
	Name    string          `json:"name"`
	Success bool            `json:"success"`
	Ret     json.RawMessage `json:"ret"`
}

func (Call) isEvent() {}

// Type implements Event.
func (Call) Type() EventType { return EventCall }

// Key implements Event.
func (c Call) Key() StepKey { return StepKey{StepID: c.StepID, Name: c.Name} }

// envelope is the persisted wire shape of an event.
type envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// MarshalEvent encodes an event into its persisted wire shape.
// A Call with an empty Ret is encoded with "ret":null.
func MarshalEvent(e Event) ([]byte, error) {
	var (
		payload []byte
		err     error
	)
	switch ev := e.(type) {
	case Precall:
		payload, err = json.Marshal(ev)
	case *Precall:
		payload, err = json.Marshal(*ev)
	case Call:
		payload, err = json.Marshal(normalizeCall(ev))
	case *Call:
		payload, err = json.Marshal(normalizeCall(*ev))
	default:
		return nil, fmt.Errorf("marshal event: unsupported event %T", e)
	}
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return json.Marshal(envelope{Type: e.Type(), Payload: payload})
}

// UnmarshalEvent decodes the persisted wire shape. Unknown types and
// payloads missing stepId or name are rejected.
func UnmarshalEvent(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	if len(env.Payload) == 0 {
		return nil, fmt.Errorf("unmarshal event: missing payload")
	}

	dec := json.NewDecoder(bytes.NewReader(env.Payload))
	switch env.Type {
	case EventPrecall:
		var p Precall
		if err := dec.Decode(&p); err != nil {
			return nil, fmt.Errorf("unmarshal precall: %w", err)
		}
		if p.StepID == "" || p.Name == "" {
			return nil, fmt.Errorf("unmarshal precall: stepId and name are required")
		}
		return p, nil
	case EventCall:
		var c Call
		if err := dec.Decode(&c); err != nil {
			return nil, fmt.Errorf("unmarshal call: %w", err)
		}
		if c.StepID == "" || c.Name == "" {
			return nil, fmt.Errorf("unmarshal call: stepId and name are required")
		}
		return normalizeCall(c), nil
	default:
		return nil, fmt.Errorf("unmarshal event: unknown type %q", env.Type)
	}
}

func normalizeCall(c Call) Call {
	if len(c.Ret) == 0 {
		c.Ret = json.RawMessage("null")
	}
	return c
}
