package store

import (
	"fmt"

	"github.com/roach88/sagalog/internal/ir"
)

// EncodedEvent is an event in its persisted form.
type EncodedEvent struct {
	ID     string
	Type   ir.EventType
	StepID string
	Name   string

	// Data is the wire envelope {"type":...,"payload":{...}}. The recorded
	// ret is kept byte-for-byte (compacted) so replays see the original
	// value.
	Data []byte
}

// EncodeEvent prepares ev for storage under instanceID. Backends share it so
// every log stores byte-identical payloads.
func EncodeEvent(instanceID string, ev ir.Event) (EncodedEvent, error) {
	if instanceID == "" {
		return EncodedEvent{}, ErrEmptyInstance
	}
	if ev == nil {
		return EncodedEvent{}, fmt.Errorf("encode event: nil event")
	}
	data, err := ir.MarshalEvent(ev)
	if err != nil {
		return EncodedEvent{}, err
	}
	id, err := ir.EventID(instanceID, ev)
	if err != nil {
		return EncodedEvent{}, fmt.Errorf("encode event: %w", err)
	}
	key := ev.Key()
	return EncodedEvent{ID: id, Type: ev.Type(), StepID: key.StepID, Name: key.Name, Data: data}, nil
}

// DecodeEvent restores an event from its persisted form.
func DecodeEvent(data []byte) (ir.Event, error) {
	ev, err := ir.UnmarshalEvent(data)
	if err != nil {
		return nil, fmt.Errorf("decode stored event: %w", err)
	}
	return ev, nil
}
