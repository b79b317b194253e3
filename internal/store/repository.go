package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/sagalog/internal/ir"
)

// ErrEmptyInstance is returned when an instance id is empty.
var ErrEmptyInstance = errors.New("store: instance id is required")

// Repository is an append-only event log partitioned by instance id.
type Repository interface {
	// Append records ev for instanceID. A second event of the same type
	// for the same instance is ignored.
	Append(ctx context.Context, instanceID string, ev ir.Event) error

	// Read returns the instance's events in append order. An unknown
	// instance has no events.
	Read(ctx context.Context, instanceID string) ([]ir.Event, error)

	// Delete removes all events of the instance.
	Delete(ctx context.Context, instanceID string) error

	// Instances lists instance ids with at least one event, sorted.
	Instances(ctx context.Context) ([]string, error)
}

// Stream exposes one instance of a Repository as a history iterator and a
// publisher, the two views the engine needs for a step.
//
// The events are loaded on the first call to Next, not when the stream is
// created. Publishing does not affect an iteration already in progress.
type Stream struct {
	repo       Repository
	instanceID string

	loaded bool
	events []ir.Event
	pos    int
}

// NewStream returns a stream over instanceID.
func NewStream(repo Repository, instanceID string) *Stream {
	return &Stream{repo: repo, instanceID: instanceID}
}

// Next implements history.Iterator.
func (s *Stream) Next(ctx context.Context) (ir.Event, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if !s.loaded {
		events, err := s.repo.Read(ctx, s.instanceID)
		if err != nil {
			return nil, false, fmt.Errorf("read history %s: %w", s.instanceID, err)
		}
		s.events = events
		s.loaded = true
	}
	if s.pos >= len(s.events) {
		return nil, false, nil
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, true, nil
}

// Publish implements engine.Publisher.
func (s *Stream) Publish(ctx context.Context, ev ir.Event) error {
	if err := s.repo.Append(ctx, s.instanceID, ev); err != nil {
		return fmt.Errorf("append %s to %s: %w", ev.Type(), s.instanceID, err)
	}
	return nil
}
