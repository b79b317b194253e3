package history

import (
	"context"

	"github.com/roach88/sagalog/internal/ir"
)

// Iterator is a forward-only, non-restartable sequence of recorded events
// for one step instance. Next blocks on the event source and honours ctx;
// it returns ok=false once the sequence is exhausted.
type Iterator interface {
	Next(ctx context.Context) (ev ir.Event, ok bool, err error)
}

// IteratorFunc adapts a function to Iterator.
type IteratorFunc func(ctx context.Context) (ir.Event, bool, error)

// Next implements Iterator.
func (f IteratorFunc) Next(ctx context.Context) (ir.Event, bool, error) {
	return f(ctx)
}

// SliceIterator iterates over an in-memory history.
type SliceIterator struct {
	events []ir.Event
	pos    int
}

// NewSliceIterator creates an iterator over events in order.
func NewSliceIterator(events ...ir.Event) *SliceIterator {
	return &SliceIterator{events: events}
}

// Next implements Iterator. A cancelled context is reported before any
// element is consumed.
func (it *SliceIterator) Next(ctx context.Context) (ir.Event, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if it.pos >= len(it.events) {
		return nil, false, nil
	}
	ev := it.events[it.pos]
	it.pos++
	return ev, true, nil
}

// Consumed returns how many events have been read.
func (it *SliceIterator) Consumed() int {
	return it.pos
}
