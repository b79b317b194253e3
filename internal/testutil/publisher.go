package testutil

import (
	"context"
	"sync"

	"github.com/roach88/sagalog/internal/ir"
)

// Publisher records published events in memory.
//
// It satisfies engine.Publisher. Errors can be injected per event type
// with FailOn; a failed publish is not recorded.
type Publisher struct {
	mu      sync.Mutex
	events  []ir.Event
	failOn  map[ir.EventType]error
	journal *Journal
}

// NewPublisher creates a publisher. journal may be nil.
func NewPublisher(journal *Journal) *Publisher {
	return &Publisher{failOn: make(map[ir.EventType]error), journal: journal}
}

// FailOn makes every publish of the given type return err.
func (p *Publisher) FailOn(t ir.EventType, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failOn[t] = err
}

// Publish records ev.
func (p *Publisher) Publish(ctx context.Context, ev ir.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failOn[ev.Type()]; err != nil {
		p.journal.Add("publish %s %s failed", ev.Type(), ev.Key())
		return err
	}
	p.events = append(p.events, ev)
	p.journal.Add("publish %s %s", ev.Type(), ev.Key())
	return nil
}

// Events returns the recorded events in publish order.
func (p *Publisher) Events() []ir.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ir.Event(nil), p.events...)
}

// Calls returns the recorded call events.
func (p *Publisher) Calls() []ir.Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	var calls []ir.Call
	for _, ev := range p.events {
		if c, ok := ev.(ir.Call); ok {
			calls = append(calls, c)
		}
	}
	return calls
}
