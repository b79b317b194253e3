package saga

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/sagalog/internal/effect"
)

// ErrAborted is returned by Yield.Do after the driver stopped the saga,
// typically because a step failed. Workflows should return promptly.
var ErrAborted = errors.New("saga: aborted")

// Sequence produces a saga's invocations one at a time.
type Sequence interface {
	// Next resumes the sequence with the previous step's result (nil on
	// the first call) and returns the next invocation. ok is false once
	// the sequence has completed; a non-nil error fails the saga.
	Next(ctx context.Context, prev any) (inv effect.Invocation, ok bool, err error)

	// Result returns the completion value after Next reported ok=false.
	Result() any

	// Close releases the sequence. It is safe to call more than once.
	Close()
}

// Workflow builds the sequence for one saga run.
type Workflow[P any] func(payload P) Sequence

// Steps returns a sequence yielding invs in order. Its result is the
// last step's result.
func Steps(invs ...effect.Invocation) Sequence {
	return &stepsSequence{invs: invs}
}

type stepsSequence struct {
	invs []effect.Invocation
	pos  int
	last any
}

func (s *stepsSequence) Next(_ context.Context, prev any) (effect.Invocation, bool, error) {
	if s.pos > 0 {
		s.last = prev
	}
	if s.pos >= len(s.invs) {
		return nil, false, nil
	}
	inv := s.invs[s.pos]
	s.pos++
	return inv, true, nil
}

func (s *stepsSequence) Result() any { return s.last }

func (s *stepsSequence) Close() {}

// Yield is the workflow side of a Generate sequence.
type Yield struct {
	requests chan effect.Invocation
	replies  chan any
	abort    chan struct{}
}

// Do suspends the workflow until the driver has run inv, and returns the
// result. After the saga is aborted it returns ErrAborted immediately.
func (y *Yield) Do(inv effect.Invocation) (any, error) {
	select {
	case y.requests <- inv:
	case <-y.abort:
		return nil, ErrAborted
	}
	select {
	case v := <-y.replies:
		return v, nil
	case <-y.abort:
		return nil, ErrAborted
	}
}

// Do runs inv and asserts its result type.
func Do[R any](y *Yield, inv effect.Invocation) (R, error) {
	var zero R
	v, err := y.Do(inv)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	r, ok := v.(R)
	if !ok {
		return zero, fmt.Errorf("saga: step %s returned %T, want %T", inv.Name(), v, zero)
	}
	return r, nil
}

// Params resolves the system parameters pseudo-effect.
func Params(y *Yield) (SystemParams, error) {
	return Do[SystemParams](y, effect.SystemParams{})
}

// Generate turns a straight-line workflow body into a Workflow. The body
// runs on its own goroutine and hands each invocation to the driver
// through y. Its return value completes the sequence; an error or a panic
// fails the saga.
func Generate[P any](body func(y *Yield, payload P) (any, error)) Workflow[P] {
	return func(payload P) Sequence {
		return &generator[P]{
			body:    body,
			payload: payload,
			y: &Yield{
				requests: make(chan effect.Invocation),
				replies:  make(chan any),
				abort:    make(chan struct{}),
			},
			done: make(chan struct{}),
		}
	}
}

type generator[P any] struct {
	body    func(*Yield, P) (any, error)
	payload P
	y       *Yield

	started   bool
	finished  bool
	done      chan struct{}
	closeOnce sync.Once

	// Written by the body goroutine before done is closed.
	result any
	err    error
}

func (g *generator[P]) run() {
	defer close(g.done)
	defer func() {
		if r := recover(); r != nil {
			g.err = fmt.Errorf("saga: workflow panicked: %v", r)
		}
	}()
	g.result, g.err = g.body(g.y, g.payload)
}

func (g *generator[P]) Next(ctx context.Context, prev any) (effect.Invocation, bool, error) {
	if g.finished {
		return nil, false, g.err
	}
	if !g.started {
		g.started = true
		go g.run()
	} else {
		select {
		case g.y.replies <- prev:
		case <-g.done:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}

	select {
	case inv := <-g.y.requests:
		return inv, true, nil
	case <-g.done:
		g.finished = true
		return nil, false, g.err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func (g *generator[P]) Result() any {
	return g.result
}

// Close aborts a body still waiting in Do. It does not wait for the body
// goroutine to return.
func (g *generator[P]) Close() {
	g.closeOnce.Do(func() { close(g.y.abort) })
}
