// Package rollback collects the compensation actions registered by the
// engine and runs them in reverse registration order.
package rollback

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Action compensates one step outcome.
type Action func() error

// Stack is a LIFO registry of rollback actions for one saga.
//
// Register is safe for concurrent use. Compensate drains the stack, so each
// registered action runs at most once.
type Stack struct {
	mu      sync.Mutex
	actions []Action
	logger  *slog.Logger
}

// NewStack creates an empty stack. A nil logger uses slog.Default().
func NewStack(logger *slog.Logger) *Stack {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stack{logger: logger}
}

// Register pushes an action. Its method value satisfies
// engine.RollbackRegistrar.
func (s *Stack) Register(a Action) {
	if a == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, a)
}

// Len returns the number of pending actions.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.actions)
}

// Compensate runs every pending action, most recent first. A failing action
// does not stop the others; all failures are joined into the returned error.
// A panicking action is reported as a failure.
func (s *Stack) Compensate() error {
	s.mu.Lock()
	actions := s.actions
	s.actions = nil
	s.mu.Unlock()

	var errs []error
	for i := len(actions) - 1; i >= 0; i-- {
		if err := runAction(actions[i]); err != nil {
			s.logger.Warn("rollback action failed", "index", i, "error", err)
			errs = append(errs, fmt.Errorf("rollback %d: %w", i, err))
		}
	}
	if len(errs) > 0 {
		s.logger.Error("compensation incomplete", "failed", len(errs), "total", len(actions))
	} else if len(actions) > 0 {
		s.logger.Info("compensation complete", "total", len(actions))
	}
	return errors.Join(errs...)
}

func runAction(a Action) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return a()
}
