package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/sagalog/internal/ir"
)

// ErrMissingCollaborator is returned when ExecuteStep is called without a
// step, history iterator, publisher or rollback registrar.
var ErrMissingCollaborator = errors.New("engine: step, history, publisher and registrar are required")

// PublishError reports that a history event could not be published.
//
// For a call event the step's outcome had already happened: StepErr holds
// the effect's error when the step failed and is nil when it succeeded.
// The rollback action for that outcome was registered regardless.
type PublishError struct {
	// Event is the type of the event that failed to publish.
	Event ir.EventType

	// Step identifies the step instance.
	Step ir.StepKey

	// Err is the publisher's error.
	Err error

	// StepErr is the effect's error for a failed step.
	StepErr error
}

// Error implements the error interface.
func (e *PublishError) Error() string {
	if e.StepErr != nil {
		return fmt.Sprintf("engine: publish %s for %s: %v (step failed: %v)", e.Event, e.Step, e.Err, e.StepErr)
	}
	return fmt.Sprintf("engine: publish %s for %s: %v", e.Event, e.Step, e.Err)
}

// Unwrap exposes both the publish error and the step error to errors.Is
// and errors.As.
func (e *PublishError) Unwrap() []error {
	if e.StepErr != nil {
		return []error{e.Err, e.StepErr}
	}
	return []error{e.Err}
}

// IsPublishError returns true if err is or wraps a *PublishError.
func IsPublishError(err error) bool {
	var pe *PublishError
	return errors.As(err, &pe)
}

// ResultError reports that a result could not be encoded for, or decoded
// from, a call event.
type ResultError struct {
	Step ir.StepKey
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *ResultError) Error() string {
	return fmt.Sprintf("engine: %s result for %s: %v", e.Op, e.Step, e.Err)
}

// Unwrap returns the codec error.
func (e *ResultError) Unwrap() error {
	return e.Err
}
