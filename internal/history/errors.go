package history

import (
	"errors"
	"fmt"

	"github.com/roach88/sagalog/internal/ir"
)

// ErrContractViolation is returned when an iterator yields a call slot
// after reporting the precall slot as absent.
var ErrContractViolation = errors.New("history: call slot present without precall slot")

// Slot names the position being reconciled.
type Slot string

const (
	SlotPrecall Slot = "precall"
	SlotCall    Slot = "call"
)

// UnexpectedEventError reports a recorded event that does not match the
// step the workflow is running. It is fatal: the history was written by an
// incompatible workflow definition and must not be retried internally.
type UnexpectedEventError struct {
	// Slot is the slot that held the mismatching event.
	Slot Slot

	// Expected is the event type the slot must hold.
	Expected ir.EventType

	// Want is the step identity the workflow expects.
	Want ir.StepKey

	// Actual is the event found in history.
	Actual ir.Event
}

// Error implements the error interface.
func (e *UnexpectedEventError) Error() string {
	actualType := ir.EventType("<nil>")
	var actualKey ir.StepKey
	if e.Actual != nil {
		actualType = e.Actual.Type()
		actualKey = e.Actual.Key()
	}
	return fmt.Sprintf("history: unexpected event in %s slot: expected %s(stepId=%q, name=%q), got %s(stepId=%q, name=%q)",
		e.Slot, e.Expected, e.Want.StepID, e.Want.Name, actualType, actualKey.StepID, actualKey.Name)
}

// IsUnexpectedEvent returns true if err is or wraps an *UnexpectedEventError.
func IsUnexpectedEvent(err error) bool {
	var ue *UnexpectedEventError
	return errors.As(err, &ue)
}
