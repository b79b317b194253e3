package effect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Failure is the serializable error payload stored in a failed call event.
//
// Effects that need callers (or a later replay) to distinguish failures
// should return a *Failure, or an error wrapping one; other errors are
// recorded by message only. A replayed failure is always a *Failure.
type Failure struct {
	// Kind categorizes the failure (e.g. "declined", "timeout").
	Kind string `json:"kind,omitempty"`

	// Message is the error text.
	Message string `json:"message"`

	// Details carries arbitrary JSON attached by the effect.
	Details json.RawMessage `json:"details,omitempty"`

	// Text is the full error text when the failure was returned wrapped,
	// e.g. "charge order o1: declined: card expired".
	Text string `json:"text,omitempty"`
}

// NewFailure creates a Failure with a formatted message.
func NewFailure(kind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (f *Failure) Error() string {
	if f.Text != "" {
		return f.Text
	}
	if f.Kind != "" {
		return fmt.Sprintf("%s: %s", f.Kind, f.Message)
	}
	return f.Message
}

// Is matches another *Failure with the same kind and message, so a
// replayed failure compares equal to the one originally returned.
func (f *Failure) Is(target error) bool {
	var other *Failure
	if !errors.As(target, &other) {
		return false
	}
	return f.Kind == other.Kind && f.Message == other.Message
}

// EncodeError serializes err as the ret payload of a failed call event.
// Kind and Details come from a wrapped *Failure; the error text is kept
// whole so a replay reports exactly what the effect returned.
func EncodeError(err error) (json.RawMessage, error) {
	var f *Failure
	if errors.As(err, &f) {
		rec := *f
		if text := err.Error(); text != f.Error() {
			rec.Text = text
		}
		f = &rec
	} else {
		f = &Failure{Message: err.Error()}
	}
	data, mErr := json.Marshal(f)
	if mErr != nil {
		return nil, fmt.Errorf("encode failure: %w", mErr)
	}
	return data, nil
}

// DecodeError restores the error recorded in a failed call event.
// An object with a "message" key is a Failure, even when its fields are
// empty. Any other payload (e.g. a bare JSON string written by another
// producer) becomes the message of a Failure.
func DecodeError(raw json.RawMessage) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err == nil {
		if _, ok := fields["message"]; ok {
			var f Failure
			if err := json.Unmarshal(raw, &f); err == nil {
				return &f
			}
		}
	}
	var msg string
	if err := json.Unmarshal(raw, &msg); err == nil {
		return &Failure{Message: msg}
	}
	return &Failure{Message: string(raw)}
}

// IsCancellation reports whether err signals cooperative cancellation.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
