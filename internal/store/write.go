package store

import (
	"context"
	"fmt"

	"github.com/roach88/sagalog/internal/ir"
)

// Append inserts ev into the instance's log.
// Uses ON CONFLICT DO NOTHING for idempotency: a second event for an
// occupied slot is silently ignored. The seq is one past the instance's
// current maximum.
func (s *SQLite) Append(ctx context.Context, instanceID string, ev ir.Event) error {
	enc, err := EncodeEvent(instanceID, ev)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (id, instance_id, seq, type, step_id, name, data)
		SELECT ?, ?, COALESCE(MAX(seq), 0) + 1, ?, ?, ?, ?
		FROM events WHERE instance_id = ?
		ON CONFLICT DO NOTHING
	`,
		enc.ID,
		instanceID,
		string(enc.Type),
		enc.StepID,
		enc.Name,
		string(enc.Data),
		instanceID,
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// Delete removes every event of the instance.
func (s *SQLite) Delete(ctx context.Context, instanceID string) error {
	if instanceID == "" {
		return ErrEmptyInstance
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE instance_id = ?`, instanceID); err != nil {
		return fmt.Errorf("delete instance %s: %w", instanceID, err)
	}
	return nil
}
