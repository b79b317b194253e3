package store

import (
	"context"
	"fmt"

	"github.com/roach88/sagalog/internal/ir"
)

// Read returns the instance's events ordered by seq ASC, id ASC COLLATE BINARY.
// Returns an empty slice (not nil) if the instance has no events.
func (s *SQLite) Read(ctx context.Context, instanceID string) ([]ir.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data
		FROM events
		WHERE instance_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []ir.Event{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev, err := DecodeEvent([]byte(data))
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// Instances returns all instance ids in binary order.
func (s *SQLite) Instances(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT instance_id
		FROM events
		ORDER BY instance_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query instances: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instances: %w", err)
	}
	return ids, nil
}
