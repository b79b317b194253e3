// Package pgstore is a PostgreSQL store.Repository.
package pgstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roach88/sagalog/internal/ir"
	"github.com/roach88/sagalog/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS sagalog_events (
    id          TEXT PRIMARY KEY,
    instance_id TEXT NOT NULL,
    seq         BIGSERIAL NOT NULL,
    type        TEXT NOT NULL CHECK (type IN ('precall', 'call')),
    step_id     TEXT NOT NULL,
    name        TEXT NOT NULL,
    data        TEXT NOT NULL,
    UNIQUE (instance_id, type)
);
CREATE INDEX IF NOT EXISTS idx_sagalog_events_instance_seq ON sagalog_events (instance_id, seq);
`

// Store keeps events in the sagalog_events table. seq is a table-wide
// sequence, which preserves append order within each instance.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Repository = (*Store)(nil)

// Open connects to dsn and creates the schema if needed.
func Open(ctx context.Context, dsn string) (*Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Append implements store.Repository.
func (s *Store) Append(ctx context.Context, instanceID string, ev ir.Event) error {
	enc, err := store.EncodeEvent(instanceID, ev)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO sagalog_events (id, instance_id, type, step_id, name, data)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT DO NOTHING`,
		enc.ID, instanceID, string(enc.Type), enc.StepID, enc.Name, string(enc.Data))
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// Read implements store.Repository.
func (s *Store) Read(ctx context.Context, instanceID string) ([]ir.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM sagalog_events WHERE instance_id = $1 ORDER BY seq`,
		instanceID)
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
		ev, err := store.DecodeEvent([]byte(data))
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

// Delete implements store.Repository.
func (s *Store) Delete(ctx context.Context, instanceID string) error {
	if instanceID == "" {
		return store.ErrEmptyInstance
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM sagalog_events WHERE instance_id = $1`, instanceID); err != nil {
		return fmt.Errorf("delete instance %s: %w", instanceID, err)
	}
	return nil
}

// Instances implements store.Repository.
func (s *Store) Instances(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT instance_id FROM sagalog_events ORDER BY instance_id COLLATE "C"`)
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

// reset deletes every event. Used by tests.
func (s *Store) reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE sagalog_events`)
	return err
}
