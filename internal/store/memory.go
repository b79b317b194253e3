package store

import (
	"context"
	"slices"
	"sync"

	"github.com/roach88/sagalog/internal/ir"
)

// Memory is an in-process Repository. It loses its contents on exit.
//
// Thread-safety: Memory is safe for concurrent use.
type Memory struct {
	mu        sync.RWMutex
	instances map[string]*memoryLog
}

type memoryLog struct {
	seq    int64
	events []memoryRecord
}

type memoryRecord struct {
	seq  int64
	data []byte
	typ  ir.EventType
}

var _ Repository = (*Memory)(nil)

// NewMemory creates an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{instances: make(map[string]*memoryLog)}
}

// Append implements Repository. Events are stored encoded, so a caller
// mutating its event after Append cannot change history.
func (m *Memory) Append(ctx context.Context, instanceID string, ev ir.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	enc, err := EncodeEvent(instanceID, ev)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	log, ok := m.instances[instanceID]
	if !ok {
		log = &memoryLog{}
		m.instances[instanceID] = log
	}
	for _, rec := range log.events {
		if rec.typ == enc.Type {
			return nil
		}
	}
	log.seq++
	log.events = append(log.events, memoryRecord{seq: log.seq, data: enc.Data, typ: enc.Type})
	return nil
}

// Read implements Repository.
func (m *Memory) Read(ctx context.Context, instanceID string) ([]ir.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	var records []memoryRecord
	if log, ok := m.instances[instanceID]; ok {
		records = slices.Clone(log.events)
	}
	m.mu.RUnlock()

	events := make([]ir.Event, 0, len(records))
	for _, rec := range records {
		ev, err := DecodeEvent(rec.data)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// Delete implements Repository.
func (m *Memory) Delete(ctx context.Context, instanceID string) error {
	if instanceID == "" {
		return ErrEmptyInstance
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.instances, instanceID)
	return nil
}

// Instances implements Repository.
func (m *Memory) Instances(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.instances))
	for id := range m.instances {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}
