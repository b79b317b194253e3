// Package store persists sagalog history events.
//
// Every backend implements Repository: an append-only log of events keyed
// by instance id, where an instance is one step instance. An instance has
// exactly two slots, one precall and one call, so appends are idempotent
// per (instance, event type): the first write to a slot wins and later
// writes are ignored. This makes publishing safe to retry.
//
// # Ordering
//
// Read returns an instance's events in append order. Backends stamp each
// event with a per-instance seq (a logical clock starting at 1) and never
// order by wall-clock time.
//
// # Backends
//
//   - SQLite (Open): the default, durable single-file log
//   - Memory (NewMemory): tests and throwaway runs
//   - Postgres (package pgstore)
//   - Redis Streams (package redisstore)
//
// # Database Configuration (SQLite)
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//
// Event ids are content-addressed by ir.EventID.
package store
