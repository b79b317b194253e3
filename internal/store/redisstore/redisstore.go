// Package redisstore is a store.Repository on Redis Streams.
//
// Each instance is a stream at <prefix>{<instance>}:events whose entries
// carry the wire envelope in a "data" field. A hash at
// <prefix>{<instance>}:slots records which slots are taken. Both keys share
// the {<instance>} hash tag, so on Redis Cluster they live in one hash slot
// and Append claims the slot and adds the entry atomically in one Lua
// script. A set at <prefix>instances lists the instances; it is updated
// after the script on every append, including repeated ones, so a retried
// append repairs an index entry lost to a crash.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/sagalog/internal/ir"
	"github.com/roach88/sagalog/internal/store"
)

// DefaultPrefix namespaces sagalog keys.
const DefaultPrefix = "sagalog:"

// KEYS: slots hash, events stream.
// ARGV: event type, event id, data.
var appendScript = redis.NewScript(`
if redis.call('HSETNX', KEYS[1], ARGV[1], ARGV[2]) == 0 then
  return 0
end
redis.call('XADD', KEYS[2], '*', 'data', ARGV[3])
return 1
`)

// Store is a Redis-backed repository.
type Store struct {
	client redis.UniversalClient
	prefix string
}

var _ store.Repository = (*Store)(nil)

// New wraps client. An empty prefix uses DefaultPrefix.
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

// Dial connects to addr and verifies the connection.
func Dial(ctx context.Context, addr, prefix string) (*Store, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return New(client, prefix), nil
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) eventsKey(instanceID string) string {
	return s.prefix + "{" + instanceID + "}:events"
}

func (s *Store) slotsKey(instanceID string) string {
	return s.prefix + "{" + instanceID + "}:slots"
}

func (s *Store) instancesKey() string {
	return s.prefix + "instances"
}

// Append implements store.Repository.
func (s *Store) Append(ctx context.Context, instanceID string, ev ir.Event) error {
	enc, err := store.EncodeEvent(instanceID, ev)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	keys := []string{s.slotsKey(instanceID), s.eventsKey(instanceID)}
	if err := appendScript.Run(ctx, s.client, keys, string(enc.Type), enc.ID, string(enc.Data)).Err(); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	if err := s.client.SAdd(ctx, s.instancesKey(), instanceID).Err(); err != nil {
		return fmt.Errorf("index instance %s: %w", instanceID, err)
	}
	return nil
}

// Read implements store.Repository.
func (s *Store) Read(ctx context.Context, instanceID string) ([]ir.Event, error) {
	msgs, err := s.client.XRange(ctx, s.eventsKey(instanceID), "-", "+").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("xrange: %w", err)
	}

	events := make([]ir.Event, 0, len(msgs))
	for _, msg := range msgs {
		data, ok := msg.Values["data"].(string)
		if !ok {
			return nil, fmt.Errorf("stream entry %s: missing data field", msg.ID)
		}
		ev, err := store.DecodeEvent([]byte(data))
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// Delete implements store.Repository.
func (s *Store) Delete(ctx context.Context, instanceID string) error {
	if instanceID == "" {
		return store.ErrEmptyInstance
	}
	// Not a transaction: the instance keys and the index are in different
	// hash slots on a cluster.
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.eventsKey(instanceID), s.slotsKey(instanceID))
		pipe.SRem(ctx, s.instancesKey(), instanceID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete instance %s: %w", instanceID, err)
	}
	return nil
}

// Instances implements store.Repository.
func (s *Store) Instances(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.instancesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers: %w", err)
	}
	slices.Sort(ids)
	return ids, nil
}
