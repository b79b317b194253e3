// Package storetest is a conformance suite shared by every
// store.Repository backend.
package storetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sagalog/internal/ir"
	"github.com/roach88/sagalog/internal/store"
)

// Factory returns an empty repository. Cleanup is registered on t.
type Factory func(t *testing.T) store.Repository

// Run exercises the Repository contract against the backend built by newRepo.
func Run(t *testing.T, newRepo Factory) {
	t.Run("ReadUnknownInstance", func(t *testing.T) { testReadUnknown(t, newRepo(t)) })
	t.Run("AppendAndRead", func(t *testing.T) { testAppendAndRead(t, newRepo(t)) })
	t.Run("AppendIsIdempotentPerSlot", func(t *testing.T) { testIdempotent(t, newRepo(t)) })
	t.Run("InstancesAreIsolated", func(t *testing.T) { testIsolation(t, newRepo(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newRepo(t)) })
	t.Run("PreservesRet", func(t *testing.T) { testPreservesRet(t, newRepo(t)) })
	t.Run("RejectsEmptyInstance", func(t *testing.T) { testEmptyInstance(t, newRepo(t)) })
	t.Run("Stream", func(t *testing.T) { testStream(t, newRepo(t)) })
	t.Run("ConcurrentAppends", func(t *testing.T) { testConcurrent(t, newRepo(t)) })
}

func precall(stepID, name string) ir.Precall {
	return ir.Precall{StepID: stepID, Name: name}
}

func call(stepID, name string, success bool, ret string) ir.Call {
	return ir.Call{StepID: stepID, Name: name, Success: success, Ret: json.RawMessage(ret)}
}

func testReadUnknown(t *testing.T, repo store.Repository) {
	events, err := repo.Read(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, events)

	ids, err := repo.Instances(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func testAppendAndRead(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.Append(ctx, "saga-1/0", precall("saga-1/0", "reserve")))
	require.NoError(t, repo.Append(ctx, "saga-1/0", call("saga-1/0", "reserve", true, `{"id":"r-1"}`)))

	events, err := repo.Read(ctx, "saga-1/0")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, precall("saga-1/0", "reserve"), events[0])
	c, ok := events[1].(ir.Call)
	require.True(t, ok)
	assert.True(t, c.Success)
	assert.JSONEq(t, `{"id":"r-1"}`, string(c.Ret))
}

func testIdempotent(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.Append(ctx, "i", precall("i", "charge")))
	require.NoError(t, repo.Append(ctx, "i", precall("i", "charge")))
	require.NoError(t, repo.Append(ctx, "i", call("i", "charge", true, `1`)))
	require.NoError(t, repo.Append(ctx, "i", call("i", "charge", false, `{"message":"late"}`)))

	events, err := repo.Read(ctx, "i")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, ir.EventPrecall, events[0].Type())
	c := events[1].(ir.Call)
	assert.True(t, c.Success, "first write to a slot wins")
}

func testIsolation(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.Append(ctx, "b", precall("b", "ship")))
	require.NoError(t, repo.Append(ctx, "a", precall("a", "reserve")))
	require.NoError(t, repo.Append(ctx, "a", call("a", "reserve", true, `null`)))

	ids, err := repo.Instances(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	b, err := repo.Read(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []ir.Event{precall("b", "ship")}, b)
}

func testDelete(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.Append(ctx, "a", precall("a", "reserve")))
	require.NoError(t, repo.Append(ctx, "b", precall("b", "reserve")))

	require.NoError(t, repo.Delete(ctx, "a"))
	require.NoError(t, repo.Delete(ctx, "never-written"))

	events, err := repo.Read(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, events)

	ids, err := repo.Instances(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids)

	// A deleted instance starts over with fresh slots.
	require.NoError(t, repo.Append(ctx, "a", precall("a", "reserve")))
	events, err = repo.Read(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func testPreservesRet(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	ret := `{"amount":12345678901234567890,"note":"café <b>","nested":[1,2.5,null]}`
	require.NoError(t, repo.Append(ctx, "i", precall("i", "charge")))
	require.NoError(t, repo.Append(ctx, "i", call("i", "charge", true, ret)))

	events, err := repo.Read(ctx, "i")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.JSONEq(t, ret, string(events[1].(ir.Call).Ret))
	assert.Contains(t, string(events[1].(ir.Call).Ret), "12345678901234567890")
}

func testEmptyInstance(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	assert.ErrorIs(t, repo.Append(ctx, "", precall("s", "n")), store.ErrEmptyInstance)
	assert.ErrorIs(t, repo.Delete(ctx, ""), store.ErrEmptyInstance)
}

func testStream(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	s := store.NewStream(repo, "saga/0")

	// Publishing before the first Next is visible to the iteration.
	require.NoError(t, s.Publish(ctx, precall("saga/0", "reserve")))

	ev, ok, err := s.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, precall("saga/0", "reserve"), ev)

	// Publishing after loading does not extend the iteration.
	require.NoError(t, s.Publish(ctx, call("saga/0", "reserve", true, `"r"`)))
	_, ok, err = s.Next(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	fresh := store.NewStream(repo, "saga/0")
	var got []ir.EventType
	for {
		ev, ok, err := fresh.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, ev.Type())
	}
	assert.Equal(t, []ir.EventType{ir.EventPrecall, ir.EventCall}, got)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, _, err = store.NewStream(repo, "saga/0").Next(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

func testConcurrent(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, 2*n)
	for i := range n {
		id := fmt.Sprintf("saga/%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- repo.Append(ctx, id, precall(id, "step"))
			errs <- repo.Append(ctx, id, call(id, "step", true, `true`))
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	ids, err := repo.Instances(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, n)
	for _, id := range ids {
		events, err := repo.Read(ctx, id)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, ir.EventPrecall, events[0].Type())
		assert.Equal(t, ir.EventCall, events[1].Type())
	}
}
