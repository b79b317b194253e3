package rollback

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietStack() *Stack {
	return NewStack(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestStack_CompensatesInReverseOrder(t *testing.T) {
	s := quietStack()
	var order []int
	for i := 1; i <= 3; i++ {
		s.Register(func() error {
			order = append(order, i)
			return nil
		})
	}
	require.Equal(t, 3, s.Len())

	require.NoError(t, s.Compensate())
	assert.Equal(t, []int{3, 2, 1}, order)
	assert.Equal(t, 0, s.Len())
}

func TestStack_RunsEachActionOnce(t *testing.T) {
	s := quietStack()
	runs := 0
	s.Register(func() error {
		runs++
		return nil
	})

	require.NoError(t, s.Compensate())
	require.NoError(t, s.Compensate())
	assert.Equal(t, 1, runs)
}

func TestStack_ContinuesPastFailures(t *testing.T) {
	s := quietStack()
	errA := errors.New("refund declined")
	errB := errors.New("release failed")
	var order []string

	s.Register(func() error { order = append(order, "first"); return errA })
	s.Register(func() error { order = append(order, "second"); return nil })
	s.Register(func() error { order = append(order, "third"); return errB })

	err := s.Compensate()
	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.Equal(t, []string{"third", "second", "first"}, order)
}

func TestStack_RecoversPanics(t *testing.T) {
	s := quietStack()
	ran := false
	s.Register(func() error { ran = true; return nil })
	s.Register(func() error { panic("boom") })

	err := s.Compensate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic: boom")
	assert.True(t, ran)
}

func TestStack_IgnoresNilAction(t *testing.T) {
	s := quietStack()
	s.Register(nil)
	assert.Equal(t, 0, s.Len())
	assert.NoError(t, s.Compensate())
}

func TestStack_ConcurrentRegister(t *testing.T) {
	s := quietStack()
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Register(func() error { return nil })
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, s.Len())
}
