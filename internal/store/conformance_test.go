package store_test

import (
	"path/filepath"
	"testing"

	"github.com/roach88/sagalog/internal/store"
	"github.com/roach88/sagalog/internal/store/storetest"
)

func TestSQLite_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Repository {
		s, err := store.Open(filepath.Join(t.TempDir(), "events.db"))
		if err != nil {
			t.Fatalf("Open() failed: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestMemory_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Repository {
		return store.NewMemory()
	})
}
