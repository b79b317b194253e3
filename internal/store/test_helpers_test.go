package store

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/roach88/sagalog/internal/ir"
)

// createTestStore creates a new SQLite store in a temp dir.
func createTestStore(t *testing.T) *SQLite {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testPrecall(stepID, name string) ir.Precall {
	return ir.Precall{StepID: stepID, Name: name}
}

func testCall(stepID, name string, success bool, ret string) ir.Call {
	return ir.Call{StepID: stepID, Name: name, Success: success, Ret: json.RawMessage(ret)}
}
