package testutil

import (
	"fmt"
	"sync"
)

// Journal is a thread-safe ordered log of collaborator calls.
//
// Publisher and Effect append to a shared Journal so tests can assert the
// interleaving of publishes, effect invocations and rollbacks.
// Entries carry a logical sequence number starting at 1.
type Journal struct {
	mu      sync.Mutex
	seq     int64
	entries []Entry
}

// Entry is one journal line.
type Entry struct {
	Seq  int64
	Text string
}

// NewJournal creates an empty journal.
func NewJournal() *Journal {
	return &Journal{}
}

// Add appends a formatted entry. A nil Journal discards it.
func (j *Journal) Add(format string, args ...any) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.seq++
	j.entries = append(j.entries, Entry{Seq: j.seq, Text: fmt.Sprintf(format, args...)})
}

// Lines returns the entry texts in order.
func (j *Journal) Lines() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	lines := make([]string, len(j.entries))
	for i, e := range j.entries {
		lines[i] = e.Text
	}
	return lines
}

// Entries returns a copy of the entries.
func (j *Journal) Entries() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Entry(nil), j.entries...)
}

// Reset clears the journal and restarts sequencing at 1.
func (j *Journal) Reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = nil
	j.seq = 0
}
