package memory

import (
	"context"
	"sync"

	"mangrove-indexer/internal/storage"
)

// Journal is an in-memory implementation of storage.Journal.
type Journal struct {
	mu      sync.RWMutex
	entries []storage.JournalEntry
}

// NewJournal creates a new in-memory journal.
func NewJournal() *Journal {
	return &Journal{}
}

var _ storage.Journal = (*Journal)(nil)

// Append records entries.
func (j *Journal) Append(_ context.Context, entries []storage.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entries...)
	return nil
}

// Entries returns a copy of every recorded entry in append order.
func (j *Journal) Entries() []storage.JournalEntry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	result := make([]storage.JournalEntry, len(j.entries))
	copy(result, j.entries)
	return result
}
