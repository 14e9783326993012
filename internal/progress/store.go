// Package progress holds the process-wide download progress table.
package progress

import (
	"sync"

	"github.com/ezetheking/tube-snatch/internal/tube"
)

// Store maps video ids to progress records. Each record is replaced
// atomically by the task that owns the id; readers may observe any record a
// writer has completed writing, with no consistency requirement across keys.
type Store struct {
	mu      sync.RWMutex
	records map[string]tube.ProgressRecord
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		records: make(map[string]tube.ProgressRecord),
	}
}

// Get returns the record for a video id. A false second value means the
// download never started or was cleared; that is not an error.
func (s *Store) Get(videoID string) (tube.ProgressRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[videoID]
	return rec, ok
}

// Snapshot copies the full table for polling clients.
func (s *Store) Snapshot() map[string]tube.ProgressRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]tube.ProgressRecord, len(s.records))
	for id, rec := range s.records {
		out[id] = rec
	}
	return out
}

// Set replaces the record for a video id.
func (s *Store) Set(videoID string, rec tube.ProgressRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[videoID] = rec
}

// Clear drops every record. The only way records are ever deleted.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]tube.ProgressRecord)
}
