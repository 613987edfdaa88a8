// Package memstore provides an in-memory implementation of triage.Store.
package memstore

import (
	"context"
	"sync"

	"github.com/linnemanlabs/sift/internal/triage"
)

// Store holds triage outcomes in memory. Suitable for dev/testing.
type Store struct {
	mu       sync.RWMutex
	outcomes map[string]*triage.Outcome // source key -> latest outcome
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{outcomes: make(map[string]*triage.Outcome)}
}

// Get retrieves the outcome for a source key. Returns a copy.
func (s *Store) Get(_ context.Context, sourceKey string) (*triage.Outcome, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.outcomes[sourceKey]
	if !ok {
		return nil, false, nil
	}
	cp := *o
	return &cp, true, nil
}

// Record stores a copy of the outcome, replacing any earlier one for the same
// key. Attempts is counted and FirstSeenAt kept under the write lock.
func (s *Store) Record(_ context.Context, o *triage.Outcome) (*triage.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *o
	cp.Attempts = 1
	if prev, ok := s.outcomes[o.SourceKey]; ok {
		cp.Attempts = prev.Attempts + 1
		cp.FirstSeenAt = prev.FirstSeenAt
	}
	s.outcomes[o.SourceKey] = &cp
	out := cp
	return &out, nil
}

// Len returns the number of stored outcomes.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.outcomes)
}
