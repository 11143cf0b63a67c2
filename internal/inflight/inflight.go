// Package inflight guards against processing the same record twice at the same time.
// The guard is advisory: the record store remains the source of truth.
package inflight

import (
	"context"
	"sync"
)

// Guard marks ids as being worked on.
type Guard interface {
	// TryAcquire marks id as in flight. It returns false if id is already held.
	TryAcquire(ctx context.Context, id string) bool
	// Release clears the mark for id.
	Release(ctx context.Context, id string)
}

// Set is a process-local Guard.
type Set struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{ids: make(map[string]struct{})}
}

// TryAcquire implements Guard.
func (s *Set) TryAcquire(_ context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// Release implements Guard.
func (s *Set) Release(_ context.Context, id string) {
	s.mu.Lock()
	delete(s.ids, id)
	s.mu.Unlock()
}

// Len returns the number of ids in flight.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// Contains reports whether id is in flight.
func (s *Set) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}
