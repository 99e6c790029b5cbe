package event

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotFound is returned by a Store for an id it does not hold.
var ErrNotFound = errors.New("event not found")

// Store is the event-store capability the engine reads from.
//
// Event returns ErrNotFound (possibly wrapped) for an unknown id. Any other
// error is an infrastructure failure.
type Store interface {
	Event(ctx context.Context, id string) (*Event, error)
}

// MemStore is an in-memory Store. It is safe for concurrent use.
type MemStore struct {
	mu     sync.RWMutex
	events map[string]*Event
}

// NewMemStore returns a store holding the given events.
func NewMemStore(events ...*Event) *MemStore {
	s := &MemStore{events: make(map[string]*Event, len(events))}
	for _, ev := range events {
		s.events[ev.ID] = ev
	}
	return s
}

// Add inserts or replaces events.
func (s *MemStore) Add(events ...*Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range events {
		s.events[ev.ID] = ev
	}
}

// Event implements Store.
func (s *MemStore) Event(_ context.Context, id string) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return ev, nil
}

// IDs returns every stored id, sorted.
func (s *MemStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.events))
	for id := range s.events {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of stored events.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
