package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/roomstate/internal/event"
	"github.com/roach88/roomstate/internal/testutil"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// writeRoom stores every event of a fixture room.
func writeRoom(t *testing.T, s *Store, r *testutil.Room) {
	t.Helper()
	for _, id := range r.Store.IDs() {
		ev, err := r.Store.Event(context.Background(), id)
		if err != nil {
			t.Fatalf("fixture event %s: %v", id, err)
		}
		if err := s.WriteEvent(context.Background(), ev); err != nil {
			t.Fatalf("WriteEvent(%s) failed: %v", id, err)
		}
	}
}

var topicKey = event.StateKey{Kind: event.KindTopic}
