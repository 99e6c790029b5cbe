package store

import (
	"context"
	"fmt"

	"github.com/roach88/roomstate/internal/event"
)

// ReplayInputs loads the snapshots a recorded resolution was computed from,
// in the recorded order, so the resolution can be recomputed and compared.
//
// Snapshots are mutable by name: if one was rewritten after the record was
// made, the replay sees the new contents.
func (s *Store) ReplayInputs(ctx context.Context, rec Resolution) ([]event.StateMap, error) {
	sets := make([]event.StateMap, 0, len(rec.Snapshots))
	for _, name := range rec.Snapshots {
		m, err := s.ReadSnapshot(ctx, rec.RoomID, name)
		if err != nil {
			return nil, fmt.Errorf("replay resolution %s: %w", rec.ID, err)
		}
		sets = append(sets, m)
	}
	return sets, nil
}
