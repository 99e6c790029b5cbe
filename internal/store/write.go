package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/roomstate/internal/event"
)

// Resolution is one recorded resolver output.
type Resolution struct {
	ID          string
	Seq         int64
	RoomID      string
	RoomVersion string
	// Snapshots names the state snapshots that were resolved, in the order
	// they were passed to the resolver.
	Snapshots   []string
	State       event.StateMap
	StateHash   string
	Diagnostics int
}

// WriteEvent inserts an event and its auth and prev references.
// Uses ON CONFLICT(id) DO NOTHING for idempotency: rewriting a stored id
// is silently ignored and the stored copy wins.
func (s *Store) WriteEvent(ctx context.Context, ev *event.Event) error {
	if ev.ID == "" {
		return fmt.Errorf("write event: empty id")
	}
	content, err := marshalContent(ev.Content)
	if err != nil {
		return fmt.Errorf("write event %s: %w", ev.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write event %s: begin tx: %w", ev.ID, err)
	}
	defer tx.Rollback() // No-op if committed

	var stateKey sql.NullString
	if ev.StateKey != nil {
		stateKey = sql.NullString{String: *ev.StateKey, Valid: true}
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO events
		(id, room_id, sender, type, state_key, content, origin_server_ts, depth, redacts, rejected)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		ev.ID,
		ev.RoomID,
		ev.Sender,
		string(ev.Kind),
		stateKey,
		content,
		ev.OriginServerTS,
		ev.Depth,
		ev.Redacts,
		ev.Rejected,
	)
	if err != nil {
		return fmt.Errorf("write event %s: insert: %w", ev.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("write event %s: rows affected: %w", ev.ID, err)
	}
	if rowsAffected == 0 {
		return nil
	}

	if err := insertEdges(ctx, tx, ev.ID, "auth", ev.AuthEvents); err != nil {
		return fmt.Errorf("write event %s: %w", ev.ID, err)
	}
	if err := insertEdges(ctx, tx, ev.ID, "prev", ev.PrevEvents); err != nil {
		return fmt.Errorf("write event %s: %w", ev.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write event %s: commit: %w", ev.ID, err)
	}
	return nil
}

func insertEdges(ctx context.Context, tx *sql.Tx, eventID, kind string, targets []string) error {
	for i, target := range targets {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO event_edges (event_id, kind, position, target_id)
			VALUES (?, ?, ?, ?)
		`, eventID, kind, i, target)
		if err != nil {
			return fmt.Errorf("insert %s edge %d: %w", kind, i, err)
		}
	}
	return nil
}

// WriteSnapshot stores m under (roomID, name), replacing any snapshot of
// that name. Empty maps are rejected.
func (s *Store) WriteSnapshot(ctx context.Context, roomID, name string, m event.StateMap) error {
	if name == "" {
		return fmt.Errorf("write snapshot: empty name")
	}
	if len(m) == 0 {
		return fmt.Errorf("write snapshot %s: empty state map", name)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write snapshot %s: begin tx: %w", name, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM state_snapshots WHERE room_id = ? AND name = ?
	`, roomID, name); err != nil {
		return fmt.Errorf("write snapshot %s: clear: %w", name, err)
	}

	for _, key := range m.Keys() {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO state_snapshots (room_id, name, type, state_key, event_id)
			VALUES (?, ?, ?, ?, ?)
		`, roomID, name, string(key.Kind), key.Key, m[key])
		if err != nil {
			return fmt.Errorf("write snapshot %s: insert %s: %w", name, key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write snapshot %s: commit: %w", name, err)
	}
	return nil
}

// WriteResolution records a resolver output and returns it with ID, Seq and
// StateHash filled in. IDs are UUIDv7; Seq is the next logical sequence
// number of the store.
func (s *Store) WriteResolution(ctx context.Context, rec Resolution) (Resolution, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Resolution{}, fmt.Errorf("write resolution: new id: %w", err)
	}
	rec.ID = id.String()

	if rec.StateHash == "" {
		if rec.StateHash, err = event.StateHash(rec.State); err != nil {
			return Resolution{}, fmt.Errorf("write resolution: %w", err)
		}
	}
	stateJSON, err := marshalStateMap(rec.State)
	if err != nil {
		return Resolution{}, fmt.Errorf("write resolution: %w", err)
	}
	namesJSON, err := marshalNames(rec.Snapshots)
	if err != nil {
		return Resolution{}, fmt.Errorf("write resolution: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Resolution{}, fmt.Errorf("write resolution: begin tx: %w", err)
	}
	defer tx.Rollback()

	var last sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(seq) FROM resolutions`).Scan(&last); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Resolution{}, fmt.Errorf("write resolution: next seq: %w", err)
	}
	rec.Seq = last.Int64 + 1

	_, err = tx.ExecContext(ctx, `
		INSERT INTO resolutions
		(id, seq, room_id, room_version, snapshots, state, state_hash, diagnostics)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.Seq,
		rec.RoomID,
		rec.RoomVersion,
		namesJSON,
		stateJSON,
		rec.StateHash,
		rec.Diagnostics,
	)
	if err != nil {
		return Resolution{}, fmt.Errorf("write resolution: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Resolution{}, fmt.Errorf("write resolution: commit: %w", err)
	}
	return rec, nil
}
