package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/roomstate/internal/event"
)

// ErrSnapshotNotFound is returned by ReadSnapshot for an unknown name.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// RoomSummary counts what the store holds for one room.
type RoomSummary struct {
	RoomID      string
	Events      int
	Snapshots   int
	Resolutions int
}

// Event implements event.Store. An unknown id yields an error wrapping
// event.ErrNotFound.
func (s *Store) Event(ctx context.Context, id string) (*event.Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, room_id, sender, type, state_key, content, origin_server_ts, depth, redacts, rejected
		FROM events
		WHERE id = ?
	`, id)

	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, event.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read event %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, kind, target_id
		FROM event_edges
		WHERE event_id = ?
		ORDER BY kind ASC, position ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("read event %s: query edges: %w", id, err)
	}
	defer rows.Close()

	if err := scanEdges(rows, map[string]*event.Event{id: ev}); err != nil {
		return nil, fmt.Errorf("read event %s: %w", id, err)
	}
	return ev, nil
}

// RoomEvents returns every event of a room ordered by
// (origin_server_ts, id).
//
// Returns an empty slice (not nil) if the room has no events.
func (s *Store) RoomEvents(ctx context.Context, roomID string) ([]*event.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, room_id, sender, type, state_key, content, origin_server_ts, depth, redacts, rejected
		FROM events
		WHERE room_id = ?
		ORDER BY origin_server_ts ASC, id COLLATE BINARY ASC
	`, roomID)
	if err != nil {
		return nil, fmt.Errorf("query room events: %w", err)
	}
	defer rows.Close()

	events := []*event.Event{}
	byID := map[string]*event.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room event: %w", err)
		}
		events = append(events, ev)
		byID[ev.ID] = ev
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate room events: %w", err)
	}

	// One edge query per room instead of one per event.
	edges, err := s.db.QueryContext(ctx, `
		SELECT e.event_id, e.kind, e.target_id
		FROM event_edges e
		JOIN events ev ON ev.id = e.event_id
		WHERE ev.room_id = ?
		ORDER BY e.event_id COLLATE BINARY ASC, e.kind ASC, e.position ASC
	`, roomID)
	if err != nil {
		return nil, fmt.Errorf("query room edges: %w", err)
	}
	defer edges.Close()

	if err := scanEdges(edges, byID); err != nil {
		return nil, err
	}
	return events, nil
}

// ListRooms summarizes every room known to the store, ordered by room id.
func (s *Store) ListRooms(ctx context.Context) ([]RoomSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.room_id,
			(SELECT COUNT(*) FROM events e WHERE e.room_id = r.room_id),
			(SELECT COUNT(DISTINCT name) FROM state_snapshots ss WHERE ss.room_id = r.room_id),
			(SELECT COUNT(*) FROM resolutions rs WHERE rs.room_id = r.room_id)
		FROM (
			SELECT room_id FROM events
			UNION
			SELECT room_id FROM state_snapshots
			UNION
			SELECT room_id FROM resolutions
		) r
		ORDER BY r.room_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	rooms := []RoomSummary{}
	for rows.Next() {
		var r RoomSummary
		if err := rows.Scan(&r.RoomID, &r.Events, &r.Snapshots, &r.Resolutions); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rooms: %w", err)
	}
	return rooms, nil
}

// ReadSnapshot returns the snapshot stored under (roomID, name). An unknown
// name yields an error wrapping ErrSnapshotNotFound.
func (s *Store) ReadSnapshot(ctx context.Context, roomID, name string) (event.StateMap, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT type, state_key, event_id
		FROM state_snapshots
		WHERE room_id = ? AND name = ?
	`, roomID, name)
	if err != nil {
		return nil, fmt.Errorf("query snapshot %s: %w", name, err)
	}
	defer rows.Close()

	m := event.StateMap{}
	for rows.Next() {
		var kind, key, id string
		if err := rows.Scan(&kind, &key, &id); err != nil {
			return nil, fmt.Errorf("scan snapshot %s: %w", name, err)
		}
		m[event.StateKey{Kind: event.Kind(kind), Key: key}] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot %s: %w", name, err)
	}
	if len(m) == 0 {
		return nil, fmt.Errorf("%s in room %s: %w", name, roomID, ErrSnapshotNotFound)
	}
	return m, nil
}

// ListSnapshots returns the snapshot names of a room, sorted.
//
// Returns an empty slice (not nil) if the room has none.
func (s *Store) ListSnapshots(ctx context.Context, roomID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT name
		FROM state_snapshots
		WHERE room_id = ?
		ORDER BY name COLLATE BINARY ASC
	`, roomID)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan snapshot name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return names, nil
}

// ListResolutions returns recorded resolutions ordered by seq. An empty
// roomID lists every room.
//
// Returns an empty slice (not nil) if nothing was recorded.
func (s *Store) ListResolutions(ctx context.Context, roomID string) ([]Resolution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, room_id, room_version, snapshots, state, state_hash, diagnostics
		FROM resolutions
		WHERE ? = '' OR room_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, roomID, roomID)
	if err != nil {
		return nil, fmt.Errorf("query resolutions: %w", err)
	}
	defer rows.Close()

	out := []Resolution{}
	for rows.Next() {
		var (
			rec                  Resolution
			namesJSON, stateJSON string
		)
		if err := rows.Scan(&rec.ID, &rec.Seq, &rec.RoomID, &rec.RoomVersion, &namesJSON, &stateJSON, &rec.StateHash, &rec.Diagnostics); err != nil {
			return nil, fmt.Errorf("scan resolution: %w", err)
		}
		if rec.Snapshots, err = unmarshalNames(namesJSON); err != nil {
			return nil, fmt.Errorf("resolution %s: %w", rec.ID, err)
		}
		if rec.State, err = unmarshalStateMap(stateJSON); err != nil {
			return nil, fmt.Errorf("resolution %s: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resolutions: %w", err)
	}
	return out, nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*event.Event, error) {
	var (
		ev       event.Event
		kind     string
		stateKey sql.NullString
		content  string
	)
	err := row.Scan(
		&ev.ID,
		&ev.RoomID,
		&ev.Sender,
		&kind,
		&stateKey,
		&content,
		&ev.OriginServerTS,
		&ev.Depth,
		&ev.Redacts,
		&ev.Rejected,
	)
	if err != nil {
		return nil, err
	}
	ev.Kind = event.Kind(kind)
	if stateKey.Valid {
		ev.StateKey = event.StrPtr(stateKey.String)
	}
	ev.Content = []byte(content)
	ev.AuthEvents = []string{}
	ev.PrevEvents = []string{}
	return &ev, nil
}

// scanEdges appends each (event_id, kind, target_id) row to the matching
// event. Rows must arrive in position order per event and kind.
func scanEdges(rows *sql.Rows, byID map[string]*event.Event) error {
	for rows.Next() {
		var eventID, kind, target string
		if err := rows.Scan(&eventID, &kind, &target); err != nil {
			return fmt.Errorf("scan edge: %w", err)
		}
		ev, ok := byID[eventID]
		if !ok {
			continue
		}
		switch kind {
		case "auth":
			ev.AuthEvents = append(ev.AuthEvents, target)
		case "prev":
			ev.PrevEvents = append(ev.PrevEvents, target)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate edges: %w", err)
	}
	return nil
}
