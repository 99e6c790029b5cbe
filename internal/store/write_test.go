package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/roomstate/internal/event"
	"github.com/roach88/roomstate/internal/testutil"
)

func TestWriteEvent_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	r := testutil.InitialRoom()
	writeRoom(t, s, r)

	want := r.Get("IMB")
	got, err := s.Event(ctx, want.ID)
	require.NoError(t, err)

	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.RoomID, got.RoomID)
	assert.Equal(t, want.Sender, got.Sender)
	assert.Equal(t, want.Kind, got.Kind)
	require.NotNil(t, got.StateKey)
	assert.Equal(t, *want.StateKey, *got.StateKey)
	assert.JSONEq(t, string(want.Content), string(got.Content))
	assert.Equal(t, want.AuthEvents, got.AuthEvents)
	assert.Equal(t, want.PrevEvents, got.PrevEvents)
	assert.Equal(t, want.OriginServerTS, got.OriginServerTS)
	assert.False(t, got.Rejected)
}

func TestWriteEvent_NonStateAndRejected(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	msg := &event.Event{
		ID:         "$msg:foo",
		RoomID:     testutil.RoomID,
		Sender:     testutil.Alice,
		Kind:       event.KindMessage,
		AuthEvents: []string{"$CREATE:foo"},
		Rejected:   true,
	}
	require.NoError(t, s.WriteEvent(ctx, msg))

	got, err := s.Event(ctx, msg.ID)
	require.NoError(t, err)
	assert.Nil(t, got.StateKey)
	assert.True(t, got.Rejected)
	assert.JSONEq(t, `{}`, string(got.Content))
	assert.Equal(t, []string{"$CREATE:foo"}, got.AuthEvents)
	assert.Empty(t, got.PrevEvents)
}

func TestWriteEvent_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	r := testutil.InitialRoom()
	ev := r.Get("IPOWER")

	require.NoError(t, s.WriteEvent(ctx, ev))

	changed := ev.Clone()
	changed.AuthEvents = []string{"$other:foo"}
	require.NoError(t, s.WriteEvent(ctx, changed))

	got, err := s.Event(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, ev.AuthEvents, got.AuthEvents)

	var edges int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM event_edges WHERE event_id = ?", ev.ID).Scan(&edges))
	assert.Equal(t, len(ev.AuthEvents)+len(ev.PrevEvents), edges)
}

func TestWriteEvent_Invalid(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	assert.Error(t, s.WriteEvent(ctx, &event.Event{}))
	assert.Error(t, s.WriteEvent(ctx, &event.Event{ID: "$bad:foo", Content: []byte(`{"a":`)}))
}

func TestWriteSnapshot_Replaces(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	r := testutil.InitialRoom()

	require.NoError(t, s.WriteSnapshot(ctx, r.ID, "main", r.InitialState()))
	smaller := r.State("CREATE", "IMA")
	require.NoError(t, s.WriteSnapshot(ctx, r.ID, "main", smaller))

	got, err := s.ReadSnapshot(ctx, r.ID, "main")
	require.NoError(t, err)
	assert.Equal(t, smaller, got)
}

func TestWriteSnapshot_Invalid(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	assert.Error(t, s.WriteSnapshot(ctx, testutil.RoomID, "", event.StateMap{topicKey: "$t:foo"}))
	assert.Error(t, s.WriteSnapshot(ctx, testutil.RoomID, "empty", event.StateMap{}))
}

func TestWriteResolution(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	r := testutil.InitialRoom()
	state := r.InitialState()

	first, err := s.WriteResolution(ctx, Resolution{
		RoomID:      r.ID,
		RoomVersion: "10",
		Snapshots:   []string{"a", "b"},
		State:       state,
		Diagnostics: 2,
	})
	require.NoError(t, err)
	assert.Len(t, first.ID, 36)
	assert.Equal(t, int64(1), first.Seq)

	wantHash, err := event.StateHash(state)
	require.NoError(t, err)
	assert.Equal(t, wantHash, first.StateHash)

	second, err := s.WriteResolution(ctx, Resolution{RoomID: r.ID, RoomVersion: "10", State: state})
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Seq)
	assert.NotEqual(t, first.ID, second.ID)
}
