package cli

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/roomstate/internal/auth"
	"github.com/roach88/roomstate/internal/event"
	"github.com/roach88/roomstate/internal/roomversion"
	"github.com/roach88/roomstate/internal/testutil"
)

func importedEvent(id string, kind event.Kind, stateKey, content string, authEvents ...string) *event.Event {
	return &event.Event{
		ID:         id,
		RoomID:     testutil.RoomID,
		Sender:     testutil.Alice,
		Kind:       kind,
		StateKey:   event.StrPtr(stateKey),
		Content:    json.RawMessage(content),
		AuthEvents: authEvents,
	}
}

func TestRejectBadAuthEvents(t *testing.T) {
	ctx := context.Background()
	rules := roomversion.MustLookup("10").Auth
	create := importedEvent("$create:foo", event.KindCreate, "", `{"creator":"@alice:foo"}`)
	join := importedEvent("$ima:foo", event.KindMember, testutil.Alice, `{"membership":"join"}`, "$create:foo")
	fetch := event.NewMemStore(create, join).Event

	topic := importedEvent("$topic:foo", event.KindTopic, "", `{"topic":"x"}`, "$create:foo", "$ima:foo")
	denied, err := rejectBadAuthEvents(ctx, rules, topic, fetch)
	require.NoError(t, err)
	assert.Nil(t, denied)
	assert.False(t, topic.Rejected)

	// An auth event that was never stored.
	ghost := importedEvent("$ghost:foo", event.KindTopic, "", `{"topic":"y"}`, "$create:foo", "$missing:foo")
	denied, err = rejectBadAuthEvents(ctx, rules, ghost, fetch)
	require.NoError(t, err)
	require.NotNil(t, denied)
	assert.Equal(t, auth.RuleAuthEvents, denied.Rule)
	assert.True(t, ghost.Rejected)

	// Two events for the create slot.
	twice := importedEvent("$twice:foo", event.KindTopic, "", `{"topic":"z"}`, "$create:foo", "$create:foo")
	denied, err = rejectBadAuthEvents(ctx, rules, twice, fetch)
	require.NoError(t, err)
	require.NotNil(t, denied)
	assert.True(t, twice.Rejected)
}

func TestRejectBadAuthEvents_StoreFailure(t *testing.T) {
	broken := errors.New("disk gone")
	fetch := func(context.Context, string) (*event.Event, error) { return nil, broken }
	ev := importedEvent("$topic:foo", event.KindTopic, "", `{"topic":"x"}`, "$create:foo")

	denied, err := rejectBadAuthEvents(context.Background(), roomversion.MustLookup("10").Auth, ev, fetch)
	assert.ErrorIs(t, err, broken)
	assert.Nil(t, denied)
	assert.False(t, ev.Rejected)
}
