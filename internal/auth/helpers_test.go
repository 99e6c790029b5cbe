package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/roomstate/internal/event"
	"github.com/roach88/roomstate/internal/roomversion"
)

const (
	alice    = "@alice:foo"
	bob      = "@bob:foo"
	charlie  = "@charlie:foo"
	ella     = "@ella:foo"
	testRoom = "!test:foo"
)

func rulesFor(version string) roomversion.AuthRules {
	return roomversion.MustLookup(version).Auth
}

func stateEvent(id, sender string, kind event.Kind, stateKey, content string) *event.Event {
	return &event.Event{
		ID:       id,
		RoomID:   testRoom,
		Sender:   sender,
		Kind:     kind,
		StateKey: event.StrPtr(stateKey),
		Content:  json.RawMessage(content),
	}
}

func memberEvent(id, sender, target string, membership event.Membership) *event.Event {
	return stateEvent(id, sender, event.KindMember, target, fmt.Sprintf(`{"membership":%q}`, membership))
}

func createEvent() *event.Event {
	return stateEvent("$create:foo", alice, event.KindCreate, "", `{"creator":"@alice:foo"}`)
}

// testState is a mutable snapshot for one check.
type testState map[event.StateKey]*event.Event

// baseState is a public room where alice (100) and bob (50) are joined.
func baseState() testState {
	s := testState{}
	s.put(
		createEvent(),
		memberEvent("$ima:foo", alice, alice, event.MembershipJoin),
		stateEvent("$ipower:foo", alice, event.KindPowerLevels, "", `{"users":{"@alice:foo":100,"@bob:foo":50}}`),
		stateEvent("$ijr:foo", alice, event.KindJoinRules, "", `{"join_rule":"public"}`),
		memberEvent("$imb:foo", bob, bob, event.MembershipJoin),
	)
	return s
}

func (s testState) put(evs ...*event.Event) testState {
	for _, ev := range evs {
		key, _ := ev.Key()
		s[key] = ev
	}
	return s
}

func (s testState) drop(kind event.Kind, stateKey string) testState {
	delete(s, event.StateKey{Kind: kind, Key: stateKey})
	return s
}

func (s testState) fn() StateFunc {
	return MapState(s)
}

func requireDenied(t *testing.T, err error, rule string) *DeniedError {
	t.Helper()
	require.Error(t, err)
	var de *DeniedError
	require.ErrorAs(t, err, &de)
	require.Equal(t, rule, de.Rule, "reason: %s", de.Reason)
	return de
}

func memFetch(evs ...*event.Event) FetchFunc {
	store := event.NewMemStore(evs...)
	return func(ctx context.Context, id string) (*event.Event, error) {
		return store.Event(ctx, id)
	}
}
