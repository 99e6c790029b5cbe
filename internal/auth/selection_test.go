package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/roomstate/internal/event"
)

// =============================================================================
// AuthTypes
// =============================================================================

func keys(ks ...string) []event.StateKey {
	out := make([]event.StateKey, 0, len(ks))
	for _, k := range ks {
		sk, err := event.ParseStateKey(k)
		if err != nil {
			panic(err)
		}
		out = append(out, sk)
	}
	return out
}

func TestAuthTypes(t *testing.T) {
	base := []string{"m.room.power_levels|", "m.room.member|@charlie:foo", "m.room.create|"}

	tests := []struct {
		name    string
		version string
		ev      *event.Event
		want    []event.StateKey
	}{
		{
			name:    "create",
			version: "10",
			ev:      createEvent(),
			want:    nil,
		},
		{
			name:    "topic",
			version: "10",
			ev:      stateEvent("$t:foo", charlie, event.KindTopic, "", `{}`),
			want:    keys(base...),
		},
		{
			name:    "leave",
			version: "10",
			ev:      memberEvent("$l:foo", charlie, bob, event.MembershipLeave),
			want:    keys(append(base, "m.room.member|@bob:foo")...),
		},
		{
			name:    "join",
			version: "10",
			ev:      memberEvent("$j:foo", charlie, charlie, event.MembershipJoin),
			want:    keys(append(base, "m.room.member|@charlie:foo", "m.room.join_rules|")...),
		},
		{
			name:    "restricted join",
			version: "8",
			ev: stateEvent("$j:foo", charlie, event.KindMember, charlie,
				`{"membership":"join","join_authorised_via_users_server":"@alice:foo"}`),
			want: keys(append(base, "m.room.member|@charlie:foo", "m.room.join_rules|", "m.room.member|@alice:foo")...),
		},
		{
			name:    "authorising user ignored before v8",
			version: "7",
			ev: stateEvent("$j:foo", charlie, event.KindMember, charlie,
				`{"membership":"join","join_authorised_via_users_server":"@alice:foo"}`),
			want: keys(append(base, "m.room.member|@charlie:foo", "m.room.join_rules|")...),
		},
		{
			name:    "third-party invite",
			version: "10",
			ev:      tpiInvite(charlie, ella, ella, "tok", true),
			want:    keys(append(base, "m.room.member|@ella:foo", "m.room.join_rules|", "m.room.third_party_invite|tok")...),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AuthTypes(rulesFor(tt.version), tt.ev)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAuthTypes_MalformedMembership(t *testing.T) {
	_, err := AuthTypes(rulesFor("10"), stateEvent("$j:foo", charlie, event.KindMember, charlie, `{}`))
	assert.True(t, IsMalformed(err))
}

// =============================================================================
// CheckAuthEventsSelection
// =============================================================================

func selectionEvents() []*event.Event {
	s := baseState()
	out := make([]*event.Event, 0, len(s))
	for _, ev := range s {
		out = append(out, ev)
	}
	return out
}

func topicBy(sender string, auth ...string) *event.Event {
	ev := stateEvent("$topic:foo", sender, event.KindTopic, "", `{"topic":"x"}`)
	ev.AuthEvents = auth
	return ev
}

func TestCheckAuthEventsSelection(t *testing.T) {
	ctx := context.Background()
	rules := rulesFor("10")

	other := stateEvent("$other:foo", alice, event.KindTopic, "", `{}`)
	other.RoomID = "!elsewhere:foo"
	msg := &event.Event{ID: "$msg:foo", RoomID: testRoom, Sender: bob, Kind: event.KindMessage}
	rejected := stateEvent("$rejpl:foo", alice, event.KindPowerLevels, "", `{}`)
	rejected.Rejected = true
	dupCreate := stateEvent("$create2:foo", alice, event.KindCreate, "", `{"creator":"@alice:foo"}`)
	fetch := memFetch(append(selectionEvents(), other, msg, rejected, dupCreate)...)

	tests := []struct {
		name    string
		ev      *event.Event
		allowed bool
	}{
		{"valid", topicBy(bob, "$create:foo", "$ipower:foo", "$imb:foo"), true},
		{"missing event", topicBy(bob, "$create:foo", "$ghost:foo"), false},
		{"other room", topicBy(bob, "$create:foo", "$other:foo"), false},
		{"non-state", topicBy(bob, "$create:foo", "$msg:foo"), false},
		{"duplicate slot", topicBy(bob, "$create:foo", "$create2:foo"), false},
		{"unexpected slot", topicBy(bob, "$create:foo", "$ijr:foo"), false},
		{"rejected", topicBy(bob, "$create:foo", "$rejpl:foo"), false},
		{"no create", topicBy(bob, "$ipower:foo", "$imb:foo"), false},
		{"other member", topicBy(bob, "$create:foo", "$ima:foo"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckAuthEventsSelection(ctx, rules, tt.ev, fetch)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				requireDenied(t, err, RuleAuthEvents)
			}
		})
	}
}

func TestCheckAuthEventsSelection_MissingWrapsNotFound(t *testing.T) {
	err := CheckAuthEventsSelection(context.Background(), rulesFor("10"), topicBy(bob, "$ghost:foo"), memFetch())
	assert.ErrorIs(t, err, event.ErrNotFound)
}

func TestCheckAuthEventsSelection_StoreFailure(t *testing.T) {
	boom := errors.New("disk on fire")
	fetch := func(context.Context, string) (*event.Event, error) { return nil, boom }

	err := CheckAuthEventsSelection(context.Background(), rulesFor("10"), topicBy(bob, "$create:foo"), fetch)
	assert.ErrorIs(t, err, boom)
	assert.False(t, IsDenied(err))
}

func TestCheckAuthEventsSelection_Create(t *testing.T) {
	fetch := memFetch()
	assert.NoError(t, CheckAuthEventsSelection(context.Background(), rulesFor("10"), createEvent(), fetch))

	bad := createEvent()
	bad.PrevEvents = []string{"$x:foo"}
	requireDenied(t, CheckAuthEventsSelection(context.Background(), rulesFor("10"), bad, fetch), RuleCreate)
}

func TestCheckAuthEventsSelection_V12CreateNotCited(t *testing.T) {
	create := stateEvent("$test", alice, event.KindCreate, "", `{}`)
	create.RoomID = "!test"
	member := memberEvent("$ima", alice, alice, event.MembershipJoin)
	member.RoomID = "!test"
	fetch := memFetch(create, member)

	ev := stateEvent("$t", alice, event.KindTopic, "", `{}`)
	ev.RoomID = "!test"

	ev.AuthEvents = []string{"$ima"}
	assert.NoError(t, CheckAuthEventsSelection(context.Background(), rulesFor("12"), ev, fetch))

	ev.AuthEvents = []string{"$test", "$ima"}
	requireDenied(t, CheckAuthEventsSelection(context.Background(), rulesFor("12"), ev, fetch), RuleAuthEvents)
}
