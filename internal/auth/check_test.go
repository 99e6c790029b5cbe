package auth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/roomstate/internal/event"
)

// =============================================================================
// Create
// =============================================================================

func TestCheck_CreateAllowedAsFirstEvent(t *testing.T) {
	err := Check(rulesFor("10"), createEvent(), testState{}.fn(), nil)
	assert.NoError(t, err)
}

func TestCheck_CreateWithPrevEventsDenied(t *testing.T) {
	ev := createEvent()
	ev.PrevEvents = []string{"$other:foo"}

	requireDenied(t, Check(rulesFor("10"), ev, testState{}.fn(), nil), RuleCreate)
}

func TestCheck_SecondCreateDenied(t *testing.T) {
	second := stateEvent("$create2:foo", alice, event.KindCreate, "", `{"creator":"@alice:foo"}`)

	requireDenied(t, Check(rulesFor("10"), second, baseState().fn(), nil), RuleCreate)
}

func TestCheck_CreateFromForeignServerDenied(t *testing.T) {
	ev := stateEvent("$create:bar", "@mallory:bar", event.KindCreate, "", `{"creator":"@mallory:bar"}`)

	requireDenied(t, Check(rulesFor("10"), ev, testState{}.fn(), nil), RuleCreate)
}

func TestCheck_CreatorFieldRequiredBeforeV11(t *testing.T) {
	ev := stateEvent("$create:foo", alice, event.KindCreate, "", `{}`)

	requireDenied(t, Check(rulesFor("10"), ev, testState{}.fn(), nil), RuleCreate)
	assert.NoError(t, Check(rulesFor("11"), ev, testState{}.fn(), nil))
}

func TestCheck_NoCreateInState(t *testing.T) {
	ev := stateEvent("$topic:foo", alice, event.KindTopic, "", `{"topic":"x"}`)
	s := baseState().drop(event.KindCreate, "")

	requireDenied(t, Check(rulesFor("10"), ev, s.fn(), nil), RuleCreateMissing)
}

func TestCheck_NonFederatingRoom(t *testing.T) {
	s := baseState().put(stateEvent("$create:foo", alice, event.KindCreate, "", `{"creator":"@alice:foo","m.federate":false}`))
	s.put(memberEvent("$imz:bar", "@zara:bar", "@zara:bar", event.MembershipJoin))

	ev := stateEvent("$topic:bar", "@zara:bar", event.KindTopic, "", `{"topic":"x"}`)
	requireDenied(t, Check(rulesFor("10"), ev, s.fn(), nil), RuleFederation)
}

// =============================================================================
// Generic rules
// =============================================================================

func TestCheck_SenderMustBeJoined(t *testing.T) {
	ev := &event.Event{ID: "$msg:foo", RoomID: testRoom, Sender: charlie, Kind: event.KindMessage, Content: []byte(`{"body":"hi"}`)}

	requireDenied(t, Check(rulesFor("10"), ev, baseState().fn(), nil), RuleSenderJoined)
}

func TestCheck_MessageFromJoinedMember(t *testing.T) {
	ev := &event.Event{ID: "$msg:foo", RoomID: testRoom, Sender: bob, Kind: event.KindMessage, Content: []byte(`{"body":"hi"}`)}

	assert.NoError(t, Check(rulesFor("10"), ev, baseState().fn(), nil))
}

func TestCheck_EventLevel(t *testing.T) {
	s := baseState().put(
		stateEvent("$ipower:foo", alice, event.KindPowerLevels, "",
			`{"users":{"@alice:foo":100,"@bob:foo":50},"events":{"m.room.topic":75}}`),
	)
	topic := stateEvent("$topic:foo", bob, event.KindTopic, "", `{"topic":"x"}`)

	requireDenied(t, Check(rulesFor("10"), topic, s.fn(), nil), RuleEventLevel)

	topic.Sender = alice
	assert.NoError(t, Check(rulesFor("10"), topic, s.fn(), nil))
}

func TestCheck_StateKeyNamingOtherUser(t *testing.T) {
	ev := stateEvent("$custom:foo", alice, event.Kind("org.example.profile"), bob, `{}`)

	requireDenied(t, Check(rulesFor("10"), ev, baseState().fn(), nil), RuleStateKeyUser)

	ev.StateKey = event.StrPtr(alice)
	assert.NoError(t, Check(rulesFor("10"), ev, baseState().fn(), nil))
}

func TestCheck_AliasesSpecialCase(t *testing.T) {
	// The sender need not even be joined.
	ev := stateEvent("$aliases:bar", "@zara:bar", event.KindAliases, "bar", `{"aliases":["#a:bar"]}`)
	assert.NoError(t, Check(rulesFor("3"), ev, baseState().fn(), nil))

	ev.StateKey = event.StrPtr("foo")
	requireDenied(t, Check(rulesFor("3"), ev, baseState().fn(), nil), RuleAliases)

	// Later versions treat aliases like any other state event.
	ev.StateKey = event.StrPtr("bar")
	requireDenied(t, Check(rulesFor("6"), ev, baseState().fn(), nil), RuleSenderJoined)
}

func TestCheck_RedactionSpecialCase(t *testing.T) {
	s := baseState().put(memberEvent("$imc:foo", charlie, charlie, event.MembershipJoin))

	sameServer := &event.Event{ID: "$r1:foo", RoomID: testRoom, Sender: charlie, Kind: event.KindRedaction, Redacts: "$x:foo"}
	assert.NoError(t, Check(rulesFor("1"), sameServer, s.fn(), nil))

	otherServer := &event.Event{ID: "$r2:foo", RoomID: testRoom, Sender: charlie, Kind: event.KindRedaction, Redacts: "$x:bar"}
	requireDenied(t, Check(rulesFor("1"), otherServer, s.fn(), nil), RuleRedaction)

	// Redact level is enough on its own.
	otherServer.Sender = alice
	assert.NoError(t, Check(rulesFor("1"), otherServer, s.fn(), nil))

	// From v3 redactions are plain events.
	otherServer.Sender = charlie
	assert.NoError(t, Check(rulesFor("3"), otherServer, s.fn(), nil))
}

func TestCheck_MalformedContentIsDenied(t *testing.T) {
	ev := stateEvent("$m:foo", charlie, event.KindMember, charlie, `{"membership":7}`)

	err := Check(rulesFor("10"), ev, baseState().fn(), nil)
	requireDenied(t, err, RuleContent)
	assert.True(t, IsMalformed(err))
	assert.True(t, IsDenied(err))
}

func TestCheck_MalformedPowerLevelsInState(t *testing.T) {
	s := baseState().put(stateEvent("$ipower:foo", alice, event.KindPowerLevels, "", `{"ban":"fifty"}`))
	ev := stateEvent("$topic:foo", alice, event.KindTopic, "", `{"topic":"x"}`)

	err := Check(rulesFor("9"), ev, s.fn(), nil)
	assert.True(t, IsMalformed(err))
}

func TestDeniedError_Message(t *testing.T) {
	err := &DeniedError{EventID: "$e:foo", Rule: RuleMembership, Reason: "nope"}
	assert.Equal(t, "event $e:foo denied by membership rule: nope", err.Error())
	assert.False(t, IsDenied(errors.New("other")))
}

// =============================================================================
// Power levels
// =============================================================================

func plEvent(sender, content string) *event.Event {
	return stateEvent("$pl:foo", sender, event.KindPowerLevels, "", content)
}

func TestCheckPowerLevels(t *testing.T) {
	tests := []struct {
		name    string
		sender  string
		content string
		allowed bool
	}{
		{"no change", bob, `{"users":{"@alice:foo":100,"@bob:foo":50}}`, true},
		{"raise self above own level", bob, `{"users":{"@alice:foo":100,"@bob:foo":60}}`, false},
		{"grant peer own level", bob, `{"users":{"@alice:foo":100,"@bob:foo":50,"@charlie:foo":50}}`, true},
		{"demote higher user", bob, `{"users":{"@alice:foo":0,"@bob:foo":50}}`, false},
		{"demote self", bob, `{"users":{"@alice:foo":100,"@bob:foo":10}}`, true},
		{"admin demotes bob", alice, `{"users":{"@alice:foo":100,"@bob:foo":0}}`, true},
		{"lower ban to own level", bob, `{"ban":40,"users":{"@alice:foo":100,"@bob:foo":50}}`, true},
		{"raise kick above own", bob, `{"kick":75,"users":{"@alice:foo":100,"@bob:foo":50}}`, false},
		{"event level above own", bob, `{"events":{"m.room.topic":60},"users":{"@alice:foo":100,"@bob:foo":50}}`, false},
		{"event level at own", bob, `{"events":{"m.room.topic":50},"users":{"@alice:foo":100,"@bob:foo":50}}`, true},
		{"notifications above own", bob, `{"notifications":{"room":80},"users":{"@alice:foo":100,"@bob:foo":50}}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(rulesFor("10"), plEvent(tt.sender, tt.content), baseState().fn(), nil)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				requireDenied(t, err, RulePowerLevels)
			}
		})
	}
}

func TestCheckPowerLevels_NotificationsUnlimitedBeforeV6(t *testing.T) {
	ev := plEvent(bob, `{"notifications":{"room":80},"users":{"@alice:foo":100,"@bob:foo":50}}`)

	assert.NoError(t, Check(rulesFor("5"), ev, baseState().fn(), nil))
}

func TestCheckPowerLevels_Initial(t *testing.T) {
	s := baseState().drop(event.KindPowerLevels, "")

	assert.NoError(t, Check(rulesFor("10"), plEvent(alice, `{"users":{"@alice:foo":100}}`), s.fn(), nil))
	// The first power_levels event is not bounded by the creator's default.
	assert.NoError(t, Check(rulesFor("10"), plEvent(alice, `{"users":{"@alice:foo":150,"@bob:foo":150}}`), s.fn(), nil))
	// Without a power_levels event non-creators sit at 0, below state_default.
	requireDenied(t, Check(rulesFor("10"), plEvent(bob, `{"users":{"@bob:foo":100}}`), s.fn(), nil), RuleEventLevel)
}

func TestCheckPowerLevels_FloatLevelsInEveryVersion(t *testing.T) {
	ev := plEvent(alice, `{"kick":1.5,"users":{"@alice:foo":100,"@bob:foo":50}}`)

	for _, version := range []string{"1", "5", "6", "10"} {
		err := Check(rulesFor(version), ev, baseState().fn(), nil)
		requireDenied(t, err, RuleContent)
		assert.True(t, IsMalformed(err), version)
	}
}

func TestCheckPowerLevels_StringLevels(t *testing.T) {
	ev := plEvent(alice, `{"ban":"40","users":{"@alice:foo":100,"@bob:foo":50}}`)

	assert.NoError(t, Check(rulesFor("9"), ev, baseState().fn(), nil))

	err := Check(rulesFor("10"), ev, baseState().fn(), nil)
	requireDenied(t, err, RuleContent)
	assert.True(t, IsMalformed(err))
}

// =============================================================================
// Privileged creators
// =============================================================================

func v12State() testState {
	create := stateEvent("$test", alice, event.KindCreate, "", `{"additional_creators":["@bob:foo"]}`)
	create.RoomID = "!test"
	s := testState{}
	s.put(
		create,
		memberEvent("$ima", alice, alice, event.MembershipJoin),
		memberEvent("$imb", bob, bob, event.MembershipJoin),
		memberEvent("$imc", charlie, charlie, event.MembershipJoin),
		stateEvent("$ipower", alice, event.KindPowerLevels, "", `{"users":{"@charlie:foo":100}}`),
	)
	for _, ev := range s {
		ev.RoomID = "!test"
	}
	return s
}

func TestCheck_V12CreatorsAreInfinite(t *testing.T) {
	rules := rulesFor("12")

	// charlie (100) cannot ban an additional creator.
	ban := memberEvent("$ban", charlie, bob, event.MembershipBan)
	ban.RoomID = "!test"
	requireDenied(t, Check(rules, ban, v12State().fn(), nil), RuleMembership)

	// A creator can ban charlie.
	ban = memberEvent("$ban", bob, charlie, event.MembershipBan)
	ban.RoomID = "!test"
	assert.NoError(t, Check(rules, ban, v12State().fn(), nil))
}

func TestCheck_V12CreatorsMayNotBeListed(t *testing.T) {
	ev := plEvent(alice, `{"users":{"@bob:foo":100}}`)
	ev.RoomID = "!test"

	requireDenied(t, Check(rulesFor("12"), ev, v12State().fn(), nil), RulePowerLevels)
}

func TestUserPowerLevel(t *testing.T) {
	creators := map[string]bool{alice: true}
	pl, err := event.ParsePowerLevels(plEvent(alice, `{"users":{"@bob:foo":30},"users_default":5}`), true)
	require.NoError(t, err)

	assert.Equal(t, InfiniteLevel, UserPowerLevel(rulesFor("12"), pl, creators, alice))
	assert.Equal(t, int64(5), UserPowerLevel(rulesFor("10"), pl, creators, alice))
	assert.Equal(t, int64(30), UserPowerLevel(rulesFor("10"), pl, creators, bob))
	assert.Equal(t, DefaultCreatorLevel, UserPowerLevel(rulesFor("10"), nil, creators, alice))
	assert.Equal(t, int64(0), UserPowerLevel(rulesFor("10"), nil, creators, bob))
}

func TestCreators(t *testing.T) {
	create := stateEvent("$c:foo", alice, event.KindCreate, "", `{"creator":"@bob:foo","additional_creators":["@charlie:foo"]}`)

	got, err := Creators(rulesFor("10"), create)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{bob: true}, got)

	got, err = Creators(rulesFor("11"), create)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{alice: true}, got)

	got, err = Creators(rulesFor("12"), create)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{alice: true, charlie: true}, got)
}
