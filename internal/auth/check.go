package auth

import (
	"strings"

	"github.com/roach88/roomstate/internal/event"
	"github.com/roach88/roomstate/internal/roomversion"
)

// StateFunc looks up the state entry for (kind, stateKey). It returns nil
// when the slot is empty.
type StateFunc func(kind event.Kind, stateKey string) *event.Event

// MapState adapts an in-memory slot map to a StateFunc.
func MapState(m map[event.StateKey]*event.Event) StateFunc {
	return func(kind event.Kind, stateKey string) *event.Event {
		return m[event.StateKey{Kind: kind, Key: stateKey}]
	}
}

// Check decides whether ev is authorized against state.
//
// A nil return means allowed. A denial is returned as *DeniedError. The
// verifier is consulted only for invites carrying a third-party token; nil
// selects DefaultInviteVerifier.
func Check(rules roomversion.AuthRules, ev *event.Event, state StateFunc, verifier InviteVerifier) error {
	if verifier == nil {
		verifier = DefaultInviteVerifier{}
	}

	if ev.Kind == event.KindCreate {
		return checkCreate(rules, ev, state)
	}

	create := state(event.KindCreate, "")
	if create == nil {
		return deny(ev, RuleCreateMissing, "no m.room.create event in state")
	}

	federate, err := create.Federate()
	if err != nil {
		return denyMalformed(ev, err)
	}
	if !federate && event.ServerName(ev.Sender) != event.ServerName(create.Sender) {
		return deny(ev, RuleFederation, "room does not federate and sender %s is from another server", ev.Sender)
	}

	if rules.SpecialCaseAliases && ev.Kind == event.KindAliases {
		if ev.StateKey == nil || *ev.StateKey != event.ServerName(ev.Sender) {
			return deny(ev, RuleAliases, "state_key must be the sender's server name")
		}
		return nil
	}

	rp, err := loadRoomPower(rules, create, state)
	if err != nil {
		return denyMalformed(ev, err)
	}

	if ev.Kind == event.KindMember {
		return checkMember(rules, ev, state, rp, create, verifier)
	}

	senderMembership, err := membershipOf(state, ev.Sender)
	if err != nil {
		return denyMalformed(ev, err)
	}
	if senderMembership != event.MembershipJoin {
		return deny(ev, RuleSenderJoined, "sender %s is not joined (membership %s)", ev.Sender, senderMembership)
	}

	senderLevel := rp.user(ev.Sender)

	if ev.Kind == event.KindThirdPartyInvite {
		if need := rp.field(event.FieldInvite); senderLevel < need {
			return deny(ev, RuleThirdPartyInvite, "sender level %d below invite level %d", senderLevel, need)
		}
		return nil
	}

	if need := EventPowerLevel(rp.pl, ev); senderLevel < need {
		return deny(ev, RuleEventLevel, "sender level %d below required %d for %s", senderLevel, need, ev.Kind)
	}

	if ev.StateKey != nil && strings.HasPrefix(*ev.StateKey, "@") && *ev.StateKey != ev.Sender {
		return deny(ev, RuleStateKeyUser, "state_key %s names another user", *ev.StateKey)
	}

	if ev.Kind == event.KindPowerLevels {
		if err := checkPowerLevels(rules, ev, rp, senderLevel); err != nil {
			return err
		}
	}

	if rules.SpecialCaseRedaction && ev.Kind == event.KindRedaction {
		if senderLevel >= rp.field(event.FieldRedact) {
			return nil
		}
		if target := ev.RedactsID(); target != "" && event.ServerName(ev.ID) == event.ServerName(target) {
			return nil
		}
		return deny(ev, RuleRedaction, "sender level %d below redact level and target %s is from another server", senderLevel, ev.RedactsID())
	}

	return nil
}

// membershipOf returns user's membership in state. A missing member event
// counts as leave.
func membershipOf(state StateFunc, user string) (event.Membership, error) {
	m := state(event.KindMember, user)
	if m == nil {
		return event.MembershipLeave, nil
	}
	return m.Membership()
}
