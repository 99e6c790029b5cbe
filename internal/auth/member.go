package auth

import (
	"github.com/roach88/roomstate/internal/event"
	"github.com/roach88/roomstate/internal/roomversion"
)

// checkMember applies the membership transition rules.
func checkMember(rules roomversion.AuthRules, ev *event.Event, state StateFunc, rp *roomPower, create *event.Event, verifier InviteVerifier) error {
	if ev.StateKey == nil || !event.ValidUserID(*ev.StateKey) {
		return deny(ev, RuleMembership, "state_key is not a user id")
	}
	target := *ev.StateKey

	membership, err := ev.Membership()
	if err != nil {
		return denyMalformed(ev, err)
	}
	senderMembership, err := membershipOf(state, ev.Sender)
	if err != nil {
		return denyMalformed(ev, err)
	}
	targetMembership, err := membershipOf(state, target)
	if err != nil {
		return denyMalformed(ev, err)
	}

	m := &memberCheck{
		rules:            rules,
		ev:               ev,
		state:            state,
		rp:               rp,
		target:           target,
		senderMembership: senderMembership,
		targetMembership: targetMembership,
	}

	switch membership {
	case event.MembershipJoin:
		return m.join(create)
	case event.MembershipInvite:
		return m.invite(verifier)
	case event.MembershipLeave:
		return m.leave()
	case event.MembershipBan:
		return m.ban()
	case event.MembershipKnock:
		if !rules.Knocking {
			return deny(ev, RuleMembership, "knocking is not supported")
		}
		return m.knock()
	default:
		return deny(ev, RuleMembership, "unknown membership %q", membership)
	}
}

type memberCheck struct {
	rules            roomversion.AuthRules
	ev               *event.Event
	state            StateFunc
	rp               *roomPower
	target           string
	senderMembership event.Membership
	targetMembership event.Membership
}

func (m *memberCheck) denyf(format string, args ...any) error {
	return deny(m.ev, RuleMembership, format, args...)
}

func (m *memberCheck) joinRule() (event.JoinRule, error) {
	jr := m.state(event.KindJoinRules, "")
	if jr == nil {
		return event.JoinRuleInvite, nil
	}
	return jr.JoinRule()
}

func (m *memberCheck) join(create *event.Event) error {
	ev := m.ev

	// The creator's own first join. A ban still wins.
	if len(ev.PrevEvents) == 1 && ev.PrevEvents[0] == create.ID && m.targetMembership != event.MembershipBan {
		creator, err := roomCreator(m.rules, create)
		if err != nil {
			return denyMalformed(ev, err)
		}
		if creator == m.target {
			return nil
		}
	}
	if ev.Sender != m.target {
		return m.denyf("%s cannot join on behalf of %s", ev.Sender, m.target)
	}
	if m.targetMembership == event.MembershipBan {
		return m.denyf("%s is banned", m.target)
	}

	rule, err := m.joinRule()
	if err != nil {
		return denyMalformed(ev, err)
	}

	invited := m.targetMembership == event.MembershipInvite || m.targetMembership == event.MembershipJoin
	if (rule == event.JoinRuleInvite || (m.rules.Knocking && rule == event.JoinRuleKnock)) && invited {
		return nil
	}

	if (m.rules.RestrictedJoinRule && rule == event.JoinRuleRestricted) ||
		(m.rules.KnockRestrictedJoinRule && rule == event.JoinRuleKnockRestricted) {
		if invited {
			return nil
		}
		via, err := ev.JoinAuthorisedVia()
		if err != nil {
			return denyMalformed(ev, err)
		}
		if via == "" {
			return m.denyf("restricted join without an authorising user")
		}
		viaMembership, err := membershipOf(m.state, via)
		if err != nil {
			return denyMalformed(ev, err)
		}
		if viaMembership != event.MembershipJoin {
			return m.denyf("authorising user %s is not joined", via)
		}
		if level, need := m.rp.user(via), m.rp.field(event.FieldInvite); level < need {
			return m.denyf("authorising user %s level %d below invite level %d", via, level, need)
		}
		return nil
	}

	if rule == event.JoinRulePublic {
		return nil
	}
	return m.denyf("join rule %q does not admit %s", rule, m.target)
}

func (m *memberCheck) invite(verifier InviteVerifier) error {
	ev := m.ev
	tpi, err := ev.ThirdPartyInvite()
	if err != nil {
		return denyMalformed(ev, err)
	}
	if tpi != nil {
		return m.thirdPartyInvite(tpi, verifier)
	}

	if m.senderMembership != event.MembershipJoin {
		return m.denyf("inviter %s is not joined", ev.Sender)
	}
	if m.targetMembership == event.MembershipJoin || m.targetMembership == event.MembershipBan {
		return m.denyf("%s cannot be invited from %s", m.target, m.targetMembership)
	}
	if level, need := m.rp.user(ev.Sender), m.rp.field(event.FieldInvite); level < need {
		return m.denyf("inviter level %d below invite level %d", level, need)
	}
	return nil
}

func (m *memberCheck) leave() error {
	ev := m.ev
	if ev.Sender == m.target {
		switch m.senderMembership {
		case event.MembershipJoin, event.MembershipInvite:
			return nil
		case event.MembershipKnock:
			if m.rules.Knocking {
				return nil
			}
		}
		return m.denyf("%s cannot leave from %s", m.target, m.senderMembership)
	}

	if m.senderMembership != event.MembershipJoin {
		return m.denyf("kicker %s is not joined", ev.Sender)
	}
	senderLevel := m.rp.user(ev.Sender)
	if m.targetMembership == event.MembershipBan {
		if need := m.rp.field(event.FieldBan); senderLevel < need {
			return m.denyf("unban needs level %d, sender has %d", need, senderLevel)
		}
	}
	if need := m.rp.field(event.FieldKick); senderLevel < need {
		return m.denyf("kick needs level %d, sender has %d", need, senderLevel)
	}
	if targetLevel := m.rp.user(m.target); targetLevel >= senderLevel {
		return m.denyf("target level %d not below sender level %d", targetLevel, senderLevel)
	}
	return nil
}

func (m *memberCheck) ban() error {
	ev := m.ev
	if m.senderMembership != event.MembershipJoin {
		return m.denyf("banner %s is not joined", ev.Sender)
	}
	senderLevel := m.rp.user(ev.Sender)
	if need := m.rp.field(event.FieldBan); senderLevel < need {
		return m.denyf("ban needs level %d, sender has %d", need, senderLevel)
	}
	if targetLevel := m.rp.user(m.target); targetLevel >= senderLevel {
		return m.denyf("target level %d not below sender level %d", targetLevel, senderLevel)
	}
	return nil
}

func (m *memberCheck) knock() error {
	ev := m.ev
	rule, err := m.joinRule()
	if err != nil {
		return denyMalformed(ev, err)
	}
	if rule != event.JoinRuleKnock && !(m.rules.KnockRestrictedJoinRule && rule == event.JoinRuleKnockRestricted) {
		return m.denyf("join rule %q does not allow knocking", rule)
	}
	if ev.Sender != m.target {
		return m.denyf("%s cannot knock on behalf of %s", ev.Sender, m.target)
	}
	switch m.senderMembership {
	case event.MembershipBan, event.MembershipInvite, event.MembershipJoin:
		return m.denyf("cannot knock from %s", m.senderMembership)
	}
	return nil
}
