package auth

import (
	"context"
	"errors"

	"github.com/roach88/roomstate/internal/event"
	"github.com/roach88/roomstate/internal/roomversion"
)

// AuthTypes returns the state slots whose events may authorize ev.
func AuthTypes(rules roomversion.AuthRules, ev *event.Event) ([]event.StateKey, error) {
	if ev.Kind == event.KindCreate {
		return nil, nil
	}
	keys := []event.StateKey{
		{Kind: event.KindPowerLevels},
		{Kind: event.KindMember, Key: ev.Sender},
		{Kind: event.KindCreate},
	}
	if ev.Kind != event.KindMember || ev.StateKey == nil {
		return keys, nil
	}

	keys = append(keys, event.StateKey{Kind: event.KindMember, Key: *ev.StateKey})

	membership, err := ev.Membership()
	if err != nil {
		return nil, err
	}
	switch membership {
	case event.MembershipJoin, event.MembershipInvite, event.MembershipKnock:
		keys = append(keys, event.StateKey{Kind: event.KindJoinRules})
	}

	if membership == event.MembershipInvite {
		tpi, err := ev.ThirdPartyInvite()
		if err != nil {
			return nil, err
		}
		if tpi != nil {
			keys = append(keys, event.StateKey{Kind: event.KindThirdPartyInvite, Key: tpi.Token})
		}
	}

	if membership == event.MembershipJoin && rules.RestrictedJoinRule {
		via, err := ev.JoinAuthorisedVia()
		if err != nil {
			return nil, err
		}
		if via != "" {
			keys = append(keys, event.StateKey{Kind: event.KindMember, Key: via})
		}
	}
	return keys, nil
}

// FetchFunc loads an event by id. It returns an error wrapping
// event.ErrNotFound when the event is unknown.
type FetchFunc func(ctx context.Context, id string) (*event.Event, error)

// CheckAuthEventsSelection applies the rules that need only the event and
// the events it cites in auth_events: each cited event exists, belongs to
// the room, is state, is not rejected, fills a distinct slot the event may
// cite, and the create event is among them unless the room id derives from
// it.
//
// Errors other than event.ErrNotFound from fetch are returned as is so the
// caller can tell a broken store from a bad event.
func CheckAuthEventsSelection(ctx context.Context, rules roomversion.AuthRules, ev *event.Event, fetch FetchFunc) error {
	if ev.Kind == event.KindCreate {
		return checkCreateShape(rules, ev)
	}

	expected, err := AuthTypes(rules, ev)
	if err != nil {
		return denyMalformed(ev, err)
	}
	allowed := map[event.StateKey]bool{}
	for _, k := range expected {
		allowed[k] = true
	}

	seen := map[event.StateKey]bool{}
	haveCreate := false
	for _, id := range ev.AuthEvents {
		ae, err := fetch(ctx, id)
		if errors.Is(err, event.ErrNotFound) {
			return &DeniedError{EventID: ev.ID, Rule: RuleAuthEvents, Reason: "auth event " + id + " not found", Err: err}
		}
		if err != nil {
			return err
		}
		if ae.RoomID != ev.RoomID {
			return deny(ev, RuleAuthEvents, "auth event %s is in room %s", id, ae.RoomID)
		}
		key, ok := ae.Key()
		if !ok {
			return deny(ev, RuleAuthEvents, "auth event %s is not a state event", id)
		}
		if seen[key] {
			return deny(ev, RuleAuthEvents, "duplicate auth event for %s", key)
		}
		seen[key] = true
		if key.Kind == event.KindCreate && rules.RoomCreateEventIDAsRoomID {
			return deny(ev, RuleAuthEvents, "create event %s must not be cited", id)
		}
		if !allowed[key] {
			return deny(ev, RuleAuthEvents, "auth event %s fills unexpected slot %s", id, key)
		}
		if ae.Rejected {
			return deny(ev, RuleAuthEvents, "auth event %s was rejected", id)
		}
		if key.Kind == event.KindCreate {
			haveCreate = true
		}
	}

	if !haveCreate && !rules.RoomCreateEventIDAsRoomID {
		return deny(ev, RuleAuthEvents, "no create event among auth events")
	}
	return nil
}
