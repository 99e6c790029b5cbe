package resolve

import (
	"github.com/roach88/roomstate/internal/auth"
	"github.com/roach88/roomstate/internal/event"
)

// iterativeAuthChecks replays ids in order on top of base. Each event is
// checked against its own auth events overlaid with the slots of the state
// built so far, and written to its slot only when allowed.
func (rs *resolution) iterativeAuthChecks(base event.StateMap, ids []string) event.StateMap {
	state := base.Clone()
	for _, id := range ids {
		ev := rs.f.get(id)
		if ev == nil {
			continue
		}
		key, ok := ev.Key()
		if !ok {
			rs.logger.Debug("skipping non-state event", "event_id", id)
			continue
		}
		if ev.Rejected {
			rs.logger.Debug("skipping rejected event", "event_id", id)
			continue
		}

		authEvents, ok := rs.authEventsFor(ev, state)
		if !ok {
			continue
		}

		err := auth.Check(rs.rules.Auth, ev, auth.MapState(authEvents), rs.verifier)
		switch {
		case err == nil:
			state[key] = id
		case auth.IsMalformed(err):
			rs.diags.add(ErrCodeMalformedContent, id, "%v", err)
		default:
			rs.logger.Debug("event not authorized", "event_id", id, "reason", err.Error())
		}
	}
	return state
}

// authEventsFor assembles the snapshot ev is checked against. It reports
// false when ev cannot be checked at all.
func (rs *resolution) authEventsFor(ev *event.Event, state event.StateMap) (map[event.StateKey]*event.Event, bool) {
	authEvents := map[event.StateKey]*event.Event{}
	for _, aid := range ev.AuthEvents {
		ae := rs.f.get(aid)
		if ae == nil {
			rs.diags.add(ErrCodeMissingEvent, ev.ID, "auth event %s is not available", aid)
			return nil, false
		}
		if ae.Rejected {
			continue
		}
		if key, ok := ae.Key(); ok {
			authEvents[key] = ae
		}
	}

	if rs.rules.Auth.RoomCreateEventIDAsRoomID && ev.Kind != event.KindCreate {
		create := rs.roomCreate(ev)
		if create == nil {
			rs.diags.add(ErrCodeMissingEvent, ev.ID, "create event of room %s is not available", ev.RoomID)
			return nil, false
		}
		authEvents[event.StateKey{Kind: event.KindCreate}] = create
	}

	types, err := auth.AuthTypes(rs.rules.Auth, ev)
	if err != nil {
		rs.diags.add(ErrCodeMalformedContent, ev.ID, "%v", err)
		return nil, false
	}
	for _, key := range types {
		id, ok := state[key]
		if !ok {
			continue
		}
		if ae := rs.f.get(id); ae != nil && !ae.Rejected {
			authEvents[key] = ae
		}
	}
	return authEvents, true
}
