package auth

import (
	"github.com/roach88/roomstate/internal/event"
	"github.com/roach88/roomstate/internal/roomversion"
)

// checkCreate authorizes an m.room.create event. A create is allowed only
// as the first event of its room.
func checkCreate(rules roomversion.AuthRules, ev *event.Event, state StateFunc) error {
	if existing := state(event.KindCreate, ""); existing != nil && existing.ID != ev.ID {
		return deny(ev, RuleCreate, "room already has create event %s", existing.ID)
	}
	return checkCreateShape(rules, ev)
}

// checkCreateShape holds the create rules that need no state.
func checkCreateShape(rules roomversion.AuthRules, ev *event.Event) error {
	if len(ev.PrevEvents) > 0 {
		return deny(ev, RuleCreate, "create event has %d prev_events", len(ev.PrevEvents))
	}
	if !rules.RoomCreateEventIDAsRoomID {
		if event.ServerName(ev.RoomID) != event.ServerName(ev.Sender) {
			return deny(ev, RuleCreate, "room id %s is not on the sender's server", ev.RoomID)
		}
	}
	if !rules.UseRoomCreateSender {
		creator, err := ev.Creator()
		if err != nil {
			return denyMalformed(ev, err)
		}
		if creator == "" {
			return deny(ev, RuleCreate, "content has no creator")
		}
	}
	if rules.AdditionalRoomCreators {
		if _, err := ev.AdditionalCreators(); err != nil {
			return denyMalformed(ev, err)
		}
	}
	return nil
}
