package auth

import (
	"math"

	"github.com/roach88/roomstate/internal/event"
	"github.com/roach88/roomstate/internal/roomversion"
)

// InfiniteLevel is the power of privileged room creators. It compares
// greater than any level a power_levels event can express.
const InfiniteLevel int64 = math.MaxInt64

// DefaultCreatorLevel is the creator's level while the room has no
// power_levels event.
const DefaultCreatorLevel int64 = 100

// roomCreator returns the user who created the room: the create sender
// from v11, the content "creator" before that. additional_creators are not
// included.
func roomCreator(rules roomversion.AuthRules, create *event.Event) (string, error) {
	if rules.UseRoomCreateSender {
		return create.Sender, nil
	}
	creator, err := create.Creator()
	if err != nil {
		return "", err
	}
	if creator == "" {
		return "", &event.MalformedError{EventID: create.ID, Kind: create.Kind, Field: "creator", Reason: "missing"}
	}
	return creator, nil
}

// Creators returns the set of room creators declared by a create event.
func Creators(rules roomversion.AuthRules, create *event.Event) (map[string]bool, error) {
	creator, err := roomCreator(rules, create)
	if err != nil {
		return nil, err
	}
	set := map[string]bool{creator: true}
	if rules.AdditionalRoomCreators {
		extra, err := create.AdditionalCreators()
		if err != nil {
			return nil, err
		}
		for _, u := range extra {
			set[u] = true
		}
	}
	return set, nil
}

// UserPowerLevel returns the effective level of user.
//
// Privileged creators are infinite. Otherwise the power_levels event
// decides, with users_default as fallback. Without a power_levels event the
// creators have DefaultCreatorLevel and everyone else 0.
func UserPowerLevel(rules roomversion.AuthRules, pl *event.PowerLevels, creators map[string]bool, user string) int64 {
	if rules.ExplicitlyPrivilegeRoomCreators && creators[user] {
		return InfiniteLevel
	}
	if pl != nil {
		return pl.UserLevel(user)
	}
	if creators[user] {
		return DefaultCreatorLevel
	}
	return event.FieldUsersDefault.Default()
}

// EventPowerLevel returns the level required to send ev.
func EventPowerLevel(pl *event.PowerLevels, ev *event.Event) int64 {
	return pl.EventLevel(ev.Kind, ev.IsState())
}

// roomPower bundles what most rules need from the state snapshot.
type roomPower struct {
	rules    roomversion.AuthRules
	pl       *event.PowerLevels
	creators map[string]bool
}

func loadRoomPower(rules roomversion.AuthRules, create *event.Event, state StateFunc) (*roomPower, error) {
	creators, err := Creators(rules, create)
	if err != nil {
		return nil, err
	}
	rp := &roomPower{rules: rules, creators: creators}
	if plEvent := state(event.KindPowerLevels, ""); plEvent != nil {
		if rp.pl, err = event.ParsePowerLevels(plEvent, rules.IntegerPowerLevels); err != nil {
			return nil, err
		}
	}
	return rp, nil
}

func (rp *roomPower) user(u string) int64 {
	return UserPowerLevel(rp.rules, rp.pl, rp.creators, u)
}

func (rp *roomPower) field(f event.PowerField) int64 {
	return rp.pl.FieldOrDefault(f)
}
