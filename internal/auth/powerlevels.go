package auth

import (
	"sort"

	"github.com/roach88/roomstate/internal/event"
	"github.com/roach88/roomstate/internal/roomversion"
)

// checkPowerLevels applies the power_levels change rules. A sender may only
// touch levels at or below its own, and may only demote peers strictly
// below it. Only a replacement is checked this way.
func checkPowerLevels(rules roomversion.AuthRules, ev *event.Event, rp *roomPower, senderLevel int64) error {
	next, err := event.ParsePowerLevels(ev, rules.IntegerPowerLevels)
	if err != nil {
		return denyMalformed(ev, err)
	}

	if rules.ExplicitlyPrivilegeRoomCreators {
		for _, u := range next.SortedUsers() {
			if rp.creators[u] {
				return deny(ev, RulePowerLevels, "creator %s may not be listed in users", u)
			}
		}
	}

	// The room's first power_levels event may set any levels.
	cur := rp.pl
	if cur == nil {
		return nil
	}

	for _, f := range event.PowerFields {
		oldV, oldOK := cur.Field(f)
		newV, newOK := next.Field(f)
		if oldOK == newOK && oldV == newV {
			continue
		}
		if !oldOK {
			oldV = f.Default()
		}
		if !newOK {
			newV = f.Default()
		}
		if oldV > senderLevel || newV > senderLevel {
			return deny(ev, RulePowerLevels, "%s change %d->%d exceeds sender level %d", f, oldV, newV, senderLevel)
		}
	}

	if err := checkLevelMap(ev, "events", kindMap(cur.Events), kindMap(next.Events), senderLevel, ""); err != nil {
		return err
	}
	if rules.LimitNotificationsPowerLevels {
		if err := checkLevelMap(ev, "notifications", cur.Notifications, next.Notifications, senderLevel, ""); err != nil {
			return err
		}
	}
	return checkLevelMap(ev, "users", cur.Users, next.Users, senderLevel, ev.Sender)
}

// checkLevelMap compares one map of levels. When self is set the map holds
// user levels: an existing entry for another user at or above the sender
// cannot change.
func checkLevelMap(ev *event.Event, name string, cur, next map[string]int64, senderLevel int64, self string) error {
	keys := map[string]struct{}{}
	for k := range cur {
		keys[k] = struct{}{}
	}
	for k := range next {
		keys[k] = struct{}{}
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	for _, k := range sorted {
		oldV, oldOK := cur[k]
		newV, newOK := next[k]
		if oldOK == newOK && oldV == newV {
			continue
		}
		if oldOK {
			if self != "" && k != self && oldV >= senderLevel {
				return deny(ev, RulePowerLevels, "%s[%s] is %d, not below sender level %d", name, k, oldV, senderLevel)
			}
			if self == "" && oldV > senderLevel {
				return deny(ev, RulePowerLevels, "%s[%s] is %d, above sender level %d", name, k, oldV, senderLevel)
			}
		}
		if newOK && newV > senderLevel {
			return deny(ev, RulePowerLevels, "%s[%s] set to %d above sender level %d", name, k, newV, senderLevel)
		}
	}
	return nil
}

func kindMap(m map[event.Kind]int64) map[string]int64 {
	if m == nil {
		return nil
	}
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}
