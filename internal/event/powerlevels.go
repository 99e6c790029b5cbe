package event

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// PowerField names an integer field of m.room.power_levels content.
type PowerField string

const (
	FieldUsersDefault  PowerField = "users_default"
	FieldEventsDefault PowerField = "events_default"
	FieldStateDefault  PowerField = "state_default"
	FieldBan           PowerField = "ban"
	FieldRedact        PowerField = "redact"
	FieldKick          PowerField = "kick"
	FieldInvite        PowerField = "invite"
)

// PowerFields lists every integer field in a fixed order.
var PowerFields = []PowerField{
	FieldUsersDefault,
	FieldEventsDefault,
	FieldStateDefault,
	FieldBan,
	FieldRedact,
	FieldKick,
	FieldInvite,
}

// Default returns the value a field takes when it is absent.
func (f PowerField) Default() int64 {
	switch f {
	case FieldStateDefault, FieldKick, FieldBan, FieldRedact:
		return 50
	default:
		return 0
	}
}

// MaxSafeInteger bounds power level values, as canonical JSON integers are
// limited to the IEEE-754 safe range.
const MaxSafeInteger = 1<<53 - 1

// PowerLevels is parsed m.room.power_levels content.
//
// Maps are nil when the corresponding property is absent so callers can tell
// "absent" from "empty".
type PowerLevels struct {
	fields        map[PowerField]int64
	Events        map[Kind]int64
	Notifications map[string]int64
	Users         map[string]int64
}

// Field returns an integer field and whether it was present.
func (p *PowerLevels) Field(f PowerField) (int64, bool) {
	if p == nil {
		return 0, false
	}
	v, ok := p.fields[f]
	return v, ok
}

// FieldOrDefault returns an integer field, or its default when absent.
func (p *PowerLevels) FieldOrDefault(f PowerField) int64 {
	if v, ok := p.Field(f); ok {
		return v
	}
	return f.Default()
}

// UserLevel returns the level listed for user, falling back to users_default.
func (p *PowerLevels) UserLevel(user string) int64 {
	if p != nil {
		if v, ok := p.Users[user]; ok {
			return v
		}
	}
	return p.FieldOrDefault(FieldUsersDefault)
}

// EventLevel returns the level required to send an event of kind. State
// events fall back to state_default, others to events_default.
func (p *PowerLevels) EventLevel(kind Kind, isState bool) int64 {
	if p != nil {
		if v, ok := p.Events[kind]; ok {
			return v
		}
	}
	if isState {
		return p.FieldOrDefault(FieldStateDefault)
	}
	return p.FieldOrDefault(FieldEventsDefault)
}

// ParsePowerLevels parses the content of an m.room.power_levels event.
//
// With integerOnly set, every level must be a JSON integer. Otherwise
// strings holding an integer ("50", " +50 ") are accepted too. Keys of
// "users" must be valid user ids.
func ParsePowerLevels(ev *Event, integerOnly bool) (*PowerLevels, error) {
	root, err := ev.root()
	if err != nil {
		return nil, err
	}
	p := &PowerLevels{fields: map[PowerField]int64{}}
	if !root.Exists() {
		return p, nil
	}

	for _, f := range PowerFields {
		r := root.Get(string(f))
		if !r.Exists() {
			continue
		}
		v, err := parseLevel(r, integerOnly)
		if err != nil {
			return nil, ev.malformed(string(f), err.Error())
		}
		p.fields[f] = v
	}

	events, err := parseLevelMap(root.Get("events"), integerOnly)
	if err != nil {
		return nil, ev.malformed("events", err.Error())
	}
	if events != nil {
		p.Events = make(map[Kind]int64, len(events))
		for k, v := range events {
			p.Events[Kind(k)] = v
		}
	}

	if p.Notifications, err = parseLevelMap(root.Get("notifications"), integerOnly); err != nil {
		return nil, ev.malformed("notifications", err.Error())
	}

	if p.Users, err = parseLevelMap(root.Get("users"), integerOnly); err != nil {
		return nil, ev.malformed("users", err.Error())
	}
	for user := range p.Users {
		if !ValidUserID(user) {
			return nil, ev.malformed("users", fmt.Sprintf("key %q is not a user id", user))
		}
	}

	return p, nil
}

func parseLevelMap(r gjson.Result, integerOnly bool) (map[string]int64, error) {
	if !r.Exists() {
		return nil, nil
	}
	if !r.IsObject() {
		return nil, fmt.Errorf("not an object")
	}
	out := map[string]int64{}
	var firstErr error
	r.ForEach(func(key, value gjson.Result) bool {
		v, err := parseLevel(value, integerOnly)
		if err != nil {
			firstErr = fmt.Errorf("%s: %w", key.String(), err)
			return false
		}
		out[key.String()] = v
		return true
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func parseLevel(r gjson.Result, integerOnly bool) (int64, error) {
	switch r.Type {
	case gjson.Number:
		return parseIntLiteral(r.Raw)
	case gjson.String:
		if integerOnly {
			return 0, fmt.Errorf("string %q where an integer is required", r.String())
		}
		s := strings.TrimSpace(r.String())
		s = strings.TrimPrefix(s, "+")
		return parseIntLiteral(s)
	default:
		return 0, fmt.Errorf("not an integer")
	}
}

func parseIntLiteral(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	if v > MaxSafeInteger || v < -MaxSafeInteger {
		return 0, fmt.Errorf("integer %d out of range", v)
	}
	return v, nil
}

// SortedUsers returns the user ids listed in Users, sorted.
func (p *PowerLevels) SortedUsers() []string {
	users := make([]string, 0, len(p.Users))
	for u := range p.Users {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}
