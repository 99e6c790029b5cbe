package event

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Event is an immutable node of the room DAG.
//
// AuthEvents and PrevEvents are plain ids resolved through a Store. Rejected
// marks an event that failed the checks performed on receipt; rejected
// events are never used as auth events.
type Event struct {
	ID             string          `json:"event_id"`
	RoomID         string          `json:"room_id"`
	Sender         string          `json:"sender"`
	Kind           Kind            `json:"type"`
	StateKey       *string         `json:"state_key,omitempty"`
	Content        json.RawMessage `json:"content"`
	AuthEvents     []string        `json:"auth_events"`
	PrevEvents     []string        `json:"prev_events"`
	OriginServerTS int64           `json:"origin_server_ts"`
	Depth          int64           `json:"depth,omitempty"`
	Redacts        string          `json:"redacts,omitempty"`
	Rejected       bool            `json:"-"`
}

// IsState reports whether the event carries a state key.
func (e *Event) IsState() bool {
	return e.StateKey != nil
}

// Key returns the state slot of a state event. ok is false for non-state events.
func (e *Event) Key() (key StateKey, ok bool) {
	if e.StateKey == nil {
		return StateKey{}, false
	}
	return StateKey{Kind: e.Kind, Key: *e.StateKey}, true
}

// Is reports whether the event is a state event of the given kind and key.
func (e *Event) Is(kind Kind, stateKey string) bool {
	return e.Kind == kind && e.StateKey != nil && *e.StateKey == stateKey
}

// Clone returns a deep copy of the event.
func (e *Event) Clone() *Event {
	c := *e
	if e.StateKey != nil {
		sk := *e.StateKey
		c.StateKey = &sk
	}
	c.Content = append(json.RawMessage(nil), e.Content...)
	c.AuthEvents = append([]string(nil), e.AuthEvents...)
	c.PrevEvents = append([]string(nil), e.PrevEvents...)
	return &c
}

// StrPtr returns a pointer to s. Handy for StateKey literals.
func StrPtr(s string) *string {
	return &s
}

// StateKey identifies one slot of room state: (kind, state_key).
type StateKey struct {
	Kind Kind
	Key  string
}

// String renders the slot as "kind|state_key".
func (k StateKey) String() string {
	return string(k.Kind) + "|" + k.Key
}

// Less orders slots by kind, then state key, bytewise.
func (k StateKey) Less(other StateKey) bool {
	if k.Kind != other.Kind {
		return k.Kind < other.Kind
	}
	return k.Key < other.Key
}

// ParseStateKey parses the "kind|state_key" form produced by String.
func ParseStateKey(s string) (StateKey, error) {
	kind, key, ok := strings.Cut(s, "|")
	if !ok || kind == "" {
		return StateKey{}, fmt.Errorf("invalid state key %q: want kind|state_key", s)
	}
	return StateKey{Kind: Kind(kind), Key: key}, nil
}

// StateMap maps each state slot to the id of the event occupying it.
type StateMap map[StateKey]string

// NewStateMap copies entries into a new StateMap.
func NewStateMap(entries map[StateKey]string) StateMap {
	m := make(StateMap, len(entries))
	for k, v := range entries {
		m[k] = v
	}
	return m
}

// Clone returns a shallow copy of the map.
func (m StateMap) Clone() StateMap {
	c := make(StateMap, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// Keys returns the slots of m in deterministic order.
func (m StateMap) Keys() []StateKey {
	keys := make([]StateKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// Equal reports whether both maps hold exactly the same slots and ids.
func (m StateMap) Equal(other StateMap) bool {
	if len(m) != len(other) {
		return false
	}
	for k, v := range m {
		if ov, ok := other[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// IDs returns the distinct event ids referenced by m, sorted.
func (m StateMap) IDs() []string {
	seen := make(map[string]struct{}, len(m))
	ids := make([]string, 0, len(m))
	for _, id := range m {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ServerName returns the server part of a user, room or event id
// ("@alice:example.org" -> "example.org"). It is empty if there is none.
func ServerName(id string) string {
	_, server, ok := strings.Cut(id, ":")
	if !ok {
		return ""
	}
	return server
}

// ValidUserID reports whether s looks like "@localpart:server".
func ValidUserID(s string) bool {
	if len(s) < 4 || s[0] != '@' {
		return false
	}
	local, server, ok := strings.Cut(s[1:], ":")
	return ok && local != "" && server != ""
}

// CreateEventIDForRoom returns the id of the create event of a room whose id
// is derived from it ("!abc" -> "$abc").
func CreateEventIDForRoom(roomID string) (string, bool) {
	if len(roomID) < 2 || roomID[0] != '!' {
		return "", false
	}
	return "$" + roomID[1:], true
}
