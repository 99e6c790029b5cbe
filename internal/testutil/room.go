package testutil

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/roomstate/internal/event"
)

// Users and room of the standard fixture.
const (
	Alice   = "@alice:foo"
	Bob     = "@bob:foo"
	Charlie = "@charlie:foo"
	Ella    = "@ella:foo"
	Zara    = "@zara:foo"

	RoomID = "!test:foo"
)

// EventID turns a short fixture name into an event id ("IMA" -> "$IMA:foo").
func EventID(name string) string {
	return "$" + name + ":foo"
}

// EventIDs maps EventID over names.
func EventIDs(names ...string) []string {
	ids := make([]string, len(names))
	for i, n := range names {
		ids[i] = EventID(n)
	}
	return ids
}

// Room builds fixture events for one room and keeps them in a MemStore.
type Room struct {
	ID    string
	Clock *Clock
	Store *event.MemStore
}

// NewRoom creates an empty fixture room.
func NewRoom(roomID string) *Room {
	return &Room{ID: roomID, Clock: NewClock(0), Store: event.NewMemStore()}
}

// Spec describes one fixture event. Name is the short id passed to EventID.
type Spec struct {
	Name     string
	Sender   string
	Kind     event.Kind
	StateKey *string
	Content  any
	Auth     []string
	Prev     []string
}

// Add builds the event, stamps it with the next timestamp and stores it.
// Auth and Prev hold short names.
func (r *Room) Add(s Spec) *event.Event {
	content := []byte(`{}`)
	if s.Content != nil {
		var err error
		if content, err = json.Marshal(s.Content); err != nil {
			panic(fmt.Sprintf("fixture %s: %v", s.Name, err))
		}
	}
	ev := &event.Event{
		ID:             EventID(s.Name),
		RoomID:         r.ID,
		Sender:         s.Sender,
		Kind:           s.Kind,
		StateKey:       s.StateKey,
		Content:        content,
		AuthEvents:     EventIDs(s.Auth...),
		PrevEvents:     EventIDs(s.Prev...),
		OriginServerTS: r.Clock.Next(),
	}
	r.Store.Add(ev)
	return ev
}

// Get returns a stored event by short name. It panics when absent.
func (r *Room) Get(name string) *event.Event {
	ev, err := r.Store.Event(context.Background(), EventID(name))
	if err != nil {
		panic("fixture: " + err.Error())
	}
	return ev
}

// State builds a StateMap from short names of stored state events.
func (r *Room) State(names ...string) event.StateMap {
	m := event.StateMap{}
	for _, n := range names {
		ev := r.Get(n)
		key, ok := ev.Key()
		if !ok {
			panic("fixture event is not state: " + n)
		}
		m[key] = ev.ID
	}
	return m
}

// Membership is member event content.
func Membership(m event.Membership) map[string]any {
	return map[string]any{"membership": string(m)}
}

// PowerLevels is power_levels content with the given user levels.
func PowerLevels(users map[string]int) map[string]any {
	return map[string]any{"users": users}
}

// JoinRules is join_rules content.
func JoinRules(rule event.JoinRule) map[string]any {
	return map[string]any{"join_rule": string(rule)}
}

// InitialRoom returns the standard fixture: alice creates a public room
// and is admin, then bob and charlie join.
//
//	CREATE <- IMA <- IPOWER <- IJR <- IMB <- IMC
func InitialRoom() *Room {
	r := NewRoom(RoomID)
	empty := event.StrPtr("")
	r.Add(Spec{Name: "CREATE", Sender: Alice, Kind: event.KindCreate, StateKey: empty,
		Content: map[string]any{"creator": Alice}})
	r.Add(Spec{Name: "IMA", Sender: Alice, Kind: event.KindMember, StateKey: event.StrPtr(Alice),
		Content: Membership(event.MembershipJoin), Auth: []string{"CREATE"}, Prev: []string{"CREATE"}})
	r.Add(Spec{Name: "IPOWER", Sender: Alice, Kind: event.KindPowerLevels, StateKey: empty,
		Content: PowerLevels(map[string]int{Alice: 100}), Auth: []string{"CREATE", "IMA"}, Prev: []string{"IMA"}})
	r.Add(Spec{Name: "IJR", Sender: Alice, Kind: event.KindJoinRules, StateKey: empty,
		Content: JoinRules(event.JoinRulePublic), Auth: []string{"CREATE", "IMA", "IPOWER"}, Prev: []string{"IPOWER"}})
	r.Add(Spec{Name: "IMB", Sender: Bob, Kind: event.KindMember, StateKey: event.StrPtr(Bob),
		Content: Membership(event.MembershipJoin), Auth: []string{"CREATE", "IJR", "IPOWER"}, Prev: []string{"IJR"}})
	r.Add(Spec{Name: "IMC", Sender: Charlie, Kind: event.KindMember, StateKey: event.StrPtr(Charlie),
		Content: Membership(event.MembershipJoin), Auth: []string{"CREATE", "IJR", "IPOWER"}, Prev: []string{"IMB"}})
	return r
}

// InitialState is the state after the standard fixture.
func (r *Room) InitialState() event.StateMap {
	return r.State("CREATE", "IMA", "IPOWER", "IJR", "IMB", "IMC")
}
