package resolve

import (
	"container/heap"
	"sort"

	"github.com/roach88/roomstate/internal/auth"
	"github.com/roach88/roomstate/internal/event"
)

// IsPowerEvent reports whether ev can change who holds authority in the
// room: the create, power_levels and join_rules events, and a leave or ban
// issued against another user.
func IsPowerEvent(ev *event.Event) bool {
	if ev.StateKey == nil {
		return false
	}
	switch ev.Kind {
	case event.KindCreate, event.KindPowerLevels, event.KindJoinRules:
		return *ev.StateKey == ""
	case event.KindMember:
		m, err := ev.Membership()
		if err != nil {
			return false
		}
		if m == event.MembershipLeave || m == event.MembershipBan {
			return ev.Sender != *ev.StateKey
		}
	}
	return false
}

// SortKey is the tie-break data of one event in the power ordering.
type SortKey struct {
	Power int64
	TS    int64
}

type powerItem struct {
	id  string
	key SortKey
}

// powerHeap is a min-heap on (power DESC, ts ASC, id ASC).
type powerHeap []powerItem

func (h powerHeap) Len() int { return len(h) }

func (h powerHeap) Less(i, j int) bool {
	if h[i].key.Power != h[j].key.Power {
		return h[i].key.Power > h[j].key.Power
	}
	if h[i].key.TS != h[j].key.TS {
		return h[i].key.TS < h[j].key.TS
	}
	return h[i].id < h[j].id
}

func (h powerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *powerHeap) Push(x any) { *h = append(*h, x.(powerItem)) }

func (h *powerHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// ReverseTopologicalPowerSort orders the nodes of g so that every event
// comes after the events it cites, choosing among the ready events the one
// with the highest power, then the earliest timestamp, then the smallest
// id (Kahn's algorithm).
//
// Nodes that can never become ready because they sit on or behind a cycle
// are returned in stuck, sorted.
func ReverseTopologicalPowerSort(g Graph, keyOf func(id string) SortKey) (sorted, stuck []string) {
	outdegree := make(map[string]int, len(g))
	dependents := map[string][]string{}
	for node, edges := range g {
		seen := map[string]struct{}{}
		for _, e := range edges {
			if _, dup := seen[e]; dup {
				continue
			}
			seen[e] = struct{}{}
			outdegree[node]++
			dependents[e] = append(dependents[e], node)
		}
	}

	h := &powerHeap{}
	for node := range g {
		if outdegree[node] == 0 {
			*h = append(*h, powerItem{id: node, key: keyOf(node)})
		}
	}
	heap.Init(h)

	for h.Len() > 0 {
		item := heap.Pop(h).(powerItem)
		sorted = append(sorted, item.id)
		for _, parent := range dependents[item.id] {
			outdegree[parent]--
			if outdegree[parent] == 0 {
				heap.Push(h, powerItem{id: parent, key: keyOf(parent)})
			}
		}
	}

	if len(sorted) < len(g) {
		done := NewEventSet(sorted...)
		for node := range g {
			if !done.Has(node) {
				stuck = append(stuck, node)
			}
		}
		sort.Strings(stuck)
	}
	return sorted, stuck
}

// powerGraph adds every power event and the events of its auth chain that
// belong to the full conflicted set. Edges point from an event to the auth
// events it cites within that set.
func (rs *resolution) powerGraph(powerEvents []string, full EventSet) Graph {
	g := Graph{}
	for _, start := range powerEvents {
		stack := []string{start}
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if _, ok := g[id]; ok {
				continue
			}
			g[id] = []string{}
			ev := rs.f.get(id)
			if ev == nil {
				continue
			}
			for _, aid := range ev.AuthEvents {
				if !full.Has(aid) {
					continue
				}
				g[id] = append(g[id], aid)
				if _, ok := g[aid]; !ok {
					stack = append(stack, aid)
				}
			}
		}
	}
	return g
}

// senderPower returns the level of ev's sender according to the
// power_levels and create events ev cites. Without a create event the
// users_default of the cited power_levels event applies.
func (rs *resolution) senderPower(ev *event.Event) int64 {
	var plEvent, create *event.Event
	for _, aid := range ev.AuthEvents {
		ae := rs.f.get(aid)
		if ae == nil {
			continue
		}
		switch {
		case plEvent == nil && ae.Is(event.KindPowerLevels, ""):
			plEvent = ae
		case create == nil && ae.Is(event.KindCreate, ""):
			create = ae
		}
		if plEvent != nil && create != nil {
			break
		}
	}
	if rs.rules.Auth.RoomCreateEventIDAsRoomID {
		create = rs.roomCreate(ev)
	}

	var pl *event.PowerLevels
	if plEvent != nil {
		var err error
		pl, err = event.ParsePowerLevels(plEvent, rs.rules.Auth.IntegerPowerLevels)
		if err != nil {
			rs.diags.add(ErrCodeMalformedContent, plEvent.ID, "%v", err)
			return event.FieldUsersDefault.Default()
		}
	}

	if create != nil {
		creators, err := auth.Creators(rs.rules.Auth, create)
		if err == nil {
			return auth.UserPowerLevel(rs.rules.Auth, pl, creators, ev.Sender)
		}
		rs.diags.add(ErrCodeMalformedContent, create.ID, "%v", err)
	}
	return pl.FieldOrDefault(event.FieldUsersDefault)
}

// sortPowerEvents returns the power events of full, enlarged by their auth
// ancestry within full, in reverse topological power order.
func (rs *resolution) sortPowerEvents(full EventSet) []string {
	var powerEvents []string
	for _, id := range full.Sorted() {
		if ev := rs.f.get(id); ev != nil && IsPowerEvent(ev) {
			powerEvents = append(powerEvents, id)
		}
	}

	g := rs.powerGraph(powerEvents, full)

	keys := make(map[string]SortKey, len(g))
	for id := range g {
		ev := rs.f.get(id)
		if ev == nil {
			continue
		}
		keys[id] = SortKey{Power: rs.senderPower(ev), TS: ev.OriginServerTS}
	}

	sorted, stuck := ReverseTopologicalPowerSort(g, func(id string) SortKey { return keys[id] })
	for _, id := range stuck {
		rs.diags.add(ErrCodeCyclicAuthChain, id, "power event cannot be ordered after its auth events")
	}
	return sorted
}
