package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/roach88/roomstate/internal/auth"
	"github.com/roach88/roomstate/internal/event"
	"github.com/roach88/roomstate/internal/resolve"
	"github.com/roach88/roomstate/internal/roomversion"
	"github.com/roach88/roomstate/internal/testutil"
)

// Marker events bracketing every scenario. Both are state events in the
// (m.room.message, "dummy") slot sent by charlie.
const (
	StartEvent = "START"
	EndEvent   = "END"
)

var dummySlot = event.StateKey{Kind: event.KindMessage, Key: "dummy"}

// fixtureNames are the events present in every scenario.
var fixtureNames = []string{"CREATE", "IMA", "IPOWER", "IJR", "IMB", "IMC", StartEvent, EndEvent}

// fixtureChain links the fixture events, newest first.
var fixtureChain = []string{StartEvent, "IMC", "IMB", "IJR", "IPOWER", "IMA", "CREATE"}

// Replay is the outcome of growing a scenario DAG.
type Replay struct {
	// Store holds every replayed event with its derived auth and prev events.
	Store *event.MemStore

	// Trace lists the replayed events in order.
	Trace []Step

	// StateAt maps an event id to the state after it.
	StateAt map[string]event.StateMap
}

// Step records how one event was replayed.
type Step struct {
	Event string   `json:"event"`
	Prev  []string `json:"prev"`
	Auth  []string `json:"auth"`

	// Resolved is set when the state before the event came from resolving
	// several prev states.
	Resolved bool `json:"resolved,omitempty"`

	// Conflicted counts the conflicted slots of that resolution.
	Conflicted int `json:"conflicted,omitempty"`
}

// prototypes returns the payload of every event in the scenario, keyed by
// event id. Auth events, prev events and timestamps are filled in later.
func prototypes(s *Scenario) (map[string]*event.Event, error) {
	room := testutil.InitialRoom()
	out := map[string]*event.Event{}
	for _, name := range fixtureNames[:6] {
		out[testutil.EventID(name)] = room.Get(name).Clone()
	}
	for _, name := range []string{StartEvent, EndEvent} {
		out[testutil.EventID(name)] = &event.Event{
			ID:       testutil.EventID(name),
			RoomID:   testutil.RoomID,
			Sender:   testutil.Charlie,
			Kind:     dummySlot.Kind,
			StateKey: event.StrPtr(dummySlot.Key),
			Content:  json.RawMessage(`{}`),
		}
	}

	for _, spec := range s.Events {
		content := []byte(`{}`)
		if spec.Content != nil {
			var err error
			if content, err = json.Marshal(spec.Content); err != nil {
				return nil, fmt.Errorf("event %s: content: %w", spec.ID, err)
			}
		}
		id := testutil.EventID(spec.ID)
		out[id] = &event.Event{
			ID:       id,
			RoomID:   testutil.RoomID,
			Sender:   spec.Sender,
			Kind:     event.Kind(spec.Type),
			StateKey: event.StrPtr(*spec.StateKey),
			Content:  content,
		}
	}
	return out, nil
}

// buildGraph maps every event id to the ids of its prev events.
func buildGraph(s *Scenario, protos map[string]*event.Event) resolve.Graph {
	prevs := map[string]map[string]struct{}{}
	for id := range protos {
		prevs[id] = map[string]struct{}{}
	}
	chains := append([][]string{fixtureChain}, s.Edges...)
	for _, chain := range chains {
		for i := 0; i+1 < len(chain); i++ {
			a, b := testutil.EventID(chain[i]), testutil.EventID(chain[i+1])
			prevs[a][b] = struct{}{}
		}
	}

	g := make(resolve.Graph, len(prevs))
	for id, set := range prevs {
		ids := make([]string, 0, len(set))
		for p := range set {
			ids = append(ids, p)
		}
		sort.Strings(ids)
		g[id] = ids
	}
	return g
}

// Grow replays the scenario DAG.
//
// Events are visited in topological order, ties broken by smallest id, and
// stamped with increasing timestamps in that order. The auth events of each
// event are the slots auth.AuthTypes selects from the state before it.
// Events are not auth checked on the way in; only resolution decides what
// ends up in state.
func Grow(ctx context.Context, s *Scenario, rules roomversion.Rules, logger *slog.Logger) (*Replay, error) {
	protos, err := prototypes(s)
	if err != nil {
		return nil, err
	}
	g := buildGraph(s, protos)

	order, stuck := resolve.ReverseTopologicalPowerSort(g, func(string) resolve.SortKey {
		return resolve.SortKey{}
	})
	if len(stuck) > 0 {
		return nil, fmt.Errorf("edges form a cycle through %s", strings.Join(stuck, ", "))
	}

	store := event.NewMemStore()
	resolver := resolve.New(store, rules, resolve.WithLogger(logger))
	replay := &Replay{
		Store:   store,
		StateAt: make(map[string]event.StateMap, len(order)),
	}

	for i, id := range order {
		prevIDs := g[id]
		step := Step{Event: id, Prev: prevIDs}

		var before event.StateMap
		switch len(prevIDs) {
		case 0:
			before = event.StateMap{}
		case 1:
			before = replay.StateAt[prevIDs[0]].Clone()
		default:
			sets := make([]event.StateMap, len(prevIDs))
			for j, p := range prevIDs {
				sets[j] = replay.StateAt[p]
			}
			res, err := resolver.Resolve(ctx, sets)
			if err != nil {
				return nil, fmt.Errorf("resolving state before %s: %w", id, err)
			}
			before = res.State
			step.Resolved = true
			step.Conflicted = res.ConflictedSlots
		}

		ev := protos[id].Clone()
		ev.PrevEvents = prevIDs
		ev.OriginServerTS = int64(i + 1)
		ev.Depth = int64(i + 1)
		if ev.AuthEvents, err = selectAuthEvents(rules.Auth, ev, before); err != nil {
			return nil, fmt.Errorf("event %s: %w", id, err)
		}
		step.Auth = ev.AuthEvents
		store.Add(ev)

		after := before.Clone()
		key, _ := ev.Key()
		after[key] = ev.ID
		replay.StateAt[id] = after
		replay.Trace = append(replay.Trace, step)

		logger.Debug("replayed event",
			"event_id", id,
			"prev", len(prevIDs),
			"auth", len(ev.AuthEvents),
			"resolved", step.Resolved,
		)
	}
	return replay, nil
}

// selectAuthEvents picks the auth events of ev from state, in the order
// auth.AuthTypes lists their slots.
func selectAuthEvents(rules roomversion.AuthRules, ev *event.Event, state event.StateMap) ([]string, error) {
	keys, err := auth.AuthTypes(rules, ev)
	if err != nil {
		return nil, err
	}
	ids := []string{}
	seen := map[string]bool{}
	for _, key := range keys {
		id, ok := state[key]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}

// EndState returns the state at END restricted to the slots listed in
// expected or changed since START. The dummy slot is only kept when
// expected names it.
func (r *Replay) EndState(expected event.StateMap) event.StateMap {
	start := r.StateAt[testutil.EventID(StartEvent)]
	out := event.StateMap{}
	for key, id := range r.StateAt[testutil.EventID(EndEvent)] {
		if _, ok := expected[key]; ok {
			out[key] = id
			continue
		}
		if start[key] != id && key != dummySlot {
			out[key] = id
		}
	}
	return out
}
