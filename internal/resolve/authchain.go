package resolve

import (
	"context"
	"io"
	"log/slog"
	"sort"

	"github.com/roach88/roomstate/internal/event"
)

// EventSet is a set of event ids.
type EventSet map[string]struct{}

// NewEventSet returns a set holding ids.
func NewEventSet(ids ...string) EventSet {
	s := make(EventSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s EventSet) Add(id string) {
	s[id] = struct{}{}
}

func (s EventSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the ids in ascending order.
func (s EventSet) Sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AuthChain returns every event reachable from ids through auth_events,
// including the inputs themselves. Events the store does not know are left
// out and reported as diagnostics. Loops are followed only once.
func AuthChain(ctx context.Context, store event.Store, ids []string) (EventSet, []Diagnostic, error) {
	diags := newDiagnostics(slog.New(slog.NewTextHandler(io.Discard, nil)))
	f := newFetcher(ctx, store, diags)
	chain := f.authChain(ids)
	if f.err != nil {
		return nil, nil, NewStoreError(f.err)
	}
	return chain, diags.sorted(), nil
}

func (f *fetcher) authChain(ids []string) EventSet {
	chain := EventSet{}
	stack := append([]string(nil), ids...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if chain.Has(id) {
			continue
		}
		ev := f.get(id)
		if ev == nil {
			continue
		}
		chain.Add(id)
		for _, aid := range ev.AuthEvents {
			if !chain.Has(aid) {
				stack = append(stack, aid)
			}
		}
	}
	return chain
}

// AuthDifference returns the events that are not in every chain: the union
// of the chains minus their intersection.
func AuthDifference(chains []EventSet) EventSet {
	counts := map[string]int{}
	for _, chain := range chains {
		for id := range chain {
			counts[id]++
		}
	}
	diff := EventSet{}
	for id, n := range counts {
		if n < len(chains) {
			diff.Add(id)
		}
	}
	return diff
}
