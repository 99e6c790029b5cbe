package resolve

import (
	"context"
	"errors"

	"github.com/roach88/roomstate/internal/event"
)

// fetcher memoizes store lookups for one resolution.
//
// A missing event is reported once as a diagnostic and then treated as
// absent. Any other store error is sticky: every later lookup returns nil
// and the resolution fails with a STORE_FAILURE error at the next stage
// boundary.
type fetcher struct {
	ctx     context.Context
	store   event.Store
	cache   map[string]*event.Event
	missing map[string]struct{}
	diags   *diagnostics
	err     error
}

func newFetcher(ctx context.Context, store event.Store, diags *diagnostics) *fetcher {
	return &fetcher{
		ctx:     ctx,
		store:   store,
		cache:   map[string]*event.Event{},
		missing: map[string]struct{}{},
		diags:   diags,
	}
}

// get returns the event or nil when it is unavailable.
func (f *fetcher) get(id string) *event.Event {
	if ev, ok := f.cache[id]; ok {
		return ev
	}
	if _, ok := f.missing[id]; ok || f.err != nil {
		return nil
	}
	if err := f.ctx.Err(); err != nil {
		f.err = err
		return nil
	}

	ev, err := f.store.Event(f.ctx, id)
	if errors.Is(err, event.ErrNotFound) || (err == nil && ev == nil) {
		f.missing[id] = struct{}{}
		f.diags.add(ErrCodeMissingEvent, id, "event not found in store")
		return nil
	}
	if err != nil {
		f.err = err
		return nil
	}
	f.cache[id] = ev
	return ev
}

// authGraph returns the auth edges between every event fetched so far.
func (f *fetcher) authGraph() Graph {
	g := make(Graph, len(f.cache))
	for id, ev := range f.cache {
		edges := make([]string, 0, len(ev.AuthEvents))
		for _, aid := range ev.AuthEvents {
			if _, ok := f.cache[aid]; ok {
				edges = append(edges, aid)
			}
		}
		g[id] = edges
	}
	return g
}
