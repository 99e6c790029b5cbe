package resolve

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/roomstate/internal/event"
	"github.com/roach88/roomstate/internal/roomversion"
	"github.com/roach88/roomstate/internal/testutil"
)

var discard = testutil.DiscardLogger()

func newResolver(store event.Store, version string, opts ...Option) *Resolver {
	return New(store, roomversion.MustLookup(version), append([]Option{WithLogger(discard)}, opts...)...)
}

func resolveOK(t *testing.T, r *Resolver, sets ...event.StateMap) *Result {
	t.Helper()
	res, err := r.Resolve(context.Background(), sets)
	require.NoError(t, err)
	return res
}

func member(name string) event.StateKey {
	return event.StateKey{Kind: event.KindMember, Key: name}
}

var plKey = event.StateKey{Kind: event.KindPowerLevels}

// with returns a copy of base with extra events placed in their slots.
func with(r *testutil.Room, base event.StateMap, names ...string) event.StateMap {
	m := base.Clone()
	for k, v := range r.State(names...) {
		m[k] = v
	}
	return m
}

// shuffled returns n distinct-seeded permutations of sets.
func shuffled(sets []event.StateMap, n int) [][]event.StateMap {
	rng := rand.New(rand.NewSource(42))
	out := make([][]event.StateMap, n)
	for i := range out {
		perm := append([]event.StateMap(nil), sets...)
		rng.Shuffle(len(perm), func(a, b int) { perm[a], perm[b] = perm[b], perm[a] })
		out[i] = perm
	}
	return out
}

// failingStore fails lookups of one id with err.
type failingStore struct {
	event.Store
	failOn string
	err    error
}

func (s failingStore) Event(ctx context.Context, id string) (*event.Event, error) {
	if id == s.failOn {
		return nil, s.err
	}
	return s.Store.Event(ctx, id)
}

var errDisk = errors.New("disk unavailable")

func hasDiagnostic(diags []Diagnostic, code ErrorCode, eventID string) bool {
	for _, d := range diags {
		if d.Code == code && d.EventID == eventID {
			return true
		}
	}
	return false
}
