package resolve

import (
	"context"
	"log/slog"

	"github.com/roach88/roomstate/internal/auth"
	"github.com/roach88/roomstate/internal/event"
	"github.com/roach88/roomstate/internal/roomversion"
)

// Resolver resolves room state for one room version against one store.
type Resolver struct {
	store    event.Store
	rules    roomversion.Rules
	logger   *slog.Logger
	verifier auth.InviteVerifier
	policy   AbsentSlotPolicy
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithInviteVerifier sets the verifier for third-party invites.
func WithInviteVerifier(v auth.InviteVerifier) Option {
	return func(r *Resolver) {
		r.verifier = v
	}
}

// WithAbsentSlotPolicy selects how slots missing from some branches are
// partitioned. The default is AbsentSlotConflicts.
func WithAbsentSlotPolicy(p AbsentSlotPolicy) Option {
	return func(r *Resolver) {
		r.policy = p
	}
}

// New creates a Resolver.
func New(store event.Store, rules roomversion.Rules, opts ...Option) *Resolver {
	r := &Resolver{
		store:    store,
		rules:    rules,
		logger:   slog.Default(),
		verifier: auth.DefaultInviteVerifier{},
		policy:   AbsentSlotConflicts,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rules returns the room version the resolver applies.
func (r *Resolver) Rules() roomversion.Rules {
	return r.rules
}

// Result is the outcome of one resolution.
type Result struct {
	// State is the resolved state.
	State event.StateMap

	// Diagnostics lists the events excluded because of missing events,
	// cyclic auth chains or malformed content.
	Diagnostics []Diagnostic

	// ConflictedSlots is the number of slots the branches disagreed on.
	ConflictedSlots int

	// FullConflictedSet is the sorted full conflicted set.
	FullConflictedSet []string

	// PowerOrder is the reverse topological power ordering that was replayed
	// first.
	PowerOrder []string

	// Mainline is the power_levels chain used for the second pass, root
	// first.
	Mainline []string

	// MainlineOrder is the order the remaining events were replayed in.
	MainlineOrder []string
}

// resolution is the per-call state of Resolve.
type resolution struct {
	rules    roomversion.Rules
	logger   *slog.Logger
	verifier auth.InviteVerifier
	f        *fetcher
	diags    *diagnostics
}

// Resolve computes the resolved state of stateSets.
//
// An empty input resolves to an empty state. Every event referenced by a
// StateMap must be a state event filling that slot; anything else is a
// contract violation.
//
// By default a slot missing from some branches is conflicted, as Matrix
// servers treat it. WithAbsentSlotPolicy(AbsentSlotIgnored) instead treats
// the missing slot as no constraint on that branch.
func (r *Resolver) Resolve(ctx context.Context, stateSets []event.StateMap) (*Result, error) {
	if !r.rules.Resolvable() {
		return nil, NewUnsupportedVersionError(r.rules.ID, int(r.rules.StateRes.Algorithm))
	}

	diags := newDiagnostics(r.logger)
	rs := &resolution{
		rules:    r.rules,
		logger:   r.logger,
		verifier: r.verifier,
		f:        newFetcher(ctx, r.store, diags),
		diags:    diags,
	}
	return rs.run(stateSets, r.policy)
}

func (rs *resolution) failed() error {
	if rs.f.err != nil {
		return NewStoreError(rs.f.err)
	}
	return nil
}

func (rs *resolution) finish(res *Result) (*Result, error) {
	if err := rs.failed(); err != nil {
		return nil, err
	}
	res.Diagnostics = rs.diags.sorted()
	rs.logger.Info("state resolution finished",
		"room_version", rs.rules.ID,
		"slots", len(res.State),
		"conflicted", res.ConflictedSlots,
		"diagnostics", len(res.Diagnostics),
	)
	return res, nil
}

func (rs *resolution) run(stateSets []event.StateMap, policy AbsentSlotPolicy) (*Result, error) {
	if err := rs.validate(stateSets); err != nil {
		return nil, err
	}
	if err := rs.failed(); err != nil {
		return nil, err
	}

	unconflicted, conflicted := Partition(stateSets, policy)
	rs.logger.Debug("partitioned state",
		"branches", len(stateSets),
		"unconflicted", len(unconflicted),
		"conflicted", len(conflicted),
	)
	res := &Result{ConflictedSlots: len(conflicted)}
	if len(conflicted) == 0 {
		res.State = unconflicted
		return rs.finish(res)
	}

	full := rs.fullConflictedSet(stateSets, conflicted)
	if err := rs.failed(); err != nil {
		return nil, err
	}
	res.FullConflictedSet = full.Sorted()
	rs.logger.Debug("full conflicted set", "events", len(full))

	powerOrder := rs.sortPowerEvents(full)
	if err := rs.failed(); err != nil {
		return nil, err
	}
	res.PowerOrder = powerOrder
	rs.logger.Debug("sorted power events", "events", len(powerOrder))

	initial := unconflicted
	if rs.rules.StateRes.BeginWithEmptyStateMap {
		initial = event.StateMap{}
	}
	partial := rs.iterativeAuthChecks(initial, powerOrder)

	sortedPower := NewEventSet(powerOrder...)
	var remaining []string
	for _, id := range full.Sorted() {
		if !sortedPower.Has(id) {
			remaining = append(remaining, id)
		}
	}

	plID := partial[event.StateKey{Kind: event.KindPowerLevels}]
	res.MainlineOrder, res.Mainline = rs.mainlineSort(remaining, plID)
	rs.logger.Debug("mainline sorted remaining events",
		"events", len(res.MainlineOrder),
		"mainline", len(res.Mainline),
	)

	resolved := rs.iterativeAuthChecks(partial, res.MainlineOrder)
	for key, id := range unconflicted {
		resolved[key] = id
	}
	res.State = resolved
	return rs.finish(res)
}

// validate checks that every referenced event fills the slot it is listed
// under. Unknown events are diagnostics, not contract violations.
func (rs *resolution) validate(stateSets []event.StateMap) error {
	for _, set := range stateSets {
		for _, key := range set.Keys() {
			id := set[key]
			ev := rs.f.get(id)
			if ev == nil {
				continue
			}
			evKey, ok := ev.Key()
			if !ok {
				return NewContractError(id, "state map slot %s references a non-state event", key)
			}
			if evKey != key {
				return NewContractError(id, "state map slot %s references an event for slot %s", key, evKey)
			}
		}
	}
	return nil
}

// fullConflictedSet is the union of the auth difference, the conflicted
// candidates and, when enabled, the conflicted subgraph. Events that cannot
// be fetched or that sit on an auth cycle are left out.
func (rs *resolution) fullConflictedSet(stateSets []event.StateMap, conflicted map[event.StateKey][]string) EventSet {
	chains := make([]EventSet, len(stateSets))
	for i, set := range stateSets {
		chains[i] = rs.f.authChain(set.IDs())
	}

	full := AuthDifference(chains)
	candidates := EventSet{}
	for _, ids := range conflicted {
		for _, id := range ids {
			candidates.Add(id)
			full.Add(id)
		}
	}
	if rs.rules.StateRes.ConsiderConflictedSubgraph {
		sub := rs.f.conflictedSubgraph(candidates)
		rs.logger.Debug("conflicted subgraph", "events", len(sub))
		for id := range sub {
			full.Add(id)
		}
	}

	for _, cycle := range FindCycles(rs.f.authGraph()) {
		for _, id := range cycle {
			rs.diags.add(ErrCodeCyclicAuthChain, id, "auth chain cycle through %d events", len(cycle))
			delete(full, id)
		}
	}

	for id := range full {
		if rs.f.get(id) == nil {
			delete(full, id)
		}
	}
	return full
}

// roomCreate returns the create event a room id derives from, or nil.
func (rs *resolution) roomCreate(ev *event.Event) *event.Event {
	id, ok := event.CreateEventIDForRoom(ev.RoomID)
	if !ok {
		return nil
	}
	return rs.f.get(id)
}
