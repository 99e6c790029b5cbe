// Package roomversion holds the per-version rule records that select which
// variant of the authorization and state resolution algorithms apply.
//
// Each room version is a plain data record. The built-in table is constructed
// once and handed out by value, so callers can never mutate it.
package roomversion

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// AuthRules are the optional behaviours of the authorization rules.
type AuthRules struct {
	// SpecialCaseAliases applies the m.room.aliases rule (v1-v5).
	SpecialCaseAliases bool
	// SpecialCaseRedaction applies the m.room.redaction rule (v1-v2).
	SpecialCaseRedaction bool
	// StrictCanonicalJSON forbids floats and out-of-range integers in signed
	// JSON (v6+). Signature and hash checks happen before events reach the
	// engine, so the flag is reported but not enforced here. Power levels
	// are parsed as integers in every version.
	StrictCanonicalJSON bool
	// LimitNotificationsPowerLevels checks "notifications" changes (v6+).
	LimitNotificationsPowerLevels bool
	// Knocking enables the knock membership and join rule (v7+).
	Knocking bool
	// RestrictedJoinRule enables the restricted join rule (v8+).
	RestrictedJoinRule bool
	// KnockRestrictedJoinRule enables knock_restricted (v10+).
	KnockRestrictedJoinRule bool
	// IntegerPowerLevels rejects string power levels (v10+).
	IntegerPowerLevels bool
	// UseRoomCreateSender takes the creator from the create sender instead
	// of content.creator (v11+).
	UseRoomCreateSender bool
	// ExplicitlyPrivilegeRoomCreators gives creators infinite power (v12).
	ExplicitlyPrivilegeRoomCreators bool
	// AdditionalRoomCreators honours content.additional_creators (v12).
	AdditionalRoomCreators bool
	// RoomCreateEventIDAsRoomID derives the room id from the create event id
	// and drops the create event from auth_events (v12).
	RoomCreateEventIDAsRoomID bool
}

// Algorithm identifies a state resolution algorithm.
type Algorithm int

const (
	AlgorithmV1 Algorithm = 1
	AlgorithmV2 Algorithm = 2
)

// StateResRules are the optional behaviours of state resolution.
type StateResRules struct {
	Algorithm Algorithm
	// BeginWithEmptyStateMap starts the power-event pass from an empty map
	// instead of the unconflicted state (v12).
	BeginWithEmptyStateMap bool
	// ConsiderConflictedSubgraph adds the conflicted state subgraph to the
	// full conflicted set (v12).
	ConsiderConflictedSubgraph bool
}

// Rules describes one room version.
type Rules struct {
	ID       string
	Stable   bool
	Auth     AuthRules
	StateRes StateResRules
}

// ErrUnsupported is returned for room versions the engine cannot resolve.
var ErrUnsupported = errors.New("unsupported room version")

var (
	stateResV20 = StateResRules{Algorithm: AlgorithmV2}
	stateResV21 = StateResRules{Algorithm: AlgorithmV2, BeginWithEmptyStateMap: true, ConsiderConflictedSubgraph: true}
)

// builtin is the immutable version table, keyed by version id.
var builtin = buildTable()

func buildTable() map[string]Rules {
	v1 := Rules{
		ID:       "1",
		Stable:   true,
		Auth:     AuthRules{SpecialCaseAliases: true, SpecialCaseRedaction: true},
		StateRes: StateResRules{Algorithm: AlgorithmV1},
	}

	v2 := v1
	v2.ID = "2"
	v2.StateRes = stateResV20

	v3 := v2
	v3.ID = "3"
	v3.Auth.SpecialCaseRedaction = false

	v4 := v3
	v4.ID = "4"

	v5 := v4
	v5.ID = "5"

	v6 := v5
	v6.ID = "6"
	v6.Auth.SpecialCaseAliases = false
	v6.Auth.StrictCanonicalJSON = true
	v6.Auth.LimitNotificationsPowerLevels = true

	v7 := v6
	v7.ID = "7"
	v7.Auth.Knocking = true

	v8 := v7
	v8.ID = "8"
	v8.Auth.RestrictedJoinRule = true

	v9 := v8
	v9.ID = "9"

	v10 := v9
	v10.ID = "10"
	v10.Auth.KnockRestrictedJoinRule = true
	v10.Auth.IntegerPowerLevels = true

	v11 := v10
	v11.ID = "11"
	v11.Auth.UseRoomCreateSender = true

	v12 := v11
	v12.ID = "12"
	v12.Auth.ExplicitlyPrivilegeRoomCreators = true
	v12.Auth.AdditionalRoomCreators = true
	v12.Auth.RoomCreateEventIDAsRoomID = true
	v12.StateRes = stateResV21

	table := map[string]Rules{}
	for _, r := range []Rules{v1, v2, v3, v4, v5, v6, v7, v8, v9, v10, v11, v12} {
		table[r.ID] = r
	}
	return table
}

// Lookup returns the built-in rules for a room version id.
func Lookup(id string) (Rules, error) {
	r, ok := builtin[id]
	if !ok {
		return Rules{}, fmt.Errorf("%w: %q", ErrUnsupported, id)
	}
	return r, nil
}

// MustLookup is like Lookup but panics on error.
// Use only in tests or with a known version id.
func MustLookup(id string) Rules {
	r, err := Lookup(id)
	if err != nil {
		panic(err)
	}
	return r
}

// Known returns the built-in version ids in numeric order.
func Known() []string {
	ids := make([]string, 0, len(builtin))
	for id := range builtin {
		ids = append(ids, id)
	}
	sortVersionIDs(ids)
	return ids
}

// Resolvable reports whether the rules select an algorithm this engine
// implements.
func (r Rules) Resolvable() bool {
	return r.StateRes.Algorithm == AlgorithmV2
}

// sortVersionIDs orders numeric ids numerically and everything else after
// them, lexicographically.
func sortVersionIDs(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		a, aErr := strconv.Atoi(ids[i])
		b, bErr := strconv.Atoi(ids[j])
		switch {
		case aErr == nil && bErr == nil:
			return a < b
		case aErr == nil:
			return true
		case bErr == nil:
			return false
		default:
			return ids[i] < ids[j]
		}
	})
}
