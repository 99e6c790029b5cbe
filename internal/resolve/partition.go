package resolve

import (
	"sort"

	"github.com/roach88/roomstate/internal/event"
)

// AbsentSlotPolicy decides how a slot missing from some branches is treated.
type AbsentSlotPolicy int

const (
	// AbsentSlotConflicts makes a slot unconflicted only if every branch
	// holds it with the same event. This is the Matrix definition and the
	// default.
	AbsentSlotConflicts AbsentSlotPolicy = iota

	// AbsentSlotIgnored compares a slot only across the branches that hold
	// it, so a branch without the slot places no constraint on it.
	AbsentSlotIgnored
)

func (p AbsentSlotPolicy) String() string {
	switch p {
	case AbsentSlotConflicts:
		return "conflicts"
	case AbsentSlotIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

// Partition splits stateSets into the unconflicted map and the conflicted
// candidates per slot. Candidate ids are distinct and sorted.
func Partition(stateSets []event.StateMap, policy AbsentSlotPolicy) (event.StateMap, map[event.StateKey][]string) {
	holders := map[event.StateKey]map[string]int{}
	for _, set := range stateSets {
		for key, id := range set {
			if holders[key] == nil {
				holders[key] = map[string]int{}
			}
			holders[key][id]++
		}
	}

	unconflicted := event.StateMap{}
	conflicted := map[event.StateKey][]string{}
	for key, ids := range holders {
		if len(ids) == 1 {
			for id, n := range ids {
				if n == len(stateSets) || policy == AbsentSlotIgnored {
					unconflicted[key] = id
				} else {
					conflicted[key] = []string{id}
				}
			}
			continue
		}
		candidates := make([]string, 0, len(ids))
		for id := range ids {
			candidates = append(candidates, id)
		}
		sort.Strings(candidates)
		conflicted[key] = candidates
	}
	return unconflicted, conflicted
}
