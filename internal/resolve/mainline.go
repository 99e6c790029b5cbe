package resolve

import (
	"sort"

	"github.com/roach88/roomstate/internal/event"
)

// mainline returns the chain of power_levels events starting at plID and
// following each one's cited power_levels event, root first.
func (rs *resolution) mainline(plID string) []string {
	var chain []string
	seen := EventSet{}
	for id := plID; id != "" && !seen.Has(id); {
		seen.Add(id)
		ev := rs.f.get(id)
		if ev == nil {
			break
		}
		chain = append(chain, id)
		id = rs.citedPowerLevels(ev)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// citedPowerLevels returns the id of the power_levels event in ev's
// auth_events, or "" when there is none or it cannot be fetched.
func (rs *resolution) citedPowerLevels(ev *event.Event) string {
	for _, aid := range ev.AuthEvents {
		if ae := rs.f.get(aid); ae != nil && ae.Is(event.KindPowerLevels, "") {
			return aid
		}
	}
	return ""
}

// mainlinePosition walks from ev through cited power_levels events until
// one is on the mainline and returns its index. Events that never reach
// the mainline get position 0. ok is false when an auth event on the way is
// missing.
func (rs *resolution) mainlinePosition(ev *event.Event, positions map[string]int) (pos int, ok bool) {
	seen := EventSet{}
	for cur := ev; cur != nil && !seen.Has(cur.ID); {
		seen.Add(cur.ID)
		if p, on := positions[cur.ID]; on {
			return p, true
		}
		var next *event.Event
		for _, aid := range cur.AuthEvents {
			ae := rs.f.get(aid)
			if ae == nil {
				rs.diags.add(ErrCodeMissingEvent, ev.ID, "auth event %s is not available for mainline ordering", aid)
				return 0, false
			}
			if ae.Is(event.KindPowerLevels, "") {
				next = ae
				break
			}
		}
		cur = next
	}
	return 0, true
}

// mainlineSort orders ids by (mainline position, origin_server_ts, id)
// relative to the mainline of plID. Events whose position cannot be
// computed are dropped.
func (rs *resolution) mainlineSort(ids []string, plID string) (sorted, mainline []string) {
	if len(ids) == 0 {
		return nil, nil
	}
	mainline = rs.mainline(plID)
	positions := make(map[string]int, len(mainline))
	for i, id := range mainline {
		positions[id] = i
	}

	type entry struct {
		id  string
		pos int
		ts  int64
	}
	entries := make([]entry, 0, len(ids))
	for _, id := range ids {
		ev := rs.f.get(id)
		if ev == nil {
			continue
		}
		pos, ok := rs.mainlinePosition(ev, positions)
		if !ok {
			continue
		}
		entries = append(entries, entry{id: id, pos: pos, ts: ev.OriginServerTS})
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.pos != b.pos {
			return a.pos < b.pos
		}
		if a.ts != b.ts {
			return a.ts < b.ts
		}
		return a.id < b.id
	})

	sorted = make([]string, len(entries))
	for i, e := range entries {
		sorted[i] = e.id
	}
	return sorted, mainline
}
