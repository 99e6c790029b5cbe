package resolve

// conflictedSubgraph returns the events lying on an auth path from one
// conflicted candidate to another. The candidates themselves are part of
// the full conflicted set already and are not repeated here unless another
// candidate reaches them.
func (f *fetcher) conflictedSubgraph(candidates EventSet) EventSet {
	// Strict ancestors of the candidates, with the edges walked.
	ancestors := EventSet{}
	children := map[string][]string{}
	var stack []string
	for _, id := range candidates.Sorted() {
		ev := f.get(id)
		if ev == nil {
			continue
		}
		for _, aid := range ev.AuthEvents {
			children[aid] = append(children[aid], id)
			stack = append(stack, aid)
		}
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if ancestors.Has(id) {
			continue
		}
		ev := f.get(id)
		if ev == nil {
			continue
		}
		ancestors.Add(id)
		for _, aid := range ev.AuthEvents {
			children[aid] = append(children[aid], id)
			if !ancestors.Has(aid) {
				stack = append(stack, aid)
			}
		}
	}

	// Events from which some candidate is reachable, walking edges backwards
	// from the candidates.
	reaches := EventSet{}
	stack = candidates.Sorted()
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if reaches.Has(id) {
			continue
		}
		reaches.Add(id)
		stack = append(stack, children[id]...)
	}

	sub := EventSet{}
	for id := range ancestors {
		if reaches.Has(id) {
			sub.Add(id)
		}
	}
	return sub
}
