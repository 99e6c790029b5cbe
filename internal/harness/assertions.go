package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/roomstate/internal/event"
	"github.com/roach88/roomstate/internal/testutil"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
	Trace    []Step // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, step := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s prev=%v auth=%v\n",
				i+1, ShortName(step.Event), ShortNames(step.Prev), ShortNames(step.Auth))
		}
	}
	return buf.String()
}

// ShortName strips the fixture decoration from an event id ("$PA:foo" -> "PA").
func ShortName(id string) string {
	return strings.TrimSuffix(strings.TrimPrefix(id, "$"), ":foo")
}

// ShortNames maps ShortName over ids.
func ShortNames(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = ShortName(id)
	}
	return out
}

// expectedState builds the state map a final_state assertion names.
func expectedState(replay *Replay, names []string) (event.StateMap, error) {
	m := event.StateMap{}
	for _, name := range names {
		ev, ok := lookup(replay, name)
		if !ok {
			return nil, fmt.Errorf("event %s was never replayed", name)
		}
		key, _ := ev.Key()
		m[key] = ev.ID
	}
	return m, nil
}

func lookup(replay *Replay, name string) (*event.Event, bool) {
	ev, err := replay.Store.Event(context.Background(), testutil.EventID(name))
	if err != nil {
		return nil, false
	}
	return ev, true
}

// assertFinalState checks that the filtered END state holds exactly the
// named events.
func assertFinalState(replay *Replay, assertion Assertion) error {
	want, err := expectedState(replay, assertion.Events)
	if err != nil {
		return err
	}
	got := replay.EndState(want)
	if got.Equal(want) {
		return nil
	}
	return &AssertionError{
		Type:     AssertFinalState,
		Expected: FormatStateInline(want),
		Actual:   FormatStateInline(got),
		Trace:    replay.Trace,
	}
}

// assertStateContains checks that an event occupies its slot at END.
func assertStateContains(replay *Replay, assertion Assertion) error {
	ev, ok := lookup(replay, assertion.Event)
	if !ok {
		return fmt.Errorf("event %s was never replayed", assertion.Event)
	}
	key, _ := ev.Key()
	end := replay.StateAt[testutil.EventID(EndEvent)]
	if end[key] == ev.ID {
		return nil
	}
	actual := "empty"
	if id, ok := end[key]; ok {
		actual = ShortName(id)
	}
	return &AssertionError{
		Type:     AssertStateContains,
		Expected: fmt.Sprintf("%s holds %s", key, assertion.Event),
		Actual:   fmt.Sprintf("%s holds %s", key, actual),
		Trace:    replay.Trace,
	}
}

// assertStateAbsent checks that a slot is empty at END.
func assertStateAbsent(replay *Replay, assertion Assertion) error {
	key, err := event.ParseStateKey(assertion.Slot)
	if err != nil {
		return err
	}
	id, ok := replay.StateAt[testutil.EventID(EndEvent)][key]
	if !ok {
		return nil
	}
	return &AssertionError{
		Type:     AssertStateAbsent,
		Expected: fmt.Sprintf("%s is empty", key),
		Actual:   fmt.Sprintf("%s holds %s", key, ShortName(id)),
		Trace:    replay.Trace,
	}
}

// assertTraceOrder checks that events were replayed in the given relative
// order. They need not be consecutive.
func assertTraceOrder(replay *Replay, assertion Assertion) error {
	positions := make(map[string]int, len(replay.Trace))
	for i, step := range replay.Trace {
		positions[step.Event] = i + 1 // 1-indexed for readability
	}

	for i := 1; i < len(assertion.Events); i++ {
		prev, curr := assertion.Events[i-1], assertion.Events[i]
		pp, cp := positions[testutil.EventID(prev)], positions[testutil.EventID(curr)]
		if pp >= cp {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("events in order: %v", assertion.Events),
				Actual:   fmt.Sprintf("%s (pos %d) should be before %s (pos %d)", prev, pp, curr, cp),
				Trace:    replay.Trace,
			}
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the replay.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(replay *Replay, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertFinalState:
			err = assertFinalState(replay, assertion)
		case AssertStateContains:
			err = assertStateContains(replay, assertion)
		case AssertStateAbsent:
			err = assertStateAbsent(replay, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(replay, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
