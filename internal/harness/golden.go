package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/roomstate/internal/event"
)

// FormatState renders a state map one slot per line, sorted by slot:
//
//	m.room.member|@bob:foo	$MB:foo
func FormatState(m event.StateMap) string {
	var buf strings.Builder
	for _, key := range m.Keys() {
		fmt.Fprintf(&buf, "%s\t%s\n", key, m[key])
	}
	return buf.String()
}

// FormatStateInline renders a state map on one line using short names.
func FormatStateInline(m event.StateMap) string {
	parts := make([]string, 0, len(m))
	for _, key := range m.Keys() {
		parts = append(parts, fmt.Sprintf("%s=%s", key, ShortName(m[key])))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Snapshot renders the replay order and the changed END state of a result.
func Snapshot(scenario *Scenario, result *Result) []byte {
	version := scenario.RoomVersion
	if version == "" {
		version = DefaultRoomVersion
	}
	order := make([]string, len(result.Trace))
	for i, step := range result.Trace {
		order[i] = ShortName(step.Event)
	}

	var buf strings.Builder
	fmt.Fprintf(&buf, "scenario: %s\n", scenario.Name)
	fmt.Fprintf(&buf, "room_version: %s\n", version)
	fmt.Fprintf(&buf, "order: %s\n", strings.Join(order, " "))
	fmt.Fprintf(&buf, "resolutions: %d\n", result.Resolutions)
	buf.WriteString("state:\n")
	buf.WriteString(FormatState(result.State))
	return []byte(buf.String())
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario, result)
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, Snapshot(scenario, result))
}
