package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/roomstate/internal/event"
)

// DefaultRoomVersion is used when a scenario does not name one.
const DefaultRoomVersion = "6"

// Scenario describes a room DAG grown on top of the standard fixture room
// and the state it must resolve to.
//
// Every event is replayed in topological order. The state before an event
// with several prev events is computed by resolving the states after each
// of them, so a scenario exercises state resolution at every fork.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// RoomVersion selects the rules. Defaults to DefaultRoomVersion, or to
	// the version passed to LoadScenarioWithVersion.
	RoomVersion string `yaml:"room_version,omitempty"`

	// Events are added to the fixture room. Their auth and prev events are
	// derived from the DAG, so only the payload is given.
	Events []EventSpec `yaml:"events"`

	// Edges lists chains of short event names, newest first. Each adjacent
	// pair (a, b) makes b a prev event of a.
	Edges [][]string `yaml:"edges"`

	// Assertions validate the replay.
	Assertions []Assertion `yaml:"assertions"`
}

// EventSpec is the payload of one scenario event.
type EventSpec struct {
	// ID is the short name ("PA"); the event id is "$PA:foo".
	ID       string         `yaml:"id"`
	Sender   string         `yaml:"sender"`
	Type     string         `yaml:"type"`
	StateKey *string        `yaml:"state_key"`
	Content  map[string]any `yaml:"content,omitempty"`
}

// Assertion validates the replay result.
type Assertion struct {
	// Type specifies the assertion type:
	// - "final_state": the state at END, restricted to slots that changed
	//   since START, holds exactly Events
	// - "state_contains": the state at END holds Event in its slot
	// - "state_absent": the state at END has no event in Slot
	// - "trace_order": Events were replayed in this relative order
	Type string `yaml:"type"`

	// Events are short names (used by final_state and trace_order).
	Events []string `yaml:"events,omitempty"`

	// Event is a short name (used by state_contains).
	Event string `yaml:"event,omitempty"`

	// Slot is "type|state_key" (used by state_absent).
	Slot string `yaml:"slot,omitempty"`
}

// Assertion type constants.
const (
	AssertFinalState    = "final_state"
	AssertStateContains = "state_contains"
	AssertStateAbsent   = "state_absent"
	AssertTraceOrder    = "trace_order"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithVersion(path, DefaultRoomVersion)
}

// LoadScenarioWithVersion reads a scenario file, using defaultVersion when
// the scenario does not name a room version.
func LoadScenarioWithVersion(path, defaultVersion string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return parseScenario(data, defaultVersion)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	return parseScenario(data, DefaultRoomVersion)
}

func parseScenario(data []byte, defaultVersion string) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.RoomVersion == "" {
		scenario.RoomVersion = defaultVersion
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.RoomVersion == "" {
		return fmt.Errorf("room_version is required")
	}

	known := map[string]bool{}
	for _, name := range fixtureNames {
		known[name] = true
	}
	for i, ev := range s.Events {
		if ev.ID == "" {
			return fmt.Errorf("events[%d]: id is required", i)
		}
		if known[ev.ID] {
			return fmt.Errorf("events[%d]: id %q is already used", i, ev.ID)
		}
		known[ev.ID] = true
		if !event.ValidUserID(ev.Sender) {
			return fmt.Errorf("events[%d]: sender %q is not a user id", i, ev.Sender)
		}
		if ev.Type == "" {
			return fmt.Errorf("events[%d]: type is required", i)
		}
		if ev.StateKey == nil {
			return fmt.Errorf("events[%d]: state_key is required", i)
		}
	}

	if len(s.Edges) == 0 {
		return fmt.Errorf("edges list is required and must be non-empty")
	}
	for i, chain := range s.Edges {
		if len(chain) < 2 {
			return fmt.Errorf("edges[%d]: a chain needs at least two events", i)
		}
		for _, name := range chain {
			if !known[name] {
				return fmt.Errorf("edges[%d]: unknown event %q", i, name)
			}
		}
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a, known); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateAssertion(a Assertion, known map[string]bool) error {
	switch a.Type {
	case AssertFinalState, AssertTraceOrder:
		if a.Type == AssertTraceOrder && len(a.Events) < 2 {
			return fmt.Errorf("%s needs at least two events", a.Type)
		}
		for _, name := range a.Events {
			if !known[name] {
				return fmt.Errorf("unknown event %q", name)
			}
		}
	case AssertStateContains:
		if !known[a.Event] {
			return fmt.Errorf("unknown event %q", a.Event)
		}
	case AssertStateAbsent:
		if _, err := event.ParseStateKey(a.Slot); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
