// Package harness runs state resolution conformance scenarios.
//
// A scenario grows a room DAG on top of the standard fixture room (alice
// creates a public room and is admin, bob and charlie join). Every event is
// replayed in topological order. Wherever an event has more than one prev
// event, the state before it is the resolution of the states after each
// prev, so a scenario exercises the resolver at every fork.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: ban_vs_power_level
//	description: "A ban issued under a power change survives a fork"
//	room_version: "6"
//	events:
//	  - id: PA
//	    sender: "@alice:foo"
//	    type: m.room.power_levels
//	    state_key: ""
//	    content: { users: { "@alice:foo": 100, "@bob:foo": 50 } }
//	edges:
//	  - [END, MB, MA, PA, START]
//	  - [END, PA, PB]
//	assertions:
//	  - type: final_state
//	    events: [PA, MA, MB]
//
// Edges are chains written newest first. START and END are dummy message
// events charlie sends into the (m.room.message, "dummy") slot; START
// follows the fixture events and END closes the DAG.
//
// # Assertion Types
//
//   - final_state: the END state, restricted to slots changed since START,
//     holds exactly the named events
//   - state_contains: the END state holds the named event
//   - state_absent: the END state has nothing in the slot
//   - trace_order: the named events were replayed in this order
//
// # Deterministic Replay
//
// Ties in the topological order are broken by smallest event id and each
// event's timestamp is its position in that order, so replays and golden
// snapshots are identical across runs.
package harness
