// Package resolve implements state resolution v2 for a room event graph.
//
// Given one StateMap per divergent branch, Resolve computes the single state
// every server holding the same events converges to:
//
//  1. Partition the branches into unconflicted and conflicted slots.
//  2. Build the full conflicted set: conflicted candidates, the auth
//     difference of the branches and, where the room version asks for it,
//     the conflicted subgraph.
//  3. Order the power events in it by reverse topological power ordering
//     and replay them through the authorization rules.
//  4. Order the remaining events along the mainline of the resolved
//     power_levels event and replay them on top.
//  5. Overlay the unconflicted slots.
//
// DETERMINISM:
//
// Every ordering is total. Sets are sorted before iteration and ties break
// on (power, origin_server_ts, event id). The order of the input branches
// never affects the result.
//
// ERRORS:
//
// Problems with individual events (missing from the store, cyclic auth
// chains, unparseable content) exclude the event and are reported as
// Diagnostics. Only caller bugs, unsupported room versions and store
// failures abort a resolution with an *Error.
//
// A Resolver holds no per-call state and may be shared between goroutines.
// A single resolution runs sequentially.
package resolve
