// Package store provides SQLite-backed durable storage for room events.
//
// The store holds:
//   - Events: the room DAG, with auth and prev references kept as ordered edges
//   - State snapshots: named StateMaps, typically one per divergent branch
//   - Resolutions: recorded resolver outputs with a content hash of the state
//
// *Store implements event.Store, so a resolver can read straight from disk.
// Event returns an error wrapping event.ErrNotFound for unknown ids.
//
// # Deterministic Listings
//
// Every listing query orders on stable columns and ends with
// id COLLATE BINARY, so two stores holding the same data list it the same
// way regardless of insertion order.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
