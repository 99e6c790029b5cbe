// Package event defines the read-only event view the resolution engine works on.
//
// Events are immutable nodes of a room DAG. They reference each other only by
// id (auth_events, prev_events); every lookup goes through a Store, so the
// engine never holds owning pointers between events.
//
// Content is kept as raw JSON and parsed on demand with gjson. Accessors that
// the authorization rules depend on (membership, join rule, power levels,
// create fields, third-party invite keys) return a *MalformedError when the
// content does not have the expected shape.
//
// # Identity
//
// ReferenceHash derives a content-addressed id from the canonical JSON form of
// an event (RFC 8785 key ordering, NFC strings, integers only), and StateHash
// does the same for a resolved StateMap. Both use domain-separated SHA-256.
package event
