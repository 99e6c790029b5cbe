package event

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainEvent = "roomstate/event/v1"
	DomainState = "roomstate/state/v1"
)

// hashWithDomain computes SHA-256 with domain separation:
// SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) []byte {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return h.Sum(nil)
}

// referenceObject is the hashed form of an event. The id itself and the
// local rejection flag are excluded.
func referenceObject(ev *Event) (map[string]any, error) {
	content, err := decodeJSON(ev.Content)
	if err != nil {
		return nil, fmt.Errorf("content: %w", err)
	}
	obj := map[string]any{
		"room_id":          ev.RoomID,
		"sender":           ev.Sender,
		"type":             string(ev.Kind),
		"content":          content,
		"auth_events":      nonNil(ev.AuthEvents),
		"prev_events":      nonNil(ev.PrevEvents),
		"origin_server_ts": ev.OriginServerTS,
		"depth":            ev.Depth,
	}
	if ev.StateKey != nil {
		obj["state_key"] = *ev.StateKey
	}
	if ev.Redacts != "" {
		obj["redacts"] = ev.Redacts
	}
	return obj, nil
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// ReferenceHash computes the content-addressed id of an event:
// "$" + unpadded URL-safe base64 of the domain-separated SHA-256 of its
// canonical JSON. Two events share an id only if every hashed field matches.
func ReferenceHash(ev *Event) (string, error) {
	obj, err := referenceObject(ev)
	if err != nil {
		return "", fmt.Errorf("ReferenceHash: %w", err)
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("ReferenceHash: failed to marshal: %w", err)
	}
	return "$" + base64.RawURLEncoding.EncodeToString(hashWithDomain(DomainEvent, canonical)), nil
}

// MustReferenceHash is like ReferenceHash but panics on error.
// Use only in tests or when content is known to be valid.
func MustReferenceHash(ev *Event) string {
	id, err := ReferenceHash(ev)
	if err != nil {
		panic(err)
	}
	return id
}

// StateHash computes a stable hex digest of a StateMap, independent of map
// iteration order.
func StateHash(m StateMap) (string, error) {
	entries := make([]any, 0, len(m))
	for _, k := range m.Keys() {
		entries = append(entries, []any{string(k.Kind), k.Key, m[k]})
	}
	canonical, err := MarshalCanonical(entries)
	if err != nil {
		return "", fmt.Errorf("StateHash: failed to marshal: %w", err)
	}
	return hex.EncodeToString(hashWithDomain(DomainState, canonical)), nil
}
