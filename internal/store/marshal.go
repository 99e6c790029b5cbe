package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/roomstate/internal/event"
)

// marshalContent validates event content and returns it as TEXT.
// Content is stored byte-for-byte: it is hashed by the event's origin, not
// by the store, and older room versions allow values canonical JSON rejects.
func marshalContent(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "{}", nil
	}
	if !json.Valid(raw) {
		return "", fmt.Errorf("marshal content: invalid JSON")
	}
	return string(raw), nil
}

// marshalStateMap converts a StateMap to canonical JSON TEXT keyed by
// "kind|state_key".
func marshalStateMap(m event.StateMap) (string, error) {
	obj := make(map[string]any, len(m))
	for k, id := range m {
		obj[k.String()] = id
	}
	data, err := event.MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("marshal state map: %w", err)
	}
	return string(data), nil
}

// unmarshalStateMap parses the TEXT produced by marshalStateMap.
func unmarshalStateMap(data string) (event.StateMap, error) {
	var obj map[string]string
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal state map: %w", err)
	}
	m := make(event.StateMap, len(obj))
	for k, id := range obj {
		key, err := event.ParseStateKey(k)
		if err != nil {
			return nil, fmt.Errorf("unmarshal state map: %w", err)
		}
		m[key] = id
	}
	return m, nil
}

// marshalNames converts a list of snapshot names to JSON TEXT.
func marshalNames(names []string) (string, error) {
	if names == nil {
		names = []string{}
	}
	data, err := json.Marshal(names)
	if err != nil {
		return "", fmt.Errorf("marshal names: %w", err)
	}
	return string(data), nil
}

func unmarshalNames(data string) ([]string, error) {
	var names []string
	if err := json.Unmarshal([]byte(data), &names); err != nil {
		return nil, fmt.Errorf("unmarshal names: %w", err)
	}
	return names, nil
}
