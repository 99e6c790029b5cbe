package roomversion

import (
	"fmt"
	"sync"
)

// Registry resolves room version ids to rules. It starts with the built-in
// table and can be extended with custom versions, for example from a CUE
// file.
type Registry struct {
	mu     sync.RWMutex
	custom map[string]Rules
}

// NewRegistry returns a registry holding only the built-in versions.
func NewRegistry() *Registry {
	return &Registry{custom: map[string]Rules{}}
}

// Register adds a custom version. Ids already known to the registry are
// rejected.
func (r *Registry) Register(rules Rules) error {
	if rules.ID == "" {
		return fmt.Errorf("register room version: empty id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := builtin[rules.ID]; ok {
		return fmt.Errorf("register room version %q: shadows a built-in version", rules.ID)
	}
	if _, ok := r.custom[rules.ID]; ok {
		return fmt.Errorf("register room version %q: already registered", rules.ID)
	}
	r.custom[rules.ID] = rules
	return nil
}

// Lookup returns the rules for id, custom versions first.
func (r *Registry) Lookup(id string) (Rules, error) {
	r.mu.RLock()
	rules, ok := r.custom[id]
	r.mu.RUnlock()
	if ok {
		return rules, nil
	}
	return Lookup(id)
}

// Known returns every version id the registry resolves.
func (r *Registry) Known() []string {
	ids := Known()
	r.mu.RLock()
	for id := range r.custom {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sortVersionIDs(ids)
	return ids
}
