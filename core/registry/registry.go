// Package registry manages top-level resource registration and name
// conflict detection. Resources are registered under their name and every
// alias; no two resources may claim the same identifier.
package registry

import (
	"fmt"
	"strings"
	"sync"

	"github.com/artpar/resrun/core/resource"
)

// Registry holds registered top-level resources in registration order.
type Registry struct {
	mu sync.RWMutex

	// resources by name
	resources map[string]*resource.Resource

	// names and aliases to the owning resource name
	claims map[string]string

	// registration order
	order []string
}

// New creates a new registry.
func New() *Registry {
	return &Registry{
		resources: make(map[string]*resource.Resource),
		claims:    make(map[string]string),
	}
}

// Register registers a named resource under its name and aliases.
// Returns a *ConflictError if any identifier is already claimed.
func (r *Registry) Register(res *resource.Resource) error {
	name := res.Name()
	if name == "" {
		return fmt.Errorf("cannot register an unnamed resource")
	}
	if err := resource.ValidateName(name); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ids := append([]string{name}, res.Meta().Aliases...)
	var conflicts []Conflict
	for _, id := range ids {
		if owner, exists := r.claims[id]; exists {
			conflicts = append(conflicts, Conflict{Identifier: id, Existing: owner, Incoming: name})
		}
	}
	if len(conflicts) > 0 {
		return &ConflictError{Conflicts: conflicts}
	}

	r.resources[name] = res
	for _, id := range ids {
		r.claims[id] = name
	}
	r.order = append(r.order, name)
	return nil
}

// Unregister removes a resource and releases its identifiers.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.resources[name]; !exists {
		return fmt.Errorf("resource %q not registered", name)
	}

	for id, owner := range r.claims {
		if owner == name {
			delete(r.claims, id)
		}
	}
	delete(r.resources, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Get returns a registered resource by name or alias.
func (r *Registry) Get(id string) (*resource.Resource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.claims[id]
	if !ok {
		return nil, false
	}
	return r.resources[name], true
}

// List returns all registered resources in registration order.
func (r *Registry) List() []*resource.Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*resource.Resource, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.resources[name])
	}
	return out
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// Conflict is one identifier claimed twice.
type Conflict struct {
	Identifier string
	Existing   string
	Incoming   string
}

func (c Conflict) Error() string {
	if c.Identifier == c.Existing {
		return fmt.Sprintf("%q already registered", c.Identifier)
	}
	return fmt.Sprintf("%q already claimed by resource %q", c.Identifier, c.Existing)
}

// ConflictError represents one or more identifier conflicts.
type ConflictError struct {
	Conflicts []Conflict
}

// Error returns the conflict error message.
func (e *ConflictError) Error() string {
	var msgs []string
	for _, c := range e.Conflicts {
		msgs = append(msgs, c.Error())
	}
	return fmt.Sprintf("name conflicts detected:\n  - %s", strings.Join(msgs, "\n  - "))
}

// HasConflicts returns true if there are any conflicts.
func (e *ConflictError) HasConflicts() bool {
	return len(e.Conflicts) > 0
}
