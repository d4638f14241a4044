// Package memory provides in-memory implementations for testing and
// embedding.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/artpar/resrun/core/errs"
	"github.com/artpar/resrun/ports"
)

type pubKey struct {
	name, version string
}

type entry struct {
	pub ports.Publication
	seq uint64
}

// DefinitionStore is an in-memory implementation of ports.DefinitionStore.
type DefinitionStore struct {
	mu   sync.RWMutex
	pubs map[pubKey]entry
	seq  uint64
}

// NewDefinitionStore creates a new in-memory definition store.
func NewDefinitionStore() *DefinitionStore {
	return &DefinitionStore{
		pubs: make(map[pubKey]entry),
	}
}

// Put stores a publication, replacing one with the same name and version.
func (s *DefinitionStore) Put(ctx context.Context, p ports.Publication) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.PublishedAt.IsZero() {
		p.PublishedAt = time.Now()
	}
	p.Definition = append([]byte(nil), p.Definition...)
	s.seq++
	s.pubs[pubKey{p.Name, p.Version}] = entry{pub: p, seq: s.seq}
	return nil
}

// Get retrieves a publication. An empty version selects the most recently
// published version of name.
func (s *DefinitionStore) Get(ctx context.Context, name, version string) (ports.Publication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if version != "" {
		e, ok := s.pubs[pubKey{name, version}]
		if !ok {
			return ports.Publication{}, errs.New(errs.CodeNotFound, "no publication of %s@%s", name, version)
		}
		return clonePub(e.pub), nil
	}

	var latest *entry
	for k, e := range s.pubs {
		if k.name != name {
			continue
		}
		if latest == nil || newer(e, *latest) {
			e := e
			latest = &e
		}
	}
	if latest == nil {
		return ports.Publication{}, errs.New(errs.CodeNotFound, "no publication of %s", name)
	}
	return clonePub(latest.pub), nil
}

// List returns every publication ordered by name then publication time.
func (s *DefinitionStore) List(ctx context.Context) ([]ports.Publication, error) {
	s.mu.RLock()
	entries := make([]entry, 0, len(s.pubs))
	for _, e := range s.pubs {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].pub.Name != entries[j].pub.Name {
			return entries[i].pub.Name < entries[j].pub.Name
		}
		return newer(entries[j], entries[i])
	})

	out := make([]ports.Publication, len(entries))
	for i, e := range entries {
		out[i] = clonePub(e.pub)
	}
	return out, nil
}

// Delete removes a publication.
func (s *DefinitionStore) Delete(ctx context.Context, name, version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := pubKey{name, version}
	if _, ok := s.pubs[k]; !ok {
		return errs.New(errs.CodeNotFound, "no publication of %s@%s", name, version)
	}
	delete(s.pubs, k)
	return nil
}

// newer reports whether a was published after b. Equal times fall back to
// insertion order.
func newer(a, b entry) bool {
	if !a.pub.PublishedAt.Equal(b.pub.PublishedAt) {
		return a.pub.PublishedAt.After(b.pub.PublishedAt)
	}
	return a.seq > b.seq
}

func clonePub(p ports.Publication) ports.Publication {
	p.Definition = append([]byte(nil), p.Definition...)
	return p
}

// Ensure interface compliance.
var _ ports.DefinitionStore = (*DefinitionStore)(nil)
