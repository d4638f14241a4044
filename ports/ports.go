// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"time"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// Publication is a published resource definition.
type Publication struct {
	// Name is the resource name, optionally scoped ("scope/name").
	Name string

	// Version is the published version; empty when unversioned.
	Version string

	// Definition is the canonical form as JSON.
	Definition []byte

	// PublishedAt is when the publication was stored.
	PublishedAt time.Time
}

// DefinitionStore persists published definitions.
type DefinitionStore interface {
	// Put stores a publication, replacing one with the same name and version.
	Put(ctx context.Context, p Publication) error

	// Get retrieves a publication. An empty version selects the latest
	// publication of name. Missing publications yield an error matching
	// errs.ErrNotFound.
	Get(ctx context.Context, name, version string) (Publication, error)

	// List returns every publication, ordered by name then publication time.
	List(ctx context.Context) ([]Publication, error)

	// Delete removes a publication.
	Delete(ctx context.Context, name, version string) error
}
