package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/artpar/resrun/core/errs"
	"github.com/artpar/resrun/ports"
)

// DefinitionStore implements ports.DefinitionStore using SQLite.
type DefinitionStore struct {
	db *DB
}

// NewDefinitionStore creates a new SQLite definition store.
func NewDefinitionStore(db *DB) *DefinitionStore {
	return &DefinitionStore{db: db}
}

// Put stores a publication, replacing one with the same name and version.
// A zero PublishedAt is set to the current time.
func (s *DefinitionStore) Put(ctx context.Context, p ports.Publication) error {
	if p.PublishedAt.IsZero() {
		p.PublishedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO publications (name, version, definition, published_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (name, version) DO UPDATE SET
			definition = excluded.definition,
			published_at = excluded.published_at
	`, p.Name, p.Version, p.Definition, p.PublishedAt.UTC())
	return err
}

// Get retrieves a publication. An empty version selects the most recently
// published version of name.
func (s *DefinitionStore) Get(ctx context.Context, name, version string) (ports.Publication, error) {
	var row *sql.Row
	if version == "" {
		row = s.db.QueryRowContext(ctx, `
			SELECT name, version, definition, published_at
			FROM publications
			WHERE name = ?
			ORDER BY published_at DESC, rowid DESC
			LIMIT 1
		`, name)
	} else {
		row = s.db.QueryRowContext(ctx, `
			SELECT name, version, definition, published_at
			FROM publications
			WHERE name = ? AND version = ?
		`, name, version)
	}

	p, err := scanPublication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.Publication{}, errs.New(errs.CodeNotFound, "no publication of %s", ref(name, version))
	}
	return p, err
}

// List returns every publication ordered by name then publication time.
func (s *DefinitionStore) List(ctx context.Context) ([]ports.Publication, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, version, definition, published_at
		FROM publications
		ORDER BY name ASC, published_at ASC, rowid ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ports.Publication
	for rows.Next() {
		p, err := scanPublication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Delete removes a publication.
func (s *DefinitionStore) Delete(ctx context.Context, name, version string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM publications WHERE name = ? AND version = ?
	`, name, version)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errs.New(errs.CodeNotFound, "no publication of %s", ref(name, version))
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPublication(row scanner) (ports.Publication, error) {
	var p ports.Publication
	if err := row.Scan(&p.Name, &p.Version, &p.Definition, &p.PublishedAt); err != nil {
		return ports.Publication{}, err
	}
	return p, nil
}

func ref(name, version string) string {
	if version == "" {
		return name
	}
	return name + "@" + version
}

// Ensure interface compliance.
var _ ports.DefinitionStore = (*DefinitionStore)(nil)
