package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/artpar/resrun/adapters/sqlite"
	"github.com/artpar/resrun/core/errs"
	"github.com/artpar/resrun/ports"
)

func setupTestDB(t *testing.T) *sqlite.DB {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "cache", "resrun.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestMigrate_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate error: %v", err)
	}
	if err := db.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck error: %v", err)
	}
}

func TestDefinitionStore_PutAndGet(t *testing.T) {
	store := sqlite.NewDefinitionStore(setupTestDB(t))
	ctx := context.Background()

	pub := ports.Publication{
		Name:        "acme/server",
		Version:     "1.0.0",
		Definition:  []byte(`{"port":8080}`),
		PublishedAt: baseTime,
	}
	if err := store.Put(ctx, pub); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	got, err := store.Get(ctx, "acme/server", "1.0.0")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Name != pub.Name || got.Version != pub.Version {
		t.Errorf("Get = %s@%s, want %s@%s", got.Name, got.Version, pub.Name, pub.Version)
	}
	if string(got.Definition) != string(pub.Definition) {
		t.Errorf("Definition = %s, want %s", got.Definition, pub.Definition)
	}
	if !got.PublishedAt.Equal(baseTime) {
		t.Errorf("PublishedAt = %v, want %v", got.PublishedAt, baseTime)
	}
}

func TestDefinitionStore_Latest(t *testing.T) {
	store := sqlite.NewDefinitionStore(setupTestDB(t))
	ctx := context.Background()

	for i, v := range []string{"1.0.0", "2.0.0", "1.5.0"} {
		err := store.Put(ctx, ports.Publication{
			Name:        "server",
			Version:     v,
			Definition:  []byte(`"` + v + `"`),
			PublishedAt: baseTime.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("Put(%s) error: %v", v, err)
		}
	}

	got, err := store.Get(ctx, "server", "")
	if err != nil {
		t.Fatalf("Get latest error: %v", err)
	}
	if got.Version != "1.5.0" {
		t.Errorf("latest version = %s, want 1.5.0", got.Version)
	}
}

func TestDefinitionStore_Replace(t *testing.T) {
	store := sqlite.NewDefinitionStore(setupTestDB(t))
	ctx := context.Background()

	store.Put(ctx, ports.Publication{Name: "app", Definition: []byte(`1`), PublishedAt: baseTime})
	store.Put(ctx, ports.Publication{Name: "app", Definition: []byte(`2`)})

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("List returned %d publications, want 1", len(list))
	}
	if string(list[0].Definition) != "2" {
		t.Errorf("Definition = %s, want 2", list[0].Definition)
	}
	if !list[0].PublishedAt.After(baseTime) {
		t.Errorf("PublishedAt = %v, want the time of the second Put", list[0].PublishedAt)
	}
}

func TestDefinitionStore_NotFound(t *testing.T) {
	store := sqlite.NewDefinitionStore(setupTestDB(t))
	ctx := context.Background()

	tests := []struct {
		name    string
		version string
	}{
		{"missing", ""},
		{"missing", "1.0.0"},
	}
	for _, tt := range tests {
		_, err := store.Get(ctx, tt.name, tt.version)
		if !errors.Is(err, errs.ErrNotFound) {
			t.Errorf("Get(%q, %q) error = %v, want NotFound", tt.name, tt.version, err)
		}
	}

	if err := store.Delete(ctx, "missing", ""); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("Delete error = %v, want NotFound", err)
	}
}

func TestDefinitionStore_ListAndDelete(t *testing.T) {
	store := sqlite.NewDefinitionStore(setupTestDB(t))
	ctx := context.Background()

	pubs := []ports.Publication{
		{Name: "b", Version: "1", Definition: []byte(`{}`), PublishedAt: baseTime},
		{Name: "a", Version: "2", Definition: []byte(`{}`), PublishedAt: baseTime.Add(time.Hour)},
		{Name: "a", Version: "1", Definition: []byte(`{}`), PublishedAt: baseTime},
	}
	for _, p := range pubs {
		if err := store.Put(ctx, p); err != nil {
			t.Fatalf("Put error: %v", err)
		}
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	var got []string
	for _, p := range list {
		got = append(got, p.Name+"@"+p.Version)
	}
	want := []string{"a@1", "a@2", "b@1"}
	if len(got) != len(want) {
		t.Fatalf("List = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	if err := store.Delete(ctx, "a", "2"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	latest, err := store.Get(ctx, "a", "")
	if err != nil {
		t.Fatalf("Get latest error: %v", err)
	}
	if latest.Version != "1" {
		t.Errorf("latest after Delete = %s, want 1", latest.Version)
	}
}
