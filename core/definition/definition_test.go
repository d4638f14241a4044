package definition

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/artpar/resrun/core/errs"
	"github.com/artpar/resrun/core/resource"
	"github.com/artpar/resrun/core/value"
	"github.com/artpar/resrun/ports"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestParse_PreservesOrder(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"yaml", "zeta: 1\nalpha: 2\nmid: {b: 1, a: 2}\n"},
		{"json", `{"zeta": 1, "alpha": 2, "mid": {"b": 1, "a": 2}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, err := Parse([]byte(tt.data))
			require.NoError(t, err)
			m, ok := def.(*value.OrderedMap)
			require.True(t, ok, "Parse() = %T, want *value.OrderedMap", def)
			assert.Equal(t, []string{"zeta", "alpha", "mid"}, m.Keys())

			mid, _ := m.Get("mid")
			assert.Equal(t, []string{"b", "a"}, mid.(*value.OrderedMap).Keys())
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("a: [unterminated"))
	if !errors.Is(err, errs.ErrDefinition) {
		t.Errorf("Parse() error = %v, want DefinitionError", err)
	}
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "base.yaml"), "port: 80")
	writeFile(t, filepath.Join(dir, "api.json"), `{"port": 81}`)
	writeFile(t, filepath.Join(dir, "site", "resource.yml"), "port: 82")
	if err := os.MkdirAll(filepath.Join(dir, "empty"), 0o755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path string
		want string
	}{
		{"base.yaml", "base.yaml"},
		{"base", "base.yaml"},
		{"api", "api.json"},
		{"site", filepath.Join("site", "resource.yml")},
	}
	for _, tt := range tests {
		got, err := Resolve(filepath.Join(dir, tt.path))
		if err != nil {
			t.Errorf("Resolve(%s) error = %v", tt.path, err)
			continue
		}
		if got != filepath.Join(dir, tt.want) {
			t.Errorf("Resolve(%s) = %s, want %s", tt.path, got, tt.want)
		}
	}

	for _, missing := range []string{"nope", "empty"} {
		if _, err := Resolve(filepath.Join(dir, missing)); !errs.IsNotFound(err) {
			t.Errorf("Resolve(%s) error = %v, want NotFoundError", missing, err)
		}
	}
}

func TestParseDirAndGlob(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.yaml"), "x: 1")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")
	writeFile(t, filepath.Join(dir, "nested", "b.json"), `{"y": 2}`)
	writeFile(t, filepath.Join(dir, "nested", "deep", "c.yml"), "z: 3")

	sources, err := ParseDir(dir)
	require.NoError(t, err)
	assert.Len(t, sources, 3)

	sources, err = ParseGlob(filepath.Join(dir, "**", "*.y*ml"))
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, filepath.Join(dir, "a.yaml"), sources[0].Location)
	assert.Equal(t, filepath.Join(dir, "nested", "deep"), sources[1].Dir)

	sources, err = ParsePaths([]string{filepath.Join(dir, "a.yaml"), dir})
	require.NoError(t, err)
	assert.Len(t, sources, 3, "duplicates are parsed once")

	_, err = ParsePaths([]string{filepath.Join(dir, "missing.yaml")})
	assert.True(t, errs.IsNotFound(err), "ParsePaths() error = %v", err)
}

func TestFileLoader_RelativeImports(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "lib", "base.yaml"), "port: 80\nhost: localhost\n")
	writeFile(t, filepath.Join(dir, "lib", "server.yaml"), `"@import": ./base`+"\nport: 8080\n")
	writeFile(t, filepath.Join(dir, "app.yaml"), `"@import": lib/server`+"\n")

	env := &resource.Env{Loader: NewFileLoader(zerolog.Nop()), Logger: zerolog.Nop()}
	r, err := resource.Load(context.Background(), "app", resource.WithEnv(env), resource.WithDir(dir))
	require.NoError(t, err)

	port, err := r.Get("port")
	require.NoError(t, err)
	assert.Equal(t, 8080.0, port)
	host, err := r.Get("host")
	require.NoError(t, err)
	assert.Equal(t, "localhost", host)
	assert.Equal(t, filepath.Join(dir, "app.yaml"), r.Location())
}

func TestFileLoader_Cache(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "base.yaml")
	writeFile(t, path, "port: 80")

	l := NewFileLoader(zerolog.Nop())
	ctx := context.Background()

	src, err := l.Load(ctx, "base", dir)
	require.NoError(t, err)
	assert.True(t, l.Cached(path))

	writeFile(t, path, "port: 90")
	again, err := l.Load(ctx, "base", dir)
	require.NoError(t, err)
	assert.Equal(t, toJSON(t, src.Definition), toJSON(t, again.Definition), "served from cache")

	l.Invalidate(path)
	fresh, err := l.Load(ctx, "base", dir)
	require.NoError(t, err)
	assert.Equal(t, `{"port":90}`, toJSON(t, fresh.Definition))
}

func TestFileLoader_Watch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "base.yaml")
	writeFile(t, path, "port: 80")

	l := NewFileLoader(zerolog.Nop())
	defer l.Stop()

	changed := make(chan string, 4)
	l.OnChange(func(p string) { changed <- p })

	_, err := l.Load(context.Background(), path, "")
	require.NoError(t, err)
	require.NoError(t, l.Watch())

	writeFile(t, path, "port: 90")

	select {
	case p := <-changed:
		assert.Equal(t, path, p)
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification")
	}
	assert.False(t, l.Cached(path))
}

type fakeStore map[string]ports.Publication

func (s fakeStore) Put(ctx context.Context, p ports.Publication) error {
	s[p.Name] = p
	return nil
}

func (s fakeStore) Get(ctx context.Context, name, version string) (ports.Publication, error) {
	p, ok := s[name]
	if !ok || (version != "" && p.Version != version) {
		return ports.Publication{}, errs.New(errs.CodeNotFound, "no publication %s@%s", name, version)
	}
	return p, nil
}

func (s fakeStore) List(ctx context.Context) ([]ports.Publication, error) { return nil, nil }

func (s fakeStore) Delete(ctx context.Context, name, version string) error { return nil }

func TestChain_FallsBackToStore(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "local.yaml"), "port: 80")

	store := fakeStore{"acme/deployer": {Name: "acme/deployer", Version: "1.0.0", Definition: []byte(`{"target": "prod"}`)}}
	chain := Chain{NewFileLoader(zerolog.Nop()), StoreLoader{Store: store}}
	ctx := context.Background()

	src, err := chain.Load(ctx, "local", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "local.yaml"), src.Location)

	src, err = chain.Load(ctx, "acme/deployer@1.0.0", dir)
	require.NoError(t, err)
	assert.Equal(t, "acme/deployer@1.0.0", src.Location)
	assert.Equal(t, `{"target":"prod"}`, toJSON(t, src.Definition))

	_, err = chain.Load(ctx, "acme/deployer@2.0.0", dir)
	assert.True(t, errs.IsNotFound(err), "unknown version: %v", err)

	_, err = chain.Load(ctx, "./missing", dir)
	assert.True(t, errs.IsNotFound(err), "missing file: %v", err)
}

func TestChain_StopsOnOtherErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "broken.yaml"), "a: [unterminated")

	store := fakeStore{"broken": {Name: "broken", Definition: []byte(`{}`)}}
	chain := Chain{NewFileLoader(zerolog.Nop()), StoreLoader{Store: store}}

	_, err := chain.Load(context.Background(), "broken", dir)
	if !errors.Is(err, errs.ErrDefinition) {
		t.Errorf("Load() error = %v, want DefinitionError", err)
	}
}

func toJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	return string(data)
}
