package resource

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/artpar/resrun/core/errs"
	"github.com/artpar/resrun/core/value"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// natives is a map-backed NativeResolver.
type natives map[string]NativeFunc

func (n natives) Native(name string) (NativeFunc, bool) {
	fn, ok := n[name]
	return fn, ok
}

// mapLoader resolves references from a map of definitions.
type mapLoader map[string]any

func (m mapLoader) Load(ctx context.Context, ref, dir string) (Source, error) {
	def, ok := m[ref]
	if !ok {
		return Source{}, errs.New(errs.CodeNotFound, "no definition %q", ref)
	}
	return Source{Definition: def, Location: ref, Dir: dir}, nil
}

// recorder collects entries logged by the "record" native.
type recorder struct {
	entries []string
}

func (rec *recorder) natives() natives {
	return natives{
		"record": func(ctx context.Context, call *Call) (any, error) {
			entry := call.Arg("entry")
			if entry == nil {
				entry = call.Method.Key()
			}
			rec.entries = append(rec.entries, fmt.Sprint(entry))
			return entry, nil
		},
		"echo": func(ctx context.Context, call *Call) (any, error) {
			return value.Plain(call.Arguments), nil
		},
		"fail": func(ctx context.Context, call *Call) (any, error) {
			rec.entries = append(rec.entries, "fail")
			return nil, fmt.Errorf("failed on purpose")
		},
	}
}

func testEnv(rec *recorder) *Env {
	env := &Env{Logger: zerolog.Nop()}
	if rec != nil {
		env.Natives = rec.natives()
	}
	return env
}

// def decodes a YAML definition keeping mapping order.
func def(t *testing.T, src string) any {
	t.Helper()
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(src), &node); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	v, err := value.FromNode(&node)
	if err != nil {
		t.Fatalf("yaml: %v", err)
	}
	return v
}

func mustCreate(t *testing.T, env *Env, raw any) *Resource {
	t.Helper()
	r, err := Create(context.Background(), raw, WithEnv(env))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return r
}

func toJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	return string(data)
}

// logMethod is a method property appending its first argument to a recorder.
const logMethod = `
log:
  "@implementation": record
  "@input":
    entry: {"@position": 0}
`
