package runtime

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/artpar/resrun/core/errs"
	"github.com/artpar/resrun/core/registry"
	"github.com/artpar/resrun/core/resource"
	"github.com/artpar/resrun/core/value"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func newTestRuntime(out *bytes.Buffer) *Runtime {
	return New(Config{
		Name:    "resrun",
		Version: "1.2.0",
		Values:  map[string]any{"stage": "prod"},
		Environ: map[string]string{"USER": "ada"},
		Output:  out,
		Logger:  zerolog.Nop(),
	})
}

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

func mustCreate(t *testing.T, r *Runtime, src string) *resource.Resource {
	t.Helper()
	res, err := r.Create(context.Background(), def(t, src), "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return res
}

const sayMacro = `
say: {"@type": macro, "@implementation": print}
`

func TestNew(t *testing.T) {
	r := newTestRuntime(&bytes.Buffer{})
	if r.Registry() == nil || r.Events() == nil || r.Functions() == nil {
		t.Fatal("New() left collaborators uninitialized")
	}
	for _, name := range []string{FuncPrint, FuncEmit, FuncBroadcast, FuncGet, FuncSet} {
		if !r.Functions().Has(name) {
			t.Errorf("builtin %q not registered", name)
		}
	}
	if r.Env().RuntimeName != "resrun" || r.Env().RuntimeVersion != "1.2.0" {
		t.Errorf("Env() runtime = %s@%s, want resrun@1.2.0", r.Env().RuntimeName, r.Env().RuntimeVersion)
	}
}

func TestExecute_Print(t *testing.T) {
	out := &bytes.Buffer{}
	r := newTestRuntime(out)
	res := mustCreate(t, r, sayMacro+`
greet:
  "@input": {who: {"@position": 0}}
  "@run": 'say hello ${arguments[0]} on ${config.stage} as ${env.USER}'
`)

	got, err := r.Execute(context.Background(), res, "greet Manu", nil)
	require.NoError(t, err)
	assert.Equal(t, "hello Manu on prod as ada", got)
	assert.Equal(t, "hello Manu on prod as ada\n", out.String())
}

func TestPublish_RegistrationOrder(t *testing.T) {
	out := &bytes.Buffer{}
	r := newTestRuntime(out)
	listener := sayMacro + `
onDeploy:
  "@listen": deploy
  "@input": {version: {"@position": 0}}
  "@run": 'say ${arguments[0]}'
`
	for _, name := range []string{"site", "api"} {
		res := mustCreate(t, r, `"@name": `+name+"\n"+listener)
		require.NoError(t, r.Register(res))
	}
	other := mustCreate(t, r, `"@name": quiet`+"\n"+sayMacro)
	require.NoError(t, r.Register(other))

	require.NoError(t, r.Publish(context.Background(), "test", "deploy", resource.NewInput([]any{"v2"}, nil)))
	assert.Equal(t, "v2\nv2\n", out.String())

	out.Reset()
	require.NoError(t, r.Publish(context.Background(), "test", "unrelated", resource.Input{}))
	assert.Empty(t, out.String())
}

func TestPublish_SkipsUnregistered(t *testing.T) {
	out := &bytes.Buffer{}
	r := newTestRuntime(out)
	res := mustCreate(t, r, `"@name": site`+sayMacro+`
onDeploy: {"@listen": deploy, "@run": "say deployed"}
`)
	require.NoError(t, r.Register(res))
	require.NoError(t, r.Registry().Unregister("site"))

	require.NoError(t, r.Publish(context.Background(), "test", "deploy", resource.Input{}))
	assert.Empty(t, out.String())
}

func TestRegister_Conflict(t *testing.T) {
	r := newTestRuntime(&bytes.Buffer{})
	require.NoError(t, r.Register(mustCreate(t, r, `{"@name": site}`)))

	err := r.Register(mustCreate(t, r, `{"@name": web, "@aliases": [site]}`))
	var conflict *registry.ConflictError
	if !errors.As(err, &conflict) {
		t.Errorf("Register() error = %v, want *registry.ConflictError", err)
	}

	if _, err := r.Get("missing"); !errs.IsNotFound(err) {
		t.Errorf("Get() error = %v, want NotFoundError", err)
	}
}

func TestBuiltins_GetSetEmit(t *testing.T) {
	out := &bytes.Buffer{}
	r := newTestRuntime(out)
	res := mustCreate(t, r, sayMacro+`
count: 0
set: {"@type": macro, "@implementation": set}
get: {"@type": macro, "@implementation": get}
emit: {"@type": macro, "@implementation": emit}
onPing: {"@listen": ping, "@run": "say pong"}
`)
	ctx := context.Background()

	got, err := r.Execute(ctx, res, "set count 5", nil)
	require.NoError(t, err)
	assert.Equal(t, 5.0, got)

	got, err = r.Execute(ctx, res, "get count", nil)
	require.NoError(t, err)
	assert.Equal(t, 5.0, got)

	_, err = r.Execute(ctx, res, "set count many", nil)
	assert.True(t, errors.Is(err, errs.ErrParse), "set with a non-number: %v", err)

	got, err = r.Execute(ctx, res, "emit ping", nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)
	assert.Equal(t, "pong\n", out.String())

	_, err = r.Execute(ctx, res, "emit", nil)
	assert.True(t, errors.Is(err, errs.ErrArity), "emit without event: %v", err)
}

func TestBuiltins_SetShadowsInheritedContainers(t *testing.T) {
	r := newTestRuntime(&bytes.Buffer{})
	base := mustCreate(t, r, `
settings:
  color: blue
  set: {"@type": macro, "@implementation": set}
  theme:
    size: 1
    set: {"@type": macro, "@implementation": set}
`)
	ctx := context.Background()
	child, err := r.Create(ctx, map[string]any{"@import": base}, "")
	require.NoError(t, err)
	sibling, err := r.Create(ctx, map[string]any{"@import": base}, "")
	require.NoError(t, err)

	_, err = r.Execute(ctx, child, "settings set color red", nil)
	require.NoError(t, err)
	_, err = r.Execute(ctx, child, "settings theme set size 3", nil)
	require.NoError(t, err)

	tests := []struct {
		name  string
		res   *resource.Resource
		color any
		size  any
	}{
		{"child", child, "red", 3.0},
		{"base", base, "blue", 1.0},
		{"sibling", sibling, "blue", 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			color, err := r.Execute(ctx, tt.res, "settings color", nil)
			require.NoError(t, err)
			assert.Equal(t, tt.color, color)
			size, err := r.Execute(ctx, tt.res, "settings theme size", nil)
			require.NoError(t, err)
			assert.Equal(t, tt.size, size)
		})
	}

	assert.Equal(t, []string{"settings"}, child.OwnKeys())
	settings, err := child.GetChild("settings")
	require.NoError(t, err)
	assert.Equal(t, []string{"color", "theme"}, settings.OwnKeys())
}

func TestBuiltins_Broadcast(t *testing.T) {
	out := &bytes.Buffer{}
	r := newTestRuntime(out)
	listener := mustCreate(t, r, `"@name": listener`+sayMacro+`
onReady: {"@listen": "app.*", "@run": "say ready"}
`)
	require.NoError(t, r.Register(listener))
	sender := mustCreate(t, r, `
broadcast: {"@type": macro, "@implementation": broadcast}
`)

	_, err := r.Execute(context.Background(), sender, "broadcast app.ready", nil)
	require.NoError(t, err)
	assert.Equal(t, "ready\n", out.String())
}

func TestRuntimeRequirement(t *testing.T) {
	r := newTestRuntime(&bytes.Buffer{})
	ctx := context.Background()

	_, err := r.Create(ctx, map[string]any{"@runtime": "resrun@^1.0.0"}, "")
	assert.NoError(t, err)

	_, err = r.Create(ctx, map[string]any{"@runtime": "resrun@>=2"}, "")
	assert.True(t, errors.Is(err, errs.ErrDefinition), "incompatible version: %v", err)

	_, err = r.Create(ctx, map[string]any{"@runtime": "other@1.0.0"}, "")
	assert.True(t, errors.Is(err, errs.ErrDefinition), "other runtime: %v", err)
}

func TestLoadAll(t *testing.T) {
	r := newTestRuntime(&bytes.Buffer{})
	sources := []resource.Source{
		{Definition: def(t, `{"@name": site, port: 80}`)},
		{Definition: def(t, `{port: 81}`)},
	}

	loaded, err := r.LoadAll(context.Background(), sources)
	require.NoError(t, err)
	assert.Len(t, loaded, 2)
	assert.Equal(t, []string{"site"}, r.Registry().Names())

	_, err = r.LoadAll(context.Background(), sources[:1])
	var conflict *registry.ConflictError
	assert.True(t, errors.As(err, &conflict), "LoadAll() twice: %v", err)
}
