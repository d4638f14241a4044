package resource

import (
	"context"
	"errors"
	"testing"

	"github.com/artpar/resrun/core/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listeners = logMethod + `
onPublish:
  "@listen": publish
  "@run": "log onPublish"
onDeploy:
  "@listen": "deploy.*"
  "@run": "log onDeploy"
idle:
  "@run": "log idle"
`

func TestEmit(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	env := testEnv(rec)
	base := mustCreate(t, env, def(t, listeners))

	silenced := mustCreate(t, env, map[string]any{
		"@import":   base,
		"onPublish": def(t, `{"@unlisten": publish}`),
	})
	sibling := mustCreate(t, env, map[string]any{"@import": base})
	relistened := mustCreate(t, env, map[string]any{
		"@import":   silenced,
		"onPublish": def(t, `{"@listen": publish}`),
	})

	tests := []struct {
		name  string
		r     *Resource
		event string
		count int
		want  []string
	}{
		{"base", base, "publish", 1, []string{"onPublish"}},
		{"unlistened", silenced, "publish", 0, nil},
		{"sibling unaffected", sibling, "publish", 1, []string{"onPublish"}},
		{"listening again", relistened, "publish", 1, []string{"onPublish"}},
		{"wildcard", silenced, "deploy.started", 1, []string{"onDeploy"}},
		{"no listener", base, "unknown", 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec.entries = nil
			count, err := tt.r.Emit(ctx, tt.event, Input{})
			require.NoError(t, err)
			if count != tt.count {
				t.Errorf("Emit(%q) = %d, want %d", tt.event, count, tt.count)
			}
			assert.Equal(t, tt.want, rec.entries)
		})
	}
}

func TestEmit_AncestorsFirst(t *testing.T) {
	rec := &recorder{}
	env := testEnv(rec)
	base := mustCreate(t, env, def(t, logMethod+`
first:
  "@listen": start
  "@run": "log first"
`))
	derived := mustCreate(t, env, map[string]any{
		"@import": base,
		"second":  def(t, `{"@listen": start, "@run": "log second"}`),
		"first":   def(t, `{"@run": 'log "first overridden"'}`),
	})

	count, err := derived.Emit(context.Background(), "start", Input{})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, []string{"first overridden", "second"}, rec.entries)
}

func TestEmit_Arguments(t *testing.T) {
	rec := &recorder{}
	r := mustCreate(t, testEnv(rec), def(t, logMethod+`
onPublish:
  "@listen": publish
  "@input":
    target: {"@position": 0}
  "@run": 'log "to ${arguments[0]}"'
`))

	_, err := r.Emit(context.Background(), "publish", NewInput([]any{"prod"}, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"to prod"}, rec.entries)
}

func TestEmit_AmbiguousListener(t *testing.T) {
	r := mustCreate(t, testEnv(&recorder{}), def(t, `
"@import":
  - m: {"@implementation": record, "@listen": x}
  - m: {"@implementation": echo}
`))

	_, err := r.Emit(context.Background(), "x", Input{})
	assert.True(t, errors.Is(err, errs.ErrAmbiguousProperty), "Emit() error = %v", err)

	count, err := r.Emit(context.Background(), "y", Input{})
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestBroadcast(t *testing.T) {
	rec := &recorder{}
	r := mustCreate(t, testEnv(rec), def(t, logMethod+`
port: 80
ping:
  "@listen": ping
  "@run": "log root"
child:
  log:
    "@implementation": record
    "@input":
      entry: {"@position": 0}
  ping:
    "@listen": ping
    "@run": "log child"
  grandchild:
    ping:
      "@listen": ping
      "@run": "log grandchild"
    log:
      "@implementation": record
      "@input":
        entry: {"@position": 0}
`))

	count, err := r.Broadcast(context.Background(), "ping", Input{})
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, []string{"root", "child", "grandchild"}, rec.entries)
}

func TestBroadcast_InheritedContainer(t *testing.T) {
	env := testEnv(nil)
	env.Natives = natives{
		"touch": func(ctx context.Context, call *Call) (any, error) {
			return nil, call.Receiver.Set(ctx, "seen", true)
		},
	}
	base := mustCreate(t, env, def(t, `
panel:
  onPing: {"@listen": ping, "@implementation": touch}
`))
	child := mustCreate(t, env, map[string]any{"@import": base})

	count, err := child.Broadcast(context.Background(), "ping", Input{})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	basePanel, err := base.GetChild("panel")
	require.NoError(t, err)
	if _, err := basePanel.Get("seen"); !errs.IsNotFound(err) {
		t.Errorf("base panel Get(seen) error = %v, want NotFoundError", err)
	}

	seen, err := child.Run(context.Background(), "panel seen", nil)
	require.NoError(t, err)
	assert.Equal(t, true, seen)
}
