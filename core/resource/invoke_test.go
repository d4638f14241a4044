package resource

import (
	"context"
	"errors"
	"testing"

	"github.com/artpar/resrun/core/errs"
	"github.com/artpar/resrun/core/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvoke_HookOrder(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	env := testEnv(rec)

	base := mustCreate(t, env, def(t, logMethod+`
deploy:
  "@before": "log A.before"
  "@run": "log run"
  "@after": "log A.after"
`))
	derived := mustCreate(t, env, map[string]any{
		"@import": base,
		"deploy": def(t, `{"@before": "log D.before", "@after": "log D.after"}`),
	})

	_, err := derived.Run(ctx, "deploy", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"A.before", "D.before", "run", "D.after", "A.after"}, rec.entries)

	rec.entries = nil
	_, err = base.Run(ctx, "deploy", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"A.before", "run", "A.after"}, rec.entries, "the base is unaffected")
}

func TestInvoke_MostSpecificBody(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	env := testEnv(rec)

	base := mustCreate(t, env, def(t, logMethod+`
deploy:
  "@run": "log base"
`))
	derived := mustCreate(t, env, map[string]any{
		"@import": base,
		"deploy":  def(t, `{"@run": "log derived"}`),
	})

	_, err := derived.Run(ctx, "deploy", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"derived"}, rec.entries)
}

func TestInvoke_Failures(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{
			name: "before hook aborts",
			body: `{"@before": "fail", "@run": "log run", "@after": "log after"}`,
			want: []string{"fail"},
		},
		{
			name: "body aborts after hooks",
			body: `{"@run": "fail", "@after": "log after"}`,
			want: []string{"fail"},
		},
		{
			name: "chained expression aborts",
			body: `{"@run": "log first, fail, log after"}`,
			want: []string{"first", "fail"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			r := mustCreate(t, testEnv(rec), map[string]any{
				"log":    def(t, `{"@implementation": record, "@input": {entry: {"@position": 0}}}`),
				"fail":   def(t, `{"@implementation": fail}`),
				"deploy": def(t, tt.body),
			})
			_, err := r.Run(context.Background(), "deploy", nil)
			require.Error(t, err)
			assert.Equal(t, tt.want, rec.entries)
		})
	}
}

const echoMethods = `
collect:
  "@implementation": echo
  "@input":
    first: {"@position": 0}
    rest: {"@isVariadic": true}
one:
  "@implementation": echo
  "@input":
    x: {"@position": 0}
configure:
  "@implementation": echo
  "@input":
    name: {"@position": 0}
    extra: {"@isSubInput": true}
scale:
  "@implementation": echo
  "@input":
    factor: {"@type": number, "@position": 0}
    verbose: {"@aliases": v, "@value": false}
greet:
  "@implementation": echo
  "@input":
    who: {"@position": 0, "@default": world}
`

func TestInvoke_Binding(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want map[string]any
	}{
		{"variadic empty", "collect a", map[string]any{"first": "a", "rest": []any{}}},
		{"variadic one", "collect a b", map[string]any{"first": "a", "rest": []any{"b"}}},
		{"variadic many", "collect a b c", map[string]any{"first": "a", "rest": []any{"b", "c"}}},
		{"named instead of positional", "one --x=7", map[string]any{"x": "7"}},
		{"sub-input bag", "configure site --color=red --size 3", map[string]any{
			"name":  "site",
			"extra": map[string]any{"color": "red", "size": "3"},
		}},
		{"empty sub-input bag", "configure site", map[string]any{"name": "site", "extra": map[string]any{}}},
		{"coercion and defaults", "scale 2.5", map[string]any{"factor": 2.5, "verbose": false}},
		{"flag", "scale 2 --verbose", map[string]any{"factor": 2.0, "verbose": true}},
		{"alias", "scale 2 -v", map[string]any{"factor": 2.0, "verbose": true}},
		{"negated flag", "scale 2 --no-verbose", map[string]any{"factor": 2.0, "verbose": false}},
		{"parsed flag value", "scale 2 --verbose=yes", map[string]any{"factor": 2.0, "verbose": true}},
		{"default", "greet", map[string]any{"who": "world"}},
		{"default overridden", "greet Ada", map[string]any{"who": "Ada"}},
	}

	r := mustCreate(t, testEnv(&recorder{}), def(t, echoMethods))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Run(context.Background(), tt.src, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInvoke_BindingErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
	}{
		{"too many positionals", "one a b", errs.ErrArity},
		{"given twice", "one a --x=b", errs.ErrArity},
		{"unknown option", "one a --y=b", errs.ErrUnknownParameter},
		{"unparsable number", "scale abc", errs.ErrParse},
		{"unparsable boolean", "scale 1 --verbose=maybe", errs.ErrParse},
	}

	r := mustCreate(t, testEnv(&recorder{}), def(t, echoMethods))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Run(context.Background(), tt.src, nil)
			if !errors.Is(err, tt.want) {
				t.Errorf("Run(%q) error = %v, want %v", tt.src, err, tt.want)
			}
		})
	}
}

func TestInvoke_Macro(t *testing.T) {
	env := testEnv(nil)
	env.Natives = natives{
		"raw": func(ctx context.Context, call *Call) (any, error) {
			return []any{value.Plain(call.Input.Arguments), value.Plain(call.Input.Options), call.Arguments.Len()}, nil
		},
	}
	r := mustCreate(t, env, def(t, `
wrap:
  "@type": macro
  "@implementation": raw
  "@input":
    x: {"@position": 0}
`))

	got, err := r.Run(context.Background(), "wrap a b --flag=1", nil)
	require.NoError(t, err)
	assert.Equal(t, []any{[]any{"a", "b"}, map[string]any{"flag": "1"}, 0}, got)
}

func TestInvoke_Placeholders(t *testing.T) {
	rec := &recorder{}
	env := testEnv(rec)
	env.Config = map[string]any{"stage": "prod"}
	env.Environ = map[string]string{"USER": "ada"}
	r := mustCreate(t, env, def(t, logMethod+`
greet:
  "@input":
    who: {"@position": 0}
  "@run": 'log "hello ${arguments[0]} on ${config.stage} as ${env.USER}"'
`))

	got, err := r.Run(context.Background(), "greet Manu", nil)
	require.NoError(t, err)
	assert.Equal(t, "hello Manu on prod as ada", got)
	assert.Equal(t, []string{"hello Manu on prod as ada"}, rec.entries)

	got, err = r.Run(context.Background(), "greet ${arguments[0]}", []any{"Bob"})
	require.NoError(t, err)
	assert.Equal(t, "hello Bob on prod as ada", got)
}

func TestInvoke_Errors(t *testing.T) {
	ctx := context.Background()
	r := mustCreate(t, testEnv(nil), def(t, `
port: 80
missing: {"@implementation": nowhere}
`))

	port, err := r.GetChild("port")
	require.NoError(t, err)
	_, err = port.Invoke(ctx, Input{})
	assert.True(t, errors.Is(err, errs.ErrTypeMismatch), "invoking a number: %v", err)

	_, err = r.Run(ctx, "missing", nil)
	assert.True(t, errors.Is(err, errs.ErrNotFound), "unregistered implementation: %v", err)
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	r := mustCreate(t, testEnv(rec), def(t, `
port: 80
server:
  host: localhost
  log:
    "@implementation": record
    "@input":
      entry: {"@position": 0}
`))

	tests := []struct {
		name string
		in   Input
		want any
		err  error
	}{
		{name: "value", in: NewInput([]any{"port"}, nil), want: 80.0},
		{name: "nested value", in: NewInput([]any{"server", "host"}, nil), want: "localhost"},
		{name: "nested method", in: NewInput([]any{"server", "log", "hi"}, nil), want: "hi"},
		{name: "missing", in: NewInput([]any{"nope"}, nil), err: errs.ErrNotFound},
		{name: "options on a value", in: NewInput([]any{"port"}, map[string]any{"x": true}), err: errs.ErrUnknownParameter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Dispatch(ctx, tt.in)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Errorf("Dispatch() error = %v, want %v", err, tt.err)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
