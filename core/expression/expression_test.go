package expression

import (
	"errors"
	"testing"

	"github.com/artpar/resrun/core/errs"
	"github.com/artpar/resrun/core/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func options(e *Expression) map[string]any {
	return value.Plain(e.Options).(map[string]any)
}

func TestParse_Tokenizing(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		wantArgs []any
		wantOpts map[string]any
	}{
		{"words", "deploy site", []any{"deploy", "site"}, map[string]any{}},
		{"single quotes", "say 'hello world'", []any{"say", "hello world"}, map[string]any{}},
		{"double quotes with escape", `say "a \"b\""`, []any{"say", `a "b"`}, map[string]any{}},
		{"backslash", `say a\ b`, []any{"say", "a b"}, map[string]any{}},
		{"option with equals", "deploy --stage=prod", []any{"deploy"}, map[string]any{"stage": "prod"}},
		{"option with next token", "deploy --stage prod", []any{"deploy"}, map[string]any{"stage": "prod"}},
		{"option implicit true", "deploy --force --stage=x", []any{"deploy"}, map[string]any{"force": true, "stage": "x"}},
		{"trailing option", "deploy --force", []any{"deploy"}, map[string]any{"force": true}},
		{"no prefix", "deploy --no-cache", []any{"deploy"}, map[string]any{"cache": false}},
		{"non prefix", "deploy --non-interactive", []any{"deploy"}, map[string]any{"interactive": false}},
		{"flag cluster", "ls -la", []any{"ls"}, map[string]any{"l": true, "a": true}},
		{"negative number", "add -3 4", []any{"add", "-3", "4"}, map[string]any{}},
		{"quoted dash", "echo '--x'", []any{"echo", "--x"}, map[string]any{}},
		{"empty quotes", "echo ''", []any{"echo", ""}, map[string]any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exprs, err := Parse(tt.src, "/tmp")
			require.NoError(t, err)
			require.Len(t, exprs, 1)
			assert.Equal(t, tt.wantArgs, exprs[0].Arguments)
			assert.Equal(t, tt.wantOpts, options(exprs[0]))
			assert.Equal(t, "/tmp", exprs[0].Dir)
		})
	}
}

func TestParse_CommaChaining(t *testing.T) {
	exprs, err := Parse("build --fast, test, deploy prod", "")
	require.NoError(t, err)
	require.Len(t, exprs, 3)

	assert.Equal(t, []any{"build"}, exprs[0].Arguments)
	assert.Equal(t, map[string]any{"fast": true}, options(exprs[0]))
	assert.Equal(t, []any{"test"}, exprs[1].Arguments)
	assert.Equal(t, []any{"deploy", "prod"}, exprs[2].Arguments)
}

func TestParse_CommaInsideWord(t *testing.T) {
	tests := []struct {
		src  string
		want [][]any
	}{
		{"log a,b", [][]any{{"log", "a,b"}}},
		{"log a,b, say c", [][]any{{"log", "a,b"}, {"say", "c"}}},
		{"log a , say c", [][]any{{"log", "a"}, {"say", "c"}}},
		{"log a,", [][]any{{"log", "a"}}},
		{"tag --names=x,y,\nsay done", [][]any{{"tag"}, {"say", "done"}}},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			exprs, err := Parse(tt.src, "")
			require.NoError(t, err)
			require.Len(t, exprs, len(tt.want))
			for i, e := range exprs {
				assert.Equal(t, tt.want[i], e.Arguments)
			}
		})
	}
}

func TestParse_QuotedCommaDoesNotSplit(t *testing.T) {
	exprs, err := Parse(`say "a, b"`, "")
	require.NoError(t, err)
	require.Len(t, exprs, 1)
	assert.Equal(t, []any{"say", "a, b"}, exprs[0].Arguments)
}

func TestParse_TokenList(t *testing.T) {
	exprs, err := Parse([]any{"deploy", "--stage", "prod", 3.0, ",", "notify"}, "")
	require.NoError(t, err)
	require.Len(t, exprs, 1)
	assert.Equal(t, []any{"deploy", 3.0, ",", "notify"}, exprs[0].Arguments)
	assert.Equal(t, map[string]any{"stage": "prod"}, options(exprs[0]))
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  any
		want error
	}{
		{"unterminated single quote", "say 'oops", errs.ErrParse},
		{"unterminated double quote", `say "oops`, errs.ErrParse},
		{"unterminated placeholder", "say ${arguments[0]", errs.ErrParse},
		{"unsupported source", 42, errs.ErrDefinition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src, "")
			if !errors.Is(err, tt.want) {
				t.Errorf("Parse(%v) error = %v, want %v", tt.src, err, tt.want)
			}
		})
	}
}

func TestResolve_Placeholders(t *testing.T) {
	vars := Variables{
		Arguments: []any{"first", 2.0},
		Config:    map[string]any{"stage": "prod", "aws": map[string]any{"region": "eu-west-1"}},
		Env:       map[string]string{"HOME": "/home/dev"},
	}

	tests := []struct {
		name string
		src  string
		want any
	}{
		{"argument index", "${arguments[0]}", "first"},
		{"bare index", "${1}", 2.0},
		{"out of range", "${5}", nil},
		{"config path", "${config.aws.region}", "eu-west-1"},
		{"missing config path", "${config.nope.deeper}", nil},
		{"env", "${env.HOME}", "/home/dev"},
		{"embedded", "dir=${env.HOME}/x", "dir=/home/dev/x"},
		{"embedded number", "n${1}", "n2"},
		{"expr fallback", "${config.stage + '-' + arguments[0]}", "prod-first"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exprs, err := Parse([]any{tt.src}, "")
			require.NoError(t, err)
			args, _, err := exprs[0].Resolve(vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, args[0])
		})
	}
}

func TestResolve_Options(t *testing.T) {
	exprs, err := Parse(`deploy --stage=${config.stage} --target "${arguments[0]}"`, "")
	require.NoError(t, err)

	args, opts, err := exprs[0].Resolve(Variables{
		Arguments: []any{"web"},
		Config:    map[string]any{"stage": "dev"},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"deploy"}, args)
	assert.Equal(t, map[string]any{"stage": "dev", "target": "web"}, value.Plain(opts))
}

func TestResolve_LeavesExpressionUntouched(t *testing.T) {
	exprs, err := Parse("say ${0}", "")
	require.NoError(t, err)

	if _, _, err := exprs[0].Resolve(Variables{Arguments: []any{"a"}}); err != nil {
		t.Fatal(err)
	}
	if _, ok := exprs[0].Arguments[1].(*Template); !ok {
		t.Errorf("Arguments[1] = %#v, want unresolved template", exprs[0].Arguments[1])
	}
}

func TestFormat(t *testing.T) {
	exprs, err := Parse(`deploy 'my site' --force --no-cache --stage=prod`, "")
	require.NoError(t, err)
	assert.Equal(t, `deploy "my site" --force --no-cache --stage=prod`, exprs[0].Format())
}
