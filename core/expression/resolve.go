package expression

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/artpar/resrun/core/errs"
	"github.com/artpar/resrun/core/value"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Variables are the values placeholders resolve against.
type Variables struct {
	// Arguments are the positional arguments of the enclosing invocation.
	Arguments []any

	// Config is the runtime configuration ("config", "config.a.b").
	Config map[string]any

	// Env is the process environment ("env.HOME").
	Env map[string]string
}

func (v Variables) env() map[string]any {
	args := v.Arguments
	if args == nil {
		args = []any{}
	}
	cfg := v.Config
	if cfg == nil {
		cfg = map[string]any{}
	}
	envs := make(map[string]any, len(v.Env))
	for k, e := range v.Env {
		envs[k] = e
	}
	return map[string]any{
		"arguments": args,
		"config":    cfg,
		"env":       envs,
	}
}

var (
	argumentIndex = regexp.MustCompile(`^arguments\[(\d+)\]$`)
	bareIndex     = regexp.MustCompile(`^\d+$`)
	dottedPath    = regexp.MustCompile(`^(config|env)(\.[A-Za-z0-9_-]+)*$`)
)

var (
	programs   = make(map[string]*vm.Program)
	programsMu sync.RWMutex
)

// Resolve returns the expression's arguments and options with every
// placeholder substituted. The expression itself is left untouched.
func (e *Expression) Resolve(vars Variables) ([]any, *value.OrderedMap, error) {
	args := make([]any, 0, len(e.Arguments))
	for _, a := range e.Arguments {
		v, err := ResolveValue(a, vars)
		if err != nil {
			return nil, nil, err
		}
		args = append(args, v)
	}

	opts := value.NewOrderedMap()
	for _, k := range e.Options.Keys() {
		raw, _ := e.Options.Get(k)
		v, err := ResolveValue(raw, vars)
		if err != nil {
			return nil, nil, fmt.Errorf("option %q: %w", k, err)
		}
		opts.Set(k, v)
	}
	return args, opts, nil
}

// ResolveValue resolves a single argument or option value. A template made
// of exactly one placeholder keeps the placeholder's raw value; otherwise
// the parts are concatenated into a string.
func ResolveValue(v any, vars Variables) (any, error) {
	t, ok := v.(*Template)
	if !ok {
		return value.Clone(v), nil
	}
	if len(t.Parts) == 1 && t.Parts[0].IsVar {
		return Lookup(t.Parts[0].Text, vars)
	}

	var b strings.Builder
	for _, p := range t.Parts {
		if !p.IsVar {
			b.WriteString(p.Text)
			continue
		}
		resolved, err := Lookup(p.Text, vars)
		if err != nil {
			return nil, err
		}
		if resolved != nil {
			b.WriteString(toString(resolved))
		}
	}
	return b.String(), nil
}

// Lookup evaluates a placeholder source. Simple references ("config",
// "config.<path>", "env.<name>", "arguments[n]", "n") are resolved
// directly; anything else is evaluated as an expr-lang expression over
// {arguments, config, env}.
func Lookup(src string, vars Variables) (any, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, errs.New(errs.CodeParse, "empty placeholder")
	}

	if m := argumentIndex.FindStringSubmatch(src); m != nil {
		return argumentAt(vars.Arguments, m[1]), nil
	}
	if bareIndex.MatchString(src) {
		return argumentAt(vars.Arguments, src), nil
	}
	if src == "arguments" {
		return value.Plain(vars.Arguments), nil
	}
	if dottedPath.MatchString(src) {
		segs := strings.Split(src, ".")
		if segs[0] == "env" {
			if len(segs) == 1 {
				return value.Plain(vars.env()["env"]), nil
			}
			if len(segs) == 2 {
				if e, ok := vars.Env[segs[1]]; ok {
					return e, nil
				}
				return nil, nil
			}
			return nil, nil
		}
		var cur any = vars.Config
		for _, seg := range segs[1:] {
			m, ok := cur.(map[string]any)
			if !ok {
				return nil, nil
			}
			cur = m[seg]
		}
		return value.Plain(cur), nil
	}

	return eval(src, vars)
}

func argumentAt(args []any, digits string) any {
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 || n >= len(args) {
		return nil
	}
	return value.Plain(args[n])
}

func eval(src string, vars Variables) (any, error) {
	env := vars.env()
	program, err := getOrCompile(src, env)
	if err != nil {
		return nil, errs.Wrap(errs.CodeParse, err, "compile placeholder %q", src)
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return nil, errs.Wrap(errs.CodeParse, err, "evaluate placeholder %q", src)
	}
	return value.Plain(result), nil
}

// getOrCompile returns a cached compiled program or compiles a new one.
func getOrCompile(src string, env map[string]any) (*vm.Program, error) {
	programsMu.RLock()
	program, ok := programs[src]
	programsMu.RUnlock()
	if ok {
		return program, nil
	}

	program, err := expr.Compile(src, expr.Env(env), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}

	programsMu.Lock()
	programs[src] = program
	programsMu.Unlock()
	return program, nil
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []byte:
		return value.FormatBinary(t)
	}
	return fmt.Sprint(v)
}
