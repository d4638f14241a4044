package resource

import (
	"context"
	"sort"
	"time"

	"github.com/artpar/resrun/core/errs"
	"github.com/artpar/resrun/core/expression"
	"github.com/artpar/resrun/core/value"
)

// InvokeOption configures Invoke.
type InvokeOption func(*invokeOptions)

type invokeOptions struct {
	parent *Resource
}

// WithParent sets the resource the method is invoked on. It defaults to the
// resource the method is a property of.
func WithParent(parent *Resource) InvokeOption {
	return func(o *invokeOptions) { o.parent = parent }
}

// Invoke calls a method, command or macro.
//
// Arguments are bound to the declared parameters, then the hooks of every
// level of the method chain run around the body: before-lists from the most
// distant ancestor down to the method itself, the most specific body, then
// after-lists in the mirror order. The first failure aborts the call.
func (r *Resource) Invoke(ctx context.Context, in Input, opts ...InvokeOption) (any, error) {
	if !r.kind.IsCallable() {
		return nil, errs.New(errs.CodeTypeMismatch, "%s of kind %s is not callable", r.describe(), r.kind)
	}
	o := invokeOptions{parent: r.parent}
	for _, opt := range opts {
		opt(&o)
	}
	if in.Options == nil {
		in.Options = value.NewOrderedMap()
	}

	start := time.Now()
	result, err := r.invoke(ctx, o.parent, in)
	r.env.observer().InvocationFinished(r.Name(), time.Since(start), err)

	r.env.Logger.Debug().
		Str("method", r.Name()).
		Dur("duration", time.Since(start)).
		Err(err).
		Msg("invocation finished")
	return result, err
}

func (r *Resource) invoke(ctx context.Context, owner *Resource, in Input) (any, error) {
	bound := value.NewOrderedMap()
	if !r.passesThrough() {
		var err error
		if bound, err = r.bind(in); err != nil {
			return nil, errs.With(err, "invoke %s", r.Name())
		}
	}

	call := &Call{Receiver: owner, Method: r, Arguments: bound, Input: in}
	vars := expression.Variables{
		Arguments: value.Plain(in.Arguments).([]any),
		Config:    r.env.Config,
		Env:       r.env.Environ,
	}
	if vars.Arguments == nil {
		vars.Arguments = []any{}
	}

	levels := r.levels()
	for _, l := range levels {
		for _, src := range l.method.before {
			if err := r.hook(ctx, "before", l, owner, src, vars); err != nil {
				return nil, err
			}
		}
	}

	result, err := r.body(ctx, levels, call, vars)
	if err != nil {
		return nil, err
	}

	for i := len(levels) - 1; i >= 0; i-- {
		l := levels[i]
		for _, src := range l.method.after {
			if err := r.hook(ctx, "after", l, owner, src, vars); err != nil {
				return nil, err
			}
		}
	}
	return result, nil
}

// passesThrough reports whether the input reaches the body unbound: macros,
// and remote forwards no level declares parameters for.
func (r *Resource) passesThrough() bool {
	if r.kind == value.KindMacro {
		return true
	}
	remote := false
	for _, l := range r.linearize() {
		if l.method != nil && l.method.hasInput {
			return false
		}
		if l.remote != nil && l.remote.method != "" {
			remote = true
		}
	}
	return remote
}

// levels returns the callable resources of the method chain, most distant
// ancestor first.
func (r *Resource) levels() []*Resource {
	chain := r.linearize()
	var out []*Resource
	for i := len(chain) - 1; i >= 0; i-- {
		if chain[i].kind.IsCallable() && chain[i].method != nil {
			out = append(out, chain[i])
		}
	}
	return out
}

func (r *Resource) hook(ctx context.Context, phase string, level, owner *Resource, src any, vars expression.Variables) error {
	r.env.observer().HookExecuted(phase)
	r.env.Logger.Debug().
		Str("method", r.Name()).
		Str("phase", phase).
		Interface("expression", src).
		Msg("hook executed")

	if _, err := runSource(ctx, owner, src, level.dir, vars); err != nil {
		return errs.With(err, "%s hook of %s", phase, r.Name())
	}
	return nil
}

// body runs the most specific body of the chain: a native implementation,
// "@run" expressions or a remote forward.
func (r *Resource) body(ctx context.Context, levels []*Resource, call *Call, vars expression.Variables) (any, error) {
	for i := len(levels) - 1; i >= 0; i-- {
		l := levels[i]
		switch {
		case l.meta.Implementation != "":
			return r.native(ctx, l.meta.Implementation, call)
		case l.method.hasBody():
			var result any
			for _, src := range l.method.run {
				var err error
				if result, err = runSource(ctx, call.Receiver, src, l.dir, vars); err != nil {
					return nil, err
				}
			}
			return result, nil
		case l.remote != nil && l.remote.method != "":
			return l.remote.forward(ctx, call.Input)
		}
	}
	return nil, nil
}

func (r *Resource) native(ctx context.Context, name string, call *Call) (any, error) {
	if r.env.Natives == nil {
		return nil, errs.New(errs.CodeNotFound, "implementation %q of %s: no native functions registered", name, r.Name())
	}
	fn, ok := r.env.Natives.Native(name)
	if !ok {
		return nil, errs.New(errs.CodeNotFound, "implementation %q of %s is not registered", name, r.Name())
	}
	return fn(ctx, call)
}

// Params returns the declared parameters: those of the most specific level
// declaring "@input".
func (r *Resource) Params() []*Resource {
	for _, l := range r.linearize() {
		if l.method != nil && l.method.hasInput {
			return append([]*Resource(nil), l.method.params...)
		}
	}
	return nil
}

// bind matches the input against the declared parameters.
func (r *Resource) bind(in Input) (*value.OrderedMap, error) {
	params := r.Params()
	bound := value.NewOrderedMap()

	var positional []*Resource
	var subInput *Resource
	for _, p := range params {
		if p.param.Position != nil {
			positional = append(positional, p)
		}
		if p.param.SubInput {
			subInput = p
		}
	}
	sort.SliceStable(positional, func(i, j int) bool {
		return *positional[i].param.Position < *positional[j].param.Position
	})
	for _, p := range params {
		if p.param.Variadic && p.param.Position == nil {
			positional = append(positional, p)
		}
	}

	args := in.Arguments
	next := 0
	for _, p := range positional {
		if p.param.Variadic {
			rest := append([]any{}, args[next:]...)
			v, err := coerceVariadic(p, rest)
			if err != nil {
				return nil, err
			}
			bound.Set(p.key, v)
			next = len(args)
			continue
		}
		if next >= len(args) {
			continue
		}
		v, err := coerce(p, args[next])
		if err != nil {
			return nil, err
		}
		bound.Set(p.key, v)
		next++
	}
	if next < len(args) {
		return nil, errs.New(errs.CodeArity, "expected at most %d positional arguments, got %d", next, len(args))
	}

	bag := make(map[string]any)
	for _, k := range in.Options.Keys() {
		raw, _ := in.Options.Get(k)
		p := matchParam(params, k)
		if p == nil {
			if subInput == nil {
				return nil, errs.New(errs.CodeUnknownParameter, "unknown parameter %q", k)
			}
			bag[k] = value.Plain(raw)
			continue
		}
		if _, dup := bound.Get(p.key); dup {
			return nil, errs.New(errs.CodeArity, "parameter %q given more than once", p.key)
		}
		v, err := coerce(p, raw)
		if err != nil {
			return nil, err
		}
		bound.Set(p.key, v)
	}
	if subInput != nil {
		if _, given := bound.Get(subInput.key); !given {
			bound.Set(subInput.key, bag)
		}
	}

	for _, p := range params {
		if _, ok := bound.Get(p.key); ok {
			continue
		}
		if v := p.Value(); v != nil {
			bound.Set(p.key, v)
		}
	}
	return bound, nil
}

func matchParam(params []*Resource, name string) *Resource {
	for _, p := range params {
		if p.IsMatching(name) {
			return p
		}
	}
	return nil
}

// coerce converts an argument to the parameter's kind, parsing strings.
// Parameters without a valued kind take arguments as given.
func coerce(p *Resource, v any) (any, error) {
	if !p.kind.IsValued() {
		return value.Plain(v), nil
	}
	out, err := value.Convert(v, p.kind, value.ConvertOptions{Parse: true})
	if err != nil {
		return nil, errs.With(err, "parameter %q", p.key)
	}
	return out, nil
}

func coerceVariadic(p *Resource, rest []any) (any, error) {
	if !p.kind.IsValued() || p.kind == value.KindArray {
		return value.Plain(rest), nil
	}
	out := make([]any, len(rest))
	for i, e := range rest {
		v, err := coerce(p, e)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
