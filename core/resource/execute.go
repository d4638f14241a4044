package resource

import (
	"context"

	"github.com/artpar/resrun/core/errs"
	"github.com/artpar/resrun/core/expression"
	"github.com/artpar/resrun/core/value"
)

// Dispatch walks the positional arguments as property names, starting at r,
// until it reaches a callable property, which is invoked with the remaining
// arguments and the options. Without a callable on the path, the value of
// the last property reached is returned.
func (r *Resource) Dispatch(ctx context.Context, in Input) (any, error) {
	if in.Options == nil {
		in.Options = value.NewOrderedMap()
	}
	cur := r
	for i, a := range in.Arguments {
		name, ok := a.(string)
		if !ok {
			return nil, errs.New(errs.CodeNotFound, "%s has no property %v", cur.describe(), a)
		}
		child, err := cur.GetChild(name)
		if err != nil {
			return nil, err
		}
		if child == nil {
			return nil, errs.New(errs.CodeNotFound, "%s has no property %q", cur.describe(), name)
		}
		if child.IsCallable() {
			return child.Invoke(ctx, Input{Arguments: in.Arguments[i+1:], Options: in.Options}, WithParent(cur))
		}
		if cur, err = cur.enter(ctx, child); err != nil {
			return nil, err
		}
	}
	if cur.IsCallable() {
		return cur.Invoke(ctx, in)
	}
	if in.Options.Len() > 0 {
		return nil, errs.New(errs.CodeUnknownParameter, "%s is not callable and takes no options", cur.describe())
	}
	return cur.Value(), nil
}

// Execute resolves an expression against vars and dispatches it on r.
func (r *Resource) Execute(ctx context.Context, e *expression.Expression, vars expression.Variables) (any, error) {
	args, opts, err := e.Resolve(vars)
	if err != nil {
		return nil, err
	}
	return r.Dispatch(ctx, Input{Arguments: args, Options: opts})
}

// Run parses src (a string or a token list) and executes each of its
// comma-chained expressions on r in order, returning the last result.
// arguments are exposed to placeholders as "arguments".
func (r *Resource) Run(ctx context.Context, src any, arguments []any) (any, error) {
	if arguments == nil {
		arguments = []any{}
	}
	vars := expression.Variables{
		Arguments: value.Plain(arguments).([]any),
		Config:    r.env.Config,
		Env:       r.env.Environ,
	}
	return runSource(ctx, r, src, r.dir, vars)
}

func runSource(ctx context.Context, target *Resource, src any, dir string, vars expression.Variables) (any, error) {
	if target == nil {
		return nil, errs.New(errs.CodeNotFound, "no target resource to run %v on", src)
	}
	exprs, err := expression.Parse(src, dir)
	if err != nil {
		return nil, err
	}
	var result any
	for _, e := range exprs {
		if result, err = target.Execute(ctx, e, vars); err != nil {
			return nil, err
		}
	}
	return result, nil
}
