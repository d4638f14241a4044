package runtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/artpar/resrun/core/errs"
	"github.com/artpar/resrun/core/resource"
	"github.com/artpar/resrun/core/value"
)

// Builtin function names.
const (
	FuncPrint     = "print"
	FuncEmit      = "emit"
	FuncBroadcast = "broadcast"
	FuncGet       = "get"
	FuncSet       = "set"
)

func (r *Runtime) registerBuiltins() {
	r.functions.Register(FuncPrint, r.print)
	r.functions.Register(FuncEmit, emit)
	r.functions.Register(FuncBroadcast, r.broadcast)
	r.functions.Register(FuncGet, get)
	r.functions.Register(FuncSet, set)
}

// print writes the positional arguments, space separated, to the output.
func (r *Runtime) print(ctx context.Context, call *resource.Call) (any, error) {
	parts := make([]string, len(call.Input.Arguments))
	for i, a := range call.Input.Arguments {
		parts[i] = fmt.Sprint(value.Plain(a))
	}
	line := strings.Join(parts, " ")
	if _, err := fmt.Fprintln(r.output, line); err != nil {
		return nil, fmt.Errorf("print: %w", err)
	}
	return line, nil
}

// emit emits the event named by the first argument on the receiver,
// forwarding the remaining input.
func emit(ctx context.Context, call *resource.Call) (any, error) {
	event, in, err := eventInput(call)
	if err != nil {
		return nil, err
	}
	n, err := call.Receiver.Emit(ctx, event, in)
	return float64(n), err
}

// broadcast publishes the event named by the first argument to every
// registered resource.
func (r *Runtime) broadcast(ctx context.Context, call *resource.Call) (any, error) {
	event, in, err := eventInput(call)
	if err != nil {
		return nil, err
	}
	return nil, r.Publish(ctx, call.Receiver.Name(), event, in)
}

// get returns the value of the receiver's property named by the first
// argument.
func get(ctx context.Context, call *resource.Call) (any, error) {
	if err := needReceiver(call); err != nil {
		return nil, err
	}
	if len(call.Input.Arguments) != 1 {
		return nil, errs.New(errs.CodeArity, "get takes a property name")
	}
	return call.Receiver.Get(fmt.Sprint(call.Input.Arguments[0]))
}

// set assigns the second argument to the receiver's property named by the
// first argument.
func set(ctx context.Context, call *resource.Call) (any, error) {
	if err := needReceiver(call); err != nil {
		return nil, err
	}
	if len(call.Input.Arguments) != 2 {
		return nil, errs.New(errs.CodeArity, "set takes a property name and a value")
	}
	name := fmt.Sprint(call.Input.Arguments[0])
	v := call.Input.Arguments[1]
	if cur, err := call.Receiver.GetChild(name); err == nil && cur != nil && cur.Kind().IsValued() {
		if v, err = value.Convert(v, cur.Kind(), value.ConvertOptions{Parse: true}); err != nil {
			return nil, errs.With(err, "set %s", name)
		}
	}
	if err := call.Receiver.Set(ctx, name, v); err != nil {
		return nil, err
	}
	return call.Receiver.Get(name)
}

func eventInput(call *resource.Call) (string, resource.Input, error) {
	if err := needReceiver(call); err != nil {
		return "", resource.Input{}, err
	}
	args := call.Input.Arguments
	if len(args) == 0 {
		return "", resource.Input{}, errs.New(errs.CodeArity, "%s takes an event name", call.Method.Name())
	}
	event, ok := args[0].(string)
	if !ok || event == "" {
		return "", resource.Input{}, errs.New(errs.CodeTypeMismatch, "event name must be a string, got %v", args[0])
	}
	return event, resource.Input{Arguments: args[1:], Options: call.Input.Options}, nil
}

func needReceiver(call *resource.Call) error {
	if call.Receiver == nil {
		return errs.New(errs.CodeNotFound, "%s has no receiver", call.Method.Name())
	}
	return nil
}
