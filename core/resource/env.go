// Package resource implements the resource composition engine: definition
// normalization, multi-base inheritance with shadowing, the canonical
// serializer, parameter binding with before/after hook composition, event
// dispatch and expression execution.
//
// A Resource is built from a definition, a YAML/JSON compatible tree in
// which "@"-prefixed keys are attributes and bare keys are children:
//
//	"@import": ./base
//	"@type": resource
//	name: anonymous
//	greet:
//	  "@input": {who: {"@position": 0, "@default": world}}
//	  "@run": "say ${arguments[0]}"
//
// Resources are not safe for concurrent mutation. Reads and invocations on
// a fully built resource may run concurrently.
package resource

import (
	"context"
	"time"

	"github.com/artpar/resrun/core/value"
	"github.com/rs/zerolog"
)

// Source is a raw definition produced by a Loader.
type Source struct {
	// Definition is the decoded definition tree.
	Definition any

	// Location identifies the source (absolute path, URL, cache key).
	// Import cycles are detected on it.
	Location string

	// Dir is the directory relative references inside the definition
	// resolve against.
	Dir string
}

// Loader resolves a definition reference. A missing definition is reported
// with an errs.CodeNotFound error.
type Loader interface {
	Load(ctx context.Context, ref, dir string) (Source, error)
}

// NativeFunc is a Go implementation bound with "@implementation".
type NativeFunc func(ctx context.Context, call *Call) (any, error)

// NativeResolver looks up native implementations by name.
type NativeResolver interface {
	Native(name string) (NativeFunc, bool)
}

// RemoteConnector opens remote resources imported by URL.
type RemoteConnector interface {
	Connect(ctx context.Context, url string) (RemoteClient, error)
}

// RemoteClient forwards invocations to a remote resource.
type RemoteClient interface {
	// Methods returns the names of the forwardable methods.
	Methods(ctx context.Context) ([]string, error)

	// Call invokes a remote method.
	Call(ctx context.Context, method string, in Input) (any, error)
}

// VersionChecker decides whether a version satisfies a range.
type VersionChecker interface {
	IsCompatible(requirement, version string) (bool, error)
}

// Observer receives engine activity. Implementations must be cheap.
type Observer interface {
	DefinitionLoaded(location string, err error)
	InvocationFinished(method string, duration time.Duration, err error)
	HookExecuted(phase string)
	EventDispatched(event string, listeners int)
}

// Env holds the collaborators shared by every resource built from it.
type Env struct {
	Loader  Loader
	Natives NativeResolver
	Remote  RemoteConnector
	Checker VersionChecker

	// Observer is optional.
	Observer Observer

	// RuntimeName and RuntimeVersion are matched against "@runtime".
	RuntimeName    string
	RuntimeVersion string

	// Config is exposed to expressions as "config".
	Config map[string]any

	// Environ is exposed to expressions as "env".
	Environ map[string]string

	Logger zerolog.Logger
}

func (e *Env) observer() Observer {
	if e == nil || e.Observer == nil {
		return nopObserver{}
	}
	return e.Observer
}

type nopObserver struct{}

func (nopObserver) DefinitionLoaded(string, error)                {}
func (nopObserver) InvocationFinished(string, time.Duration, error) {}
func (nopObserver) HookExecuted(string)                           {}
func (nopObserver) EventDispatched(string, int)                   {}

// Input is the argument frame of an invocation.
type Input struct {
	// Arguments are positional arguments.
	Arguments []any

	// Options are keyword arguments.
	Options *value.OrderedMap
}

// NewInput builds an input from positional arguments and a plain option map.
func NewInput(args []any, opts map[string]any) Input {
	return Input{Arguments: args, Options: value.OrderedFrom(opts)}
}

// Call is passed to native implementations.
type Call struct {
	// Receiver is the resource the method was invoked on.
	Receiver *Resource

	// Method is the invoked method resource.
	Method *Resource

	// Arguments holds the bound parameters by name.
	Arguments *value.OrderedMap

	// Input is the unbound argument frame.
	Input Input
}

// Arg returns the bound parameter name as a plain value.
func (c *Call) Arg(name string) any {
	v, _ := c.Arguments.Get(name)
	return value.Plain(v)
}
