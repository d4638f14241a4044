// Package runtime provides the resource execution environment.
// It loads definitions, registers named resources, executes expressions
// against them and broadcasts events through the event bus.
package runtime

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/artpar/resrun/core/compat"
	"github.com/artpar/resrun/core/errs"
	"github.com/artpar/resrun/core/events"
	"github.com/artpar/resrun/core/registry"
	"github.com/artpar/resrun/core/resource"
	"github.com/artpar/resrun/core/value"
	"github.com/rs/zerolog"
)

// Runtime is the execution environment for resources.
type Runtime struct {
	mu sync.RWMutex

	// registry holds named top-level resources
	registry *registry.Registry

	// functions registry for "@implementation" bindings
	functions *FunctionRegistry

	// events bus for broadcasts
	events *events.Bus

	// env is shared by every resource the runtime builds
	env *resource.Env

	// output receives the "print" builtin
	output io.Writer

	logger zerolog.Logger
	config Config
}

// Config configures the runtime.
type Config struct {
	// Name and Version identify the runtime to "@runtime" requirements.
	Name    string
	Version string

	// Values are exposed to expressions as "config".
	Values map[string]any

	// Environ is exposed to expressions as "env". Nil means the process
	// environment.
	Environ map[string]string

	// Loader resolves imports (optional).
	Loader resource.Loader

	// Remote connects remote imports (optional).
	Remote resource.RemoteConnector

	// Observer receives engine activity (optional).
	Observer resource.Observer

	// Output receives printed text. Defaults to stdout.
	Output io.Writer

	// Logger for runtime and engine.
	Logger zerolog.Logger
}

// New creates a new runtime with the builtin functions registered.
func New(config Config) *Runtime {
	r := &Runtime{
		registry:  registry.New(),
		functions: NewFunctionRegistry(),
		events:    events.NewBus(config.Logger),
		output:    config.Output,
		logger:    config.Logger,
		config:    config,
	}
	if r.output == nil {
		r.output = os.Stdout
	}

	environ := config.Environ
	if environ == nil {
		environ = processEnv()
	}
	r.env = &resource.Env{
		Loader:         config.Loader,
		Natives:        r.functions,
		Remote:         config.Remote,
		Checker:        compat.Checker{},
		Observer:       config.Observer,
		RuntimeName:    config.Name,
		RuntimeVersion: config.Version,
		Config:         config.Values,
		Environ:        environ,
		Logger:         config.Logger,
	}

	r.registerBuiltins()
	return r
}

// Env returns the environment resources are built with.
func (r *Runtime) Env() *resource.Env {
	return r.env
}

// Registry returns the resource registry.
func (r *Runtime) Registry() *registry.Registry {
	return r.registry
}

// Functions returns the function registry.
func (r *Runtime) Functions() *FunctionRegistry {
	return r.functions
}

// Events returns the event bus.
func (r *Runtime) Events() *events.Bus {
	return r.events
}

// RegisterFunction registers a native implementation.
func (r *Runtime) RegisterFunction(name string, fn resource.NativeFunc) {
	r.functions.Register(name, fn)
}

// Create builds a resource from a raw definition. Relative imports resolve
// against dir.
func (r *Runtime) Create(ctx context.Context, def any, dir string) (*resource.Resource, error) {
	return resource.Create(ctx, def, resource.WithEnv(r.env), resource.WithDir(dir))
}

// Load builds the resource referenced by ref through the configured loader.
func (r *Runtime) Load(ctx context.Context, ref, dir string) (*resource.Resource, error) {
	res, err := resource.Load(ctx, ref, resource.WithEnv(r.env), resource.WithDir(dir))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", ref, err)
	}
	return res, nil
}

// Register registers a named resource and subscribes it to every event
// published on the bus.
func (r *Runtime) Register(res *resource.Resource) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.registry.Register(res); err != nil {
		return fmt.Errorf("register resource %q: %w", res.Name(), err)
	}

	name := res.Name()
	r.events.Subscribe("*", func(ctx context.Context, ev events.Event) error {
		if current, ok := r.registry.Get(name); !ok || current != res {
			return nil
		}
		_, err := res.Broadcast(ctx, ev.Name, resource.NewInput(ev.Arguments, ev.Options))
		return err
	})

	r.logger.Debug().
		Str("resource", name).
		Str("location", res.Location()).
		Msg("registered resource")
	return nil
}

// LoadAll loads every source and registers the named ones. Sources
// without a name are built and validated but not registered.
func (r *Runtime) LoadAll(ctx context.Context, sources []resource.Source) ([]*resource.Resource, error) {
	var out []*resource.Resource
	for _, src := range sources {
		var res *resource.Resource
		var err error
		if r.env.Loader != nil && src.Location != "" {
			res, err = r.Load(ctx, src.Location, src.Dir)
		} else {
			res, err = r.Create(ctx, src.Definition, src.Dir)
		}
		if err != nil {
			return nil, err
		}
		if res.Meta().Name != "" {
			if err := r.Register(res); err != nil {
				return nil, err
			}
		}
		out = append(out, res)
	}
	return out, nil
}

// Get returns a registered resource by name or alias.
func (r *Runtime) Get(name string) (*resource.Resource, error) {
	res, ok := r.registry.Get(name)
	if !ok {
		return nil, errs.New(errs.CodeNotFound, "resource %q not registered", name)
	}
	return res, nil
}

// Execute runs an expression source on target. arguments are exposed to
// placeholders as "arguments".
func (r *Runtime) Execute(ctx context.Context, target *resource.Resource, src any, arguments []any) (any, error) {
	result, err := target.Run(ctx, src, arguments)
	if err != nil {
		r.logger.Debug().Err(err).Interface("expression", src).Msg("execution failed")
		return nil, err
	}
	return result, nil
}

// Publish broadcasts an event to every registered resource, in
// registration order.
func (r *Runtime) Publish(ctx context.Context, source, event string, in resource.Input) error {
	opts, _ := value.Plain(in.Options).(map[string]any)
	return r.events.Publish(ctx, events.Event{
		Name:      event,
		Source:    source,
		Arguments: in.Arguments,
		Options:   opts,
	})
}

func processEnv() map[string]string {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			out[k] = v
		}
	}
	return out
}
