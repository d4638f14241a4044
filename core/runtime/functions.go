package runtime

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/artpar/resrun/core/resource"
)

// FunctionRegistry manages native method implementations.
// Functions are registered by name and bound via "@implementation" in
// definitions.
type FunctionRegistry struct {
	mu    sync.RWMutex
	funcs map[string]resource.NativeFunc
}

// NewFunctionRegistry creates a new function registry.
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{
		funcs: make(map[string]resource.NativeFunc),
	}
}

// Register adds a function to the registry, replacing any function of the
// same name.
func (r *FunctionRegistry) Register(name string, fn resource.NativeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Native implements resource.NativeResolver.
func (r *FunctionRegistry) Native(name string) (resource.NativeFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Call invokes a registered function by name.
// Returns an error if the function is not found.
func (r *FunctionRegistry) Call(ctx context.Context, name string, call *resource.Call) (any, error) {
	fn, ok := r.Native(name)
	if !ok {
		return nil, fmt.Errorf("function %q not registered", name)
	}
	return fn(ctx, call)
}

// Has checks if a function is registered.
func (r *FunctionRegistry) Has(name string) bool {
	_, ok := r.Native(name)
	return ok
}

// List returns all registered function names, sorted.
func (r *FunctionRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
