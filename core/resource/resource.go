package resource

import (
	"context"

	"github.com/artpar/resrun/core/errs"
	"github.com/artpar/resrun/core/value"
)

// Resource is a named, typed, composable entity.
type Resource struct {
	env      *Env
	dir      string
	location string
	key      string
	parent   *Resource

	meta Meta
	// explicitKind is the kind the definition declared with "@type".
	explicitKind value.Kind
	kind         value.Kind

	val        any
	hasValue   bool
	def        any
	hasDefault bool

	// imports are the declared "@import" entries: reference strings or
	// resources built from inline definitions.
	imports []any
	// implicit is the inherited property this resource shadows.
	implicit *Resource
	// bases is the ordered base list: implicit first, then imports.
	bases  []*Resource
	export *Resource

	// table maps inherited property names to the index of the base that
	// provides them. Names provided by conflicting bases are in ambiguous.
	table     map[string]int
	tableKeys []string
	ambiguous map[string][]int

	childKeys []string
	children  map[string]*Resource

	param  paramSpec
	method *methodSpec
	remote *remoteBinding
}

// methodSpec is the behavior declared by a callable resource.
type methodSpec struct {
	params   []*Resource
	hasInput bool
	before   []any
	run      []any
	after    []any
	listen   []string
	unlisten []string
}

func (m *methodSpec) hasBody() bool {
	return m != nil && len(m.run) > 0
}

// Key returns the property name the resource is attached under.
func (r *Resource) Key() string { return r.key }

// Name returns "@name", falling back to the property key.
func (r *Resource) Name() string {
	if r.meta.Name != "" {
		return r.meta.Name
	}
	return r.key
}

// Meta returns a copy of the identity attributes.
func (r *Resource) Meta() Meta { return r.meta.clone() }

// Kind returns the effective kind.
func (r *Resource) Kind() value.Kind { return r.kind }

// Dir returns the directory relative references resolve against.
func (r *Resource) Dir() string { return r.dir }

// Location returns where the definition was loaded from, if anywhere.
func (r *Resource) Location() string { return r.location }

// Parent returns the resource this one is a property of.
func (r *Resource) Parent() *Resource { return r.parent }

// Env returns the environment the resource was built in.
func (r *Resource) Env() *Env { return r.env }

// Bases returns the ordered base list.
func (r *Resource) Bases() []*Resource {
	return append([]*Resource(nil), r.bases...)
}

// Export returns the "@export" resource, if declared.
func (r *Resource) Export() *Resource { return r.export }

// IsCallable reports whether the resource can be invoked.
func (r *Resource) IsCallable() bool { return r.kind.IsCallable() }

// IsHidden reports whether "@hidden" is set.
func (r *Resource) IsHidden() bool { return r.meta.Hidden }

// HasAlias reports whether alias is one of the resource's aliases.
func (r *Resource) HasAlias(alias string) bool {
	for _, a := range r.meta.Aliases {
		if a == alias {
			return true
		}
	}
	return false
}

// IsMatching reports whether name designates the resource: its "@name",
// its property key or one of its aliases.
func (r *Resource) IsMatching(name string) bool {
	if name == "" {
		return false
	}
	return name == r.meta.Name || name == r.key || r.HasAlias(name)
}

// Value returns the effective value: the own value, else the own default,
// else the first base providing one. The result is a copy.
func (r *Resource) Value() any {
	if r.hasValue {
		return value.Plain(r.val)
	}
	if r.hasDefault {
		return value.Plain(r.def)
	}
	for _, b := range r.bases {
		if v := b.Value(); v != nil {
			return v
		}
	}
	return nil
}

// Default returns the effective default value. The result is a copy.
func (r *Resource) Default() any {
	if r.hasDefault {
		return value.Plain(r.def)
	}
	for _, b := range r.bases {
		if v := b.Default(); v != nil {
			return v
		}
	}
	return nil
}

// SetValue replaces the own value. The value must have the native shape of
// the resource's kind.
func (r *Resource) SetValue(v any) error {
	if !r.kind.IsValued() {
		return errs.New(errs.CodeTypeMismatch, "%s of kind %s cannot hold a value", r.describe(), r.kind)
	}
	converted, err := value.Convert(v, r.kind, value.ConvertOptions{})
	if err != nil {
		return errs.Wrap(errs.CodeTypeMismatch, err, "set %s", r.describe())
	}
	r.val = converted
	r.hasValue = converted != nil
	return nil
}

// OwnKeys returns the names of the own children in insertion order.
func (r *Resource) OwnKeys() []string {
	return append([]string(nil), r.childKeys...)
}

// Keys returns every visible property name: own children first, then
// inherited ones in base order.
func (r *Resource) Keys() []string {
	keys := r.OwnKeys()
	for _, k := range r.tableKeys {
		if _, own := r.children[k]; !own {
			keys = append(keys, k)
		}
	}
	if r.remote != nil {
		for _, k := range r.remote.methods {
			if _, own := r.children[k]; !own && !r.inherits(k) {
				keys = append(keys, k)
			}
		}
	}
	return keys
}

func (r *Resource) inherits(name string) bool {
	if _, ok := r.table[name]; ok {
		return true
	}
	_, ok := r.ambiguous[name]
	return ok
}

// GetChild returns the property name: an own child, else the inherited
// child of the base providing it. A missing property is (nil, nil); a name
// provided by conflicting bases fails with AmbiguousProperty.
func (r *Resource) GetChild(name string) (*Resource, error) {
	if c, ok := r.children[name]; ok {
		return c, nil
	}
	if candidates, ok := r.ambiguous[name]; ok {
		return nil, errs.New(errs.CodeAmbiguousProperty,
			"property %q of %s is defined by %d bases and must be overridden", name, r.describe(), len(candidates))
	}
	if i, ok := r.table[name]; ok {
		return r.bases[i].GetChild(name)
	}
	if r.remote != nil {
		if stub := r.remote.stub(r, name); stub != nil {
			return stub, nil
		}
	}
	for _, k := range r.Keys() {
		if _, bad := r.ambiguous[k]; bad {
			continue
		}
		c, err := r.GetChild(k)
		if err != nil {
			return nil, err
		}
		if c != nil && c.HasAlias(name) {
			return c, nil
		}
	}
	return nil, nil
}

// enter returns the container c, reached as a property of r, as a
// resource r owns. An inherited container is first shadowed by an empty
// own child, so work done through it never reaches the base.
func (r *Resource) enter(ctx context.Context, c *Resource) (*Resource, error) {
	if c.IsCallable() || c.kind.IsScalar() || c.remote != nil || r.remote != nil {
		return c, nil
	}
	if own, ok := r.children[c.key]; ok {
		return own, nil
	}
	if inherited, err := r.inheritedChild(c.key); err != nil || inherited != c {
		return c, err
	}
	return r.SetChild(ctx, c.key, nil)
}

// Get returns the value of property name.
func (r *Resource) Get(name string) (any, error) {
	c, err := r.GetChild(name)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errs.New(errs.CodeNotFound, "%s has no property %q", r.describe(), name)
	}
	return c.Value(), nil
}

// SetChild builds def and attaches it as the own property name. An
// inherited property of the same name becomes the new child's base, so the
// new definition must be kind-compatible with it; the inherited resource
// itself is never modified.
func (r *Resource) SetChild(ctx context.Context, name string, def any) (*Resource, error) {
	if err := validateKey(name); err != nil {
		return nil, err
	}
	b := newBuilder(r.env)
	child, err := b.buildChild(ctx, r, name, def)
	if err != nil {
		return nil, err
	}
	r.attach(name, child)
	return child, nil
}

// Set assigns v to property name. An own valued child has its value
// replaced; otherwise v becomes a new own child shadowing any inherited one.
func (r *Resource) Set(ctx context.Context, name string, v any) error {
	if c, ok := r.children[name]; ok && c.kind.IsValued() {
		return c.SetValue(v)
	}
	_, err := r.SetChild(ctx, name, v)
	return err
}

// RemoveChild detaches the own property name, uncovering any inherited one.
func (r *Resource) RemoveChild(name string) {
	if _, ok := r.children[name]; !ok {
		return
	}
	delete(r.children, name)
	for i, k := range r.childKeys {
		if k == name {
			r.childKeys = append(r.childKeys[:i], r.childKeys[i+1:]...)
			break
		}
	}
}

func (r *Resource) attach(name string, child *Resource) {
	if r.children == nil {
		r.children = make(map[string]*Resource)
	}
	if _, ok := r.children[name]; !ok {
		r.childKeys = append(r.childKeys, name)
	}
	child.parent = r
	child.key = name
	r.children[name] = child
}

// inheritedChild returns the property name provided by the bases. For an
// ambiguous name the first provider is used.
func (r *Resource) inheritedChild(name string) (*Resource, error) {
	if candidates, ok := r.ambiguous[name]; ok {
		return r.bases[candidates[0]].GetChild(name)
	}
	if i, ok := r.table[name]; ok {
		return r.bases[i].GetChild(name)
	}
	return nil, nil
}

func (r *Resource) describe() string {
	switch {
	case r.meta.Name != "":
		return "resource " + r.meta.Name
	case r.key != "":
		return "property " + r.key
	case r.location != "":
		return "resource at " + r.location
	}
	return "resource"
}
