package resource

import (
	"context"
	"strings"

	"github.com/artpar/resrun/core/errs"
	"github.com/artpar/resrun/core/value"
	"github.com/rs/zerolog"
)

// Option configures Create and Load.
type Option func(*createOptions)

type createOptions struct {
	env *Env
	dir string
}

// WithEnv sets the environment collaborators.
func WithEnv(env *Env) Option {
	return func(o *createOptions) { o.env = env }
}

// WithDir sets the directory relative imports resolve against.
func WithDir(dir string) Option {
	return func(o *createOptions) { o.dir = dir }
}

// Create builds a resource from a raw definition.
func Create(ctx context.Context, def any, opts ...Option) (*Resource, error) {
	o := applyOptions(opts)
	return newBuilder(o.env).build(ctx, def, frame{dir: o.dir})
}

// Load builds the resource referenced by ref through the environment's
// loader.
func Load(ctx context.Context, ref string, opts ...Option) (*Resource, error) {
	o := applyOptions(opts)
	return newBuilder(o.env).load(ctx, ref, o.dir)
}

func applyOptions(opts []Option) createOptions {
	var o createOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// builder carries the state of one construction: loaded definitions by
// location and the chain of locations being built, for cycle detection.
type builder struct {
	env   *Env
	cache map[string]*Resource
	stack []string
}

func newBuilder(env *Env) *builder {
	if env == nil {
		env = &Env{Logger: zerolog.Nop()}
	}
	return &builder{env: env, cache: make(map[string]*Resource)}
}

// frame is the context a definition is built in.
type frame struct {
	dir      string
	location string
	key      string
	// implicit is the inherited property being shadowed.
	implicit *Resource
	// hint is the kind expected for the definition.
	hint value.Kind
}

func (b *builder) load(ctx context.Context, ref, dir string) (*Resource, error) {
	if isRemote(ref) {
		if r, ok := b.cache[ref]; ok {
			return r, nil
		}
		r, err := b.connect(ctx, ref)
		if err != nil {
			return nil, err
		}
		b.cache[ref] = r
		return r, nil
	}

	if b.env.Loader == nil {
		return nil, errs.New(errs.CodeNotFound, "cannot resolve %q: no loader configured", ref)
	}
	src, err := b.env.Loader.Load(ctx, ref, dir)
	if err != nil {
		b.env.observer().DefinitionLoaded(ref, err)
		return nil, err
	}
	if src.Location == "" {
		src.Location = ref
	}

	if r, ok := b.cache[src.Location]; ok {
		return r, nil
	}
	for _, loc := range b.stack {
		if loc == src.Location {
			chain := append(append([]string(nil), b.stack...), src.Location)
			return nil, errs.New(errs.CodeDefinition, "import cycle: %s", strings.Join(chain, " -> "))
		}
	}

	b.stack = append(b.stack, src.Location)
	r, err := b.build(ctx, src.Definition, frame{dir: src.Dir, location: src.Location})
	b.stack = b.stack[:len(b.stack)-1]
	b.env.observer().DefinitionLoaded(src.Location, err)
	if err != nil {
		return nil, errs.With(err, "load %s", src.Location)
	}

	b.env.Logger.Debug().
		Str("location", src.Location).
		Str("kind", string(r.kind)).
		Msg("definition loaded")

	b.cache[src.Location] = r
	return r, nil
}

func (b *builder) build(ctx context.Context, raw any, f frame) (*Resource, error) {
	d, err := normalize(raw, f.hint)
	if err != nil {
		return nil, err
	}
	if err := b.checkRuntime(d.meta.Runtime); err != nil {
		return nil, err
	}

	r := &Resource{
		env:          b.env,
		dir:          f.dir,
		location:     f.location,
		key:          f.key,
		meta:         d.meta,
		explicitKind: d.kind,
		param:        d.param,
		implicit:     f.implicit,
	}
	if f.implicit != nil {
		r.bases = append(r.bases, f.implicit)
	}

	for _, imp := range d.imports {
		decl, base, err := b.resolveImport(ctx, imp, f.dir)
		if err != nil {
			return nil, err
		}
		r.imports = append(r.imports, decl)
		r.bases = append(r.bases, base)
	}

	if d.hasExport {
		exp, err := b.build(ctx, d.export, frame{dir: f.dir})
		if err != nil {
			return nil, errs.With(err, "%s", AttrExport)
		}
		r.export = exp
	}

	if r.kind, err = deriveKind(d, r.bases); err != nil {
		return nil, errs.With(err, "%s", r.describe())
	}

	if d.hasValue && d.value != nil {
		if r.val, err = convertAttr(d.value, r.kind); err != nil {
			return nil, errs.With(err, "%s of %s", AttrValue, r.describe())
		}
		r.hasValue = true
	}
	if d.hasDefault && d.def != nil {
		if r.def, err = convertAttr(d.def, r.kind); err != nil {
			return nil, errs.With(err, "%s of %s", AttrDefault, r.describe())
		}
		r.hasDefault = true
	}

	if d.isMethodLike() && !r.kind.IsCallable() {
		return nil, errs.New(errs.CodeDefinition, "%s declares method attributes but has kind %s", r.describe(), r.kind)
	}
	if r.kind.IsCallable() {
		if r.method, err = b.buildMethod(ctx, d, f.dir); err != nil {
			return nil, errs.With(err, "%s", r.describe())
		}
	}

	r.buildTable()

	if d.children.Len() > 0 && r.kind.IsScalar() {
		return nil, errs.New(errs.CodeDefinition, "%s of kind %s cannot have properties", r.describe(), r.kind)
	}
	for _, k := range d.children.Keys() {
		if err := validateKey(k); err != nil {
			return nil, err
		}
		childDef, _ := d.children.Get(k)
		child, err := b.buildChild(ctx, r, k, childDef)
		if err != nil {
			return nil, err
		}
		r.attach(k, child)
	}
	return r, nil
}

// buildChild builds the property name of owner. An inherited property of
// the same name becomes the child's implicit base.
func (b *builder) buildChild(ctx context.Context, owner *Resource, name string, def any) (*Resource, error) {
	inherited, err := owner.inheritedChild(name)
	if err != nil {
		return nil, err
	}
	f := frame{dir: owner.dir, key: name, implicit: inherited}
	if inherited != nil {
		f.hint = inherited.kind
	}
	child, err := b.build(ctx, def, f)
	if err != nil {
		return nil, errs.With(err, "property %q", name)
	}
	return child, nil
}

// resolveImport returns the declaration to serialize and the base to
// delegate to. An imported resource with "@export" contributes its export.
func (b *builder) resolveImport(ctx context.Context, imp any, dir string) (any, *Resource, error) {
	var (
		decl     any
		imported *Resource
		err      error
	)
	switch t := imp.(type) {
	case string:
		decl = t
		imported, err = b.load(ctx, t, dir)
	case *Resource:
		decl = t
		imported = t
	default:
		imported, err = b.build(ctx, t, frame{dir: dir})
		decl = imported
	}
	if err != nil {
		return nil, nil, err
	}

	b.env.Logger.Debug().
		Str("import", imported.describe()).
		Msg("import resolved")

	if imported.export != nil {
		return decl, imported.export, nil
	}
	return decl, imported, nil
}

func (b *builder) buildMethod(ctx context.Context, d *definition, dir string) (*methodSpec, error) {
	m := &methodSpec{
		hasInput: d.hasInput,
		before:   d.before,
		run:      d.run,
		after:    d.after,
		listen:   d.listen,
		unlisten: d.unlisten,
	}
	if !d.hasInput {
		return m, nil
	}

	var variadic, subInput string
	for _, k := range d.input.Keys() {
		if err := validateKey(k); err != nil {
			return nil, err
		}
		raw, _ := d.input.Get(k)
		p, err := b.build(ctx, raw, frame{dir: dir, key: k})
		if err != nil {
			return nil, errs.With(err, "parameter %q", k)
		}
		if p.param.Variadic {
			if variadic != "" {
				return nil, errs.New(errs.CodeDefinition, "parameters %q and %q are both variadic", variadic, k)
			}
			variadic = k
		}
		if p.param.SubInput {
			if subInput != "" {
				return nil, errs.New(errs.CodeDefinition, "parameters %q and %q both take the sub-input", subInput, k)
			}
			subInput = k
		}
		m.params = append(m.params, p)
	}
	return m, nil
}

func (b *builder) checkRuntime(req string) error {
	if req == "" || b.env.Checker == nil || b.env.RuntimeName == "" {
		return nil
	}
	name, rng := splitRequirement(req)
	if name != b.env.RuntimeName {
		return errs.New(errs.CodeDefinition, "requires runtime %q, running %q", name, b.env.RuntimeName)
	}
	if rng == "" {
		return nil
	}
	ok, err := b.env.Checker.IsCompatible(rng, b.env.RuntimeVersion)
	if err != nil {
		return errs.Wrap(errs.CodeDefinition, err, "invalid runtime requirement %q", req)
	}
	if !ok {
		return errs.New(errs.CodeDefinition, "requires %s, running %s@%s", req, b.env.RuntimeName, b.env.RuntimeVersion)
	}
	return nil
}

// deriveKind picks the kind of a definition: the declared "@type", which
// must extend every base kind; else the first specific base kind; else the
// kind implied by the definition itself.
func deriveKind(d *definition, bases []*Resource) (value.Kind, error) {
	if d.kind != "" {
		for _, b := range bases {
			if !d.kind.Extends(b.kind) {
				return "", errs.New(errs.CodeTypeMismatch, "type %s is incompatible with inherited type %s", d.kind, b.kind)
			}
		}
		return d.kind, nil
	}

	var kind value.Kind
	for _, b := range bases {
		if b.kind == value.KindResource || b.kind == "" {
			continue
		}
		if kind == "" {
			kind = b.kind
			continue
		}
		if !kind.Extends(b.kind) {
			return "", errs.New(errs.CodeTypeMismatch, "inherited types %s and %s are incompatible", kind, b.kind)
		}
	}
	if kind != "" {
		return kind, nil
	}
	return impliedKind(d.isMethodLike(), d.value, d.def)
}

// impliedKind is the kind a definition without "@type" or typed bases gets.
func impliedKind(methodLike bool, val, def any) (value.Kind, error) {
	switch {
	case methodLike:
		return value.KindMethod, nil
	case val != nil:
		return value.Infer(val)
	case def != nil:
		return value.Infer(def)
	}
	return value.KindResource, nil
}

// convertAttr converts a definition value to the kind's native shape.
// Binary values are written as data URIs and are parsed.
func convertAttr(v any, k value.Kind) (any, error) {
	if !k.IsValued() {
		return nil, errs.New(errs.CodeTypeMismatch, "kind %s cannot hold a value", k)
	}
	return value.Convert(v, k, value.ConvertOptions{Parse: k == value.KindBinary})
}

func isRemote(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}
