package resource

import (
	"math"
	"strings"

	"github.com/artpar/resrun/core/errs"
	"github.com/artpar/resrun/core/value"
)

// definition is the canonical shape of a raw definition.
type definition struct {
	meta Meta
	kind value.Kind

	hasValue   bool
	value      any
	hasDefault bool
	def        any

	imports   []any
	export    any
	hasExport bool

	param paramSpec

	input    *value.OrderedMap
	hasInput bool
	before   []any
	run      []any
	after    []any
	listen   []string
	unlisten []string

	children *value.OrderedMap
}

// paramSpec marks a resource used as a method parameter.
type paramSpec struct {
	Position *int
	Variadic bool
	SubInput bool
}

func (p paramSpec) isZero() bool {
	return p.Position == nil && !p.Variadic && !p.SubInput
}

func (d *definition) isMethodLike() bool {
	return d.hasInput || len(d.before) > 0 || len(d.run) > 0 || len(d.after) > 0 ||
		len(d.listen) > 0 || len(d.unlisten) > 0 || d.meta.Implementation != ""
}

// normalize turns a raw definition into its canonical shape. A map without
// attributes is a literal value when hint is object or array, and a
// container of children otherwise. Any other non-map is a literal value.
func normalize(raw any, hint value.Kind) (*definition, error) {
	d := &definition{children: value.NewOrderedMap()}

	var m *value.OrderedMap
	switch t := raw.(type) {
	case nil:
		return d, nil
	case *Resource:
		d.imports = []any{t}
		return d, nil
	case *value.OrderedMap:
		m = t
	case map[string]any:
		m = value.OrderedFrom(t)
	default:
		d.hasValue = true
		d.value = t
		return d, nil
	}

	hasAttr := false
	for _, k := range m.Keys() {
		if strings.HasPrefix(k, "@") {
			hasAttr = true
			break
		}
	}
	if !hasAttr && (hint == value.KindObject || hint == value.KindArray) {
		d.hasValue = true
		d.value = m
		return d, nil
	}

	for _, k := range m.Keys() {
		v, _ := m.Get(k)
		if !strings.HasPrefix(k, "@") {
			d.children.Set(k, v)
			continue
		}
		if err := d.setAttr(k, v); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *definition) setAttr(key string, v any) error {
	var err error
	switch key {
	case AttrName:
		if d.meta.Name, err = asString(key, v); err == nil {
			err = ValidateName(d.meta.Name)
		}
	case AttrAliases:
		d.meta.Aliases, err = asStrings(key, v)
	case AttrVersion:
		d.meta.Version, err = asString(key, v)
	case AttrDescription:
		d.meta.Description, err = asString(key, v)
	case AttrComment:
		d.meta.Comment, err = asString(key, v)
	case AttrAuthors:
		d.meta.Authors, err = asStrings(key, v)
	case AttrRepository:
		d.meta.Repository, err = asString(key, v)
	case AttrLicense:
		d.meta.License, err = asString(key, v)
	case AttrExamples:
		switch t := value.Plain(v).(type) {
		case []any:
			d.meta.Examples = t
		case nil:
		default:
			d.meta.Examples = []any{t}
		}
	case AttrRuntime:
		d.meta.Runtime, err = asString(key, v)
	case AttrImplementation:
		d.meta.Implementation, err = asString(key, v)
	case AttrHidden:
		d.meta.Hidden, err = asBool(key, v)
	case AttrType:
		var s string
		if s, err = asString(key, v); err == nil {
			k, ok := value.ParseKind(s)
			if !ok {
				return errs.New(errs.CodeDefinition, "unsupported type %q", s)
			}
			d.kind = k
		}
	case AttrImport:
		switch t := v.(type) {
		case nil:
		case []any:
			d.imports = append(d.imports, t...)
		case []string:
			for _, s := range t {
				d.imports = append(d.imports, s)
			}
		default:
			d.imports = []any{t}
		}
		for _, imp := range d.imports {
			switch imp.(type) {
			case string, *value.OrderedMap, map[string]any, *Resource:
			default:
				return errs.New(errs.CodeDefinition, "%s entries must be references or definitions, got %T", key, imp)
			}
		}
	case AttrExport:
		d.export = v
		d.hasExport = true
	case AttrPosition:
		var n int
		if n, err = asIndex(key, v); err == nil {
			d.param.Position = &n
		}
	case AttrIsVariadic:
		d.param.Variadic, err = asBool(key, v)
	case AttrIsSubInput:
		d.param.SubInput, err = asBool(key, v)
	case AttrDefault:
		d.hasDefault = true
		d.def = v
	case AttrValue:
		d.hasValue = true
		d.value = v
	case AttrInput:
		switch t := v.(type) {
		case nil:
			d.input = value.NewOrderedMap()
		case *value.OrderedMap:
			d.input = t
		case map[string]any:
			d.input = value.OrderedFrom(t)
		default:
			return errs.New(errs.CodeDefinition, "%s must be a mapping of parameters, got %T", key, v)
		}
		d.hasInput = true
	case AttrBefore:
		d.before, err = asExpressions(key, v)
	case AttrRun:
		d.run, err = asExpressions(key, v)
	case AttrAfter:
		d.after, err = asExpressions(key, v)
	case AttrListen:
		d.listen, err = asStrings(key, v)
	case AttrUnlisten:
		d.unlisten, err = asStrings(key, v)
	default:
		return errs.New(errs.CodeDefinition, "unknown attribute %q", key)
	}
	return err
}

func asString(key string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", errs.New(errs.CodeDefinition, "%s must be a string, got %T", key, v)
	}
	return s, nil
}

func asStrings(key string, v any) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{t}, nil
	case []string:
		return append([]string(nil), t...), nil
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, errs.New(errs.CodeDefinition, "%s entries must be strings, got %T", key, e)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, errs.New(errs.CodeDefinition, "%s must be a string or a list of strings, got %T", key, v)
}

func asBool(key string, v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, errs.New(errs.CodeDefinition, "%s must be a boolean, got %T", key, v)
	}
	return b, nil
}

func asIndex(key string, v any) (int, error) {
	f, err := value.Convert(v, value.KindNumber, value.ConvertOptions{})
	if err != nil {
		return 0, errs.Wrap(errs.CodeDefinition, err, "%s must be a number", key)
	}
	n := f.(float64)
	if n < 0 || n != math.Trunc(n) {
		return 0, errs.New(errs.CodeDefinition, "%s must be a non-negative integer, got %v", key, n)
	}
	return int(n), nil
}

// asExpressions reads an expression list. A string is a single source; a
// list holds sources that are strings or token lists.
func asExpressions(key string, v any) ([]any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []any{t}, nil
	case []string:
		return stringList(t), nil
	case []any:
		out := make([]any, 0, len(t))
		for _, e := range t {
			switch src := e.(type) {
			case string:
				out = append(out, src)
			case []any:
				out = append(out, value.Plain(src))
			default:
				return nil, errs.New(errs.CodeDefinition, "%s entries must be strings or token lists, got %T", key, e)
			}
		}
		return out, nil
	}
	return nil, errs.New(errs.CodeDefinition, "%s must be an expression or a list of expressions, got %T", key, v)
}
