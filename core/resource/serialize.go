package resource

import (
	"github.com/artpar/resrun/core/value"
)

// Serialize returns the canonical compact definition of the resource:
//
//   - nil when the resource has no attributes, value or children;
//   - the bare value when the value is the only thing to record;
//   - otherwise an ordered map of "@" attributes followed by children.
//
// "@type" is written only when it cannot be implied. Creating a resource
// from the result and serializing again yields the same definition.
func (r *Resource) Serialize() any {
	out, hasValue := r.definition()
	switch {
	case out.Len() == 0:
		return nil
	case out.Len() == 1 && hasValue:
		v, _ := out.Get(AttrValue)
		return v
	}
	return out
}

// definition returns the full attribute map, reporting whether "@value" was
// recorded.
func (r *Resource) definition() (*value.OrderedMap, bool) {
	out := value.NewOrderedMap()
	r.meta.put(out)

	valueOut, hasValueOut, defaultOut, hasDefaultOut := r.serializedValues()
	if implied := r.impliedKind(valueOut, defaultOut, hasValueOut, hasDefaultOut); implied != r.kind {
		out.Set(AttrType, string(r.kind))
	}

	switch len(r.imports) {
	case 0:
	case 1:
		out.Set(AttrImport, serializeImport(r.imports[0]))
	default:
		list := make([]any, len(r.imports))
		for i, imp := range r.imports {
			list[i] = serializeImport(imp)
		}
		out.Set(AttrImport, list)
	}
	if r.export != nil {
		out.Set(AttrExport, orEmpty(r.export.Serialize()))
	}

	if r.param.Position != nil {
		out.Set(AttrPosition, float64(*r.param.Position))
	}
	if r.param.Variadic {
		out.Set(AttrIsVariadic, true)
	}
	if r.param.SubInput {
		out.Set(AttrIsSubInput, true)
	}

	if hasDefaultOut {
		out.Set(AttrDefault, defaultOut)
	}
	if hasValueOut {
		out.Set(AttrValue, valueOut)
	}

	if m := r.method; m != nil {
		if m.hasInput {
			params := value.NewOrderedMap()
			for _, p := range m.params {
				params.Set(p.key, orEmpty(p.Serialize()))
			}
			out.Set(AttrInput, params)
		}
		putExpressions(out, AttrBefore, m.before)
		putExpressions(out, AttrRun, m.run)
		putExpressions(out, AttrAfter, m.after)
		putNames(out, AttrListen, m.listen)
		putNames(out, AttrUnlisten, m.unlisten)
	}

	for _, k := range r.childKeys {
		if s := r.children[k].Serialize(); s != nil {
			out.Set(k, s)
		}
	}

	return out, hasValueOut
}

// serializedValues returns the value and default to record. A value equal
// to the own default is implied by it; without a default, a value equal to
// the inherited one is implied by the bases.
func (r *Resource) serializedValues() (val any, hasVal bool, def any, hasDef bool) {
	if r.hasDefault {
		def, hasDef = serializeValue(r.def), true
	}
	if !r.hasValue {
		return val, false, def, hasDef
	}
	if r.hasDefault && value.Equal(r.val, r.def) {
		return val, false, def, hasDef
	}
	if !r.hasDefault && len(r.bases) > 0 {
		for _, b := range r.bases {
			if inherited := b.Value(); inherited != nil {
				if value.Equal(r.val, inherited) {
					return val, false, def, hasDef
				}
				break
			}
		}
	}
	return serializeValue(r.val), true, def, hasDef
}

// impliedKind is the kind a definition would get without "@type", given
// the values it records.
func (r *Resource) impliedKind(val, def any, hasVal, hasDef bool) value.Kind {
	var kind value.Kind
	for _, b := range r.bases {
		if b.kind != value.KindResource && b.kind != "" {
			kind = b.kind
			break
		}
	}
	if kind != "" {
		return kind
	}

	methodLike := r.meta.Implementation != ""
	if m := r.method; m != nil {
		methodLike = methodLike || m.hasInput || len(m.before) > 0 || len(m.run) > 0 ||
			len(m.after) > 0 || len(m.listen) > 0 || len(m.unlisten) > 0
	}
	if !hasVal {
		val = nil
	}
	if !hasDef {
		def = nil
	}
	implied, err := impliedKind(methodLike, val, def)
	if err != nil {
		return ""
	}
	return implied
}

func serializeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return value.FormatBinary(b)
	}
	return value.Plain(v)
}

func serializeImport(imp any) any {
	switch t := imp.(type) {
	case string:
		return t
	case *Resource:
		if t.location != "" {
			return t.location
		}
		def, _ := t.definition()
		return def
	}
	return imp
}

// orEmpty keeps an empty definition in places where its presence matters.
func orEmpty(v any) any {
	if v == nil {
		return value.NewOrderedMap()
	}
	return v
}

func putExpressions(out *value.OrderedMap, key string, list []any) {
	switch {
	case len(list) == 0:
	case len(list) == 1:
		if s, ok := list[0].(string); ok {
			out.Set(key, s)
			return
		}
		out.Set(key, value.Plain(list))
	default:
		out.Set(key, value.Plain(list))
	}
}

func putNames(out *value.OrderedMap, key string, names []string) {
	switch len(names) {
	case 0:
	case 1:
		out.Set(key, names[0])
	default:
		out.Set(key, stringList(names))
	}
}
