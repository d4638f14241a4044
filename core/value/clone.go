package value

import (
	"bytes"
)

// Plain returns a deep copy of v in plain native shapes: ordered maps become
// map[string]any, typed slices become []any and Go numbers become float64.
// Values handed out by a resource are always Plain copies, so callers can
// never edit attached state in place.
func Plain(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case *OrderedMap:
		if t == nil {
			return nil
		}
		out := make(map[string]any, t.Len())
		for _, k := range t.keys {
			out[k] = Plain(t.values[k])
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Plain(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Plain(e)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out
	case []byte:
		return append([]byte(nil), t...)
	}
	if f, ok := toFloat(v); ok {
		return f
	}
	return v
}

// Clone returns a deep copy of v, keeping ordered maps ordered.
func Clone(v any) any {
	switch t := v.(type) {
	case *OrderedMap:
		if t == nil {
			return (*OrderedMap)(nil)
		}
		out := NewOrderedMap()
		for _, k := range t.keys {
			out.Set(k, Clone(t.values[k]))
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Clone(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Clone(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case []byte:
		return append([]byte(nil), t...)
	}
	return v
}

// Equal reports whether a and b are structurally equal.
// Numbers compare by value regardless of Go type; ordered maps compare
// key order as well as entries.
func Equal(a, b any) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case *OrderedMap:
		y, ok := b.(*OrderedMap)
		if !ok || x.Len() != y.Len() {
			return false
		}
		for i, k := range x.keys {
			if y.keys[i] != k || !Equal(x.values[k], y.values[k]) {
				return false
			}
		}
		return true
	case map[string]any:
		y, ok := b.(map[string]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, e := range x {
			f, ok := y[k]
			if !ok || !Equal(e, f) {
				return false
			}
		}
		return true
	case []byte:
		y, ok := b.([]byte)
		return ok && bytes.Equal(x, y)
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	}

	if xf, ok := toFloat(a); ok {
		yf, ok := toFloat(b)
		return ok && xf == yf
	}
	if xa, ok := toArray(a); ok {
		ya, ok := toArray(b)
		if !ok || len(xa) != len(ya) {
			return false
		}
		for i := range xa {
			if !Equal(xa[i], ya[i]) {
				return false
			}
		}
		return true
	}
	return false
}
