// Package value implements the type coercion layer: value kinds, conversion
// of external input into native shapes, kind inference, and the deep
// clone/equality helpers that keep attached values immutable.
//
// Native shapes:
//
//	boolean -> bool
//	number  -> float64
//	string  -> string
//	array   -> []any
//	object  -> map[string]any
//	binary  -> []byte (serialized as "data:;base64,<payload>")
//
// Behavioral kinds (method, command, macro) and the generic resource kind
// never carry a value.
package value

// Kind is the category of a resource.
type Kind string

const (
	KindResource Kind = "resource"
	KindBoolean  Kind = "boolean"
	KindNumber   Kind = "number"
	KindString   Kind = "string"
	KindArray    Kind = "array"
	KindObject   Kind = "object"
	KindBinary   Kind = "binary"
	KindMethod   Kind = "method"
	KindCommand  Kind = "command"
	KindMacro    Kind = "macro"
)

// Kinds lists every supported kind.
func Kinds() []Kind {
	return []Kind{
		KindResource, KindBoolean, KindNumber, KindString, KindArray,
		KindObject, KindBinary, KindMethod, KindCommand, KindMacro,
	}
}

// ParseKind returns the kind named s.
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds() {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// IsValued reports whether the kind carries a value.
func (k Kind) IsValued() bool {
	switch k {
	case KindBoolean, KindNumber, KindString, KindArray, KindObject, KindBinary:
		return true
	default:
		return false
	}
}

// IsScalar reports whether the kind's value excludes children.
// Object and array values are literal structures and may coexist with
// children.
func (k Kind) IsScalar() bool {
	switch k {
	case KindBoolean, KindNumber, KindString, KindBinary:
		return true
	default:
		return false
	}
}

// IsCallable reports whether the kind is a method, command or macro.
func (k Kind) IsCallable() bool {
	switch k {
	case KindMethod, KindCommand, KindMacro:
		return true
	default:
		return false
	}
}

// Extends reports whether a resource of kind k may shadow one of kind base.
//
// Every kind extends the generic resource kind; command extends method and
// macro extends command.
func (k Kind) Extends(base Kind) bool {
	if k == base || base == KindResource || base == "" {
		return true
	}
	switch k {
	case KindCommand:
		return base == KindMethod
	case KindMacro:
		return base == KindMethod || base == KindCommand
	}
	return false
}

func (k Kind) String() string {
	return string(k)
}
