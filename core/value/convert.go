package value

import (
	"encoding/base64"
	"math"
	"strconv"
	"strings"

	"github.com/artpar/resrun/core/errs"
	"gopkg.in/yaml.v3"
)

// BinaryPrefix starts the serialized form of a binary value.
const BinaryPrefix = "data:;base64,"

// ConvertOptions controls Convert.
type ConvertOptions struct {
	// Parse coerces string input into the target kind.
	Parse bool
}

// Convert returns v in the native shape of kind k.
//
// Without Parse, v must already have the kind's shape (numbers of any Go
// numeric type are accepted and widened to float64). With Parse, string
// input is coerced. A nil v is the undefined value and always converts.
func Convert(v any, k Kind, opts ConvertOptions) (any, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok && opts.Parse && k != KindString {
		return parseString(s, k)
	}

	switch k {
	case KindBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case KindNumber:
		if f, ok := toFloat(v); ok {
			return f, nil
		}
	case KindString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case KindArray:
		if a, ok := toArray(v); ok {
			return a, nil
		}
	case KindObject:
		if m, ok := toObject(v); ok {
			return m, nil
		}
	case KindBinary:
		if b, ok := v.([]byte); ok {
			return append([]byte(nil), b...), nil
		}
	case KindResource, KindMethod, KindCommand, KindMacro:
		return nil, errs.New(errs.CodeTypeMismatch, "kind %s does not hold a value", k)
	default:
		return nil, errs.New(errs.CodeTypeMismatch, "unknown kind %q", k)
	}

	return nil, errs.New(errs.CodeTypeMismatch, "expected a %s, got %s", k, describe(v))
}

func parseString(s string, k Kind) (any, error) {
	switch k {
	case KindBoolean:
		return ParseBool(s)
	case KindNumber:
		return ParseNumber(s)
	case KindArray:
		parsed, err := parseLiteral(s)
		if err != nil {
			return nil, err
		}
		if a, ok := toArray(parsed); ok {
			return a, nil
		}
		return nil, errs.New(errs.CodeParse, "%q is not an array literal", s)
	case KindObject:
		parsed, err := parseLiteral(s)
		if err != nil {
			return nil, err
		}
		if m, ok := toObject(parsed); ok {
			return m, nil
		}
		return nil, errs.New(errs.CodeParse, "%q is not an object literal", s)
	case KindBinary:
		return ParseBinary(s)
	}
	return nil, errs.New(errs.CodeTypeMismatch, "cannot parse a string into kind %s", k)
}

// ParseBool parses 1/true/yes/on and 0/false/no/off, case-insensitively.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, errs.New(errs.CodeParse, "%q is not a boolean", s)
}

// ParseNumber parses a finite decimal number. Hexadecimal forms,
// infinities and NaN are rejected.
func ParseNumber(s string) (float64, error) {
	t := strings.TrimSpace(s)
	digits := strings.TrimLeft(t, "+-")
	if strings.HasPrefix(digits, "0x") || strings.HasPrefix(digits, "0X") {
		return 0, errs.New(errs.CodeParse, "%q is not a decimal number", s)
	}
	f, err := strconv.ParseFloat(t, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errs.New(errs.CodeParse, "%q is not a number", s)
	}
	return f, nil
}

// ParseBinary decodes a "data:[<mediatype>];base64,<payload>" URI.
func ParseBinary(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "data:") {
		return nil, errs.New(errs.CodeParse, "binary values must be data URIs")
	}
	header, payload, ok := strings.Cut(s[len("data:"):], ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return nil, errs.New(errs.CodeParse, "binary data URI must be base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, errs.Wrap(errs.CodeParse, err, "decode binary payload")
	}
	return data, nil
}

// FormatBinary encodes b as a data URI.
func FormatBinary(b []byte) string {
	return BinaryPrefix + base64.StdEncoding.EncodeToString(b)
}

func parseLiteral(s string) (any, error) {
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(s), &node); err != nil {
		return nil, errs.Wrap(errs.CodeParse, err, "malformed literal %q", s)
	}
	v, err := FromNode(&node)
	if err != nil {
		return nil, errs.Wrap(errs.CodeParse, err, "malformed literal %q", s)
	}
	return Plain(v), nil
}

// Infer returns the kind of a raw literal.
func Infer(v any) (Kind, error) {
	switch v.(type) {
	case nil:
		return KindString, nil
	case bool:
		return KindBoolean, nil
	case string:
		return KindString, nil
	case []byte:
		return KindBinary, nil
	}
	if _, ok := toFloat(v); ok {
		return KindNumber, nil
	}
	if _, ok := toArray(v); ok {
		return KindArray, nil
	}
	return "", errs.New(errs.CodeInference, "cannot infer a kind from %s", describe(v))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func toArray(v any) ([]any, bool) {
	switch a := v.(type) {
	case []any:
		return Plain(a).([]any), true
	case []string:
		out := make([]any, len(a))
		for i, s := range a {
			out[i] = s
		}
		return out, true
	case []float64:
		out := make([]any, len(a))
		for i, f := range a {
			out[i] = f
		}
		return out, true
	}
	return nil, false
}

func toObject(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return Plain(m).(map[string]any), true
	case *OrderedMap:
		return Plain(m).(map[string]any), true
	}
	return nil, false
}

func describe(v any) string {
	switch v.(type) {
	case nil:
		return "undefined"
	case bool:
		return "boolean"
	case string:
		return "string"
	case []byte:
		return "binary"
	case map[string]any, *OrderedMap:
		return "object"
	}
	if _, ok := toFloat(v); ok {
		return "number"
	}
	if _, ok := toArray(v); ok {
		return "array"
	}
	return "unsupported value"
}
