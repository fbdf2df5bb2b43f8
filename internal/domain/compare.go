package domain

import (
	"encoding/json"
	"reflect"
	"strconv"
)

// ScalarEqual compares two attribute values for equality.
// Handles type coercion for common cases including string-to-primitive
// conversion, so a scanner reporting "8080" matches a stored int64 8080.
func ScalarEqual(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}

	if a == b {
		return true
	}

	switch v := a.(type) {
	case string:
		if s, ok := b.(string); ok {
			return v == s
		}
		return v == FormatScalar(b)
	case int, int64, float64, bool:
		return FormatScalar(v) == FormatScalar(b)
	}

	// Fallback for anything a scanner smuggled past normalization
	return reflect.DeepEqual(a, b)
}

// FormatScalar converts an attribute value to its canonical string form
func FormatScalar(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case json.Number:
		return val.String()
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

// NormalizeScalar reduces decoded JSON/YAML values to the four scalar types
// stored in entity attributes: string, bool, int64, float64. Whole-number
// floats become int64 so that round-tripping through JSON does not produce
// spurious attribute changes.
func NormalizeScalar(v any) any {
	switch val := v.(type) {
	case nil, string, bool, int64:
		return val
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case uint64:
		return int64(val)
	case float32:
		return NormalizeScalar(float64(val))
	case float64:
		if val == float64(int64(val)) {
			return int64(val)
		}
		return val
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	default:
		return FormatScalar(val)
	}
}

// ScalarFloat extracts a numeric value from an attribute, returning false
// when the value is not numeric and not a parseable numeric string.
func ScalarFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case float64:
		return val, true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
