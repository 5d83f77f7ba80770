package jsonutil

import (
	"encoding/json"
	"reflect"
)

// Normalize round-trips a value through JSON so that structurally identical
// values decode to the same Go representation (all numbers become float64,
// all maps become map[string]any, all lists become []any). Values that cannot
// be marshaled are returned unchanged.
func Normalize(v any) any {
	if v == nil {
		return nil
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}

	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

// Equal reports whether two values are structurally equal after JSON
// normalization. This is value equality, not reference equality: two maps
// with the same keys and values compare equal, as do 1 and 1.0.
func Equal(a, b any) bool {
	return reflect.DeepEqual(Normalize(a), Normalize(b))
}

// IsEmpty reports whether a field value carries no information: nil or the
// empty string. Zero numbers and false are deliberately not empty.
func IsEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}
