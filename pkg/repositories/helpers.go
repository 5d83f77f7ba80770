package repositories

import (
	"encoding/json"
	"fmt"
)

// jsonbValue marshals a value for insertion into a JSONB column. Nil values
// stay nil so the column stores SQL NULL rather than the JSON literal null.
func jsonbValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal jsonb value: %w", err)
	}
	return raw, nil
}

// unmarshalJSONB decodes a JSONB column into dst, treating empty and SQL/JSON
// null as absent.
func unmarshalJSONB(raw []byte, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// nullableString converts an empty string to nil for nullable text columns.
func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
