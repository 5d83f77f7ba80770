// Package schemas holds the per-entity-type required-field lists used for
// quality scoring. The lists are compiled in; entity types are extensible by
// editing required_fields.yaml.
package schemas

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed required_fields.yaml
var requiredFieldsYAML []byte

var requiredFields map[string][]string

func init() {
	if err := yaml.Unmarshal(requiredFieldsYAML, &requiredFields); err != nil {
		panic(fmt.Sprintf("schemas: invalid required_fields.yaml: %v", err))
	}
}

// RequiredFields returns the required-field list for an entity type, or nil
// if the type has no configured schema.
func RequiredFields(entityType string) []string {
	return requiredFields[entityType]
}

// EntityTypes returns all entity types with a configured schema.
func EntityTypes() []string {
	types := make([]string, 0, len(requiredFields))
	for t := range requiredFields {
		types = append(types, t)
	}
	return types
}
