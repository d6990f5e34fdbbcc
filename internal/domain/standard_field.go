package domain

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// FieldType represents the declared data type of a standard field.
type FieldType string

const (
	FieldTypeString    FieldType = "string"
	FieldTypeInteger   FieldType = "integer"
	FieldTypeFloat     FieldType = "float"
	FieldTypeBoolean   FieldType = "boolean"
	FieldTypeTimestamp FieldType = "timestamp"
)

// ValidationRule holds the optional constraints attached to a standard field.
// Zero values mean "no constraint".
type ValidationRule struct {
	Pattern       string   `json:"pattern,omitempty"`
	Min           *float64 `json:"min,omitempty"`
	Max           *float64 `json:"max,omitempty"`
	MinLength     *int     `json:"min_length,omitempty"`
	MaxLength     *int     `json:"max_length,omitempty"`
	AllowedValues []string `json:"allowed_values,omitempty"`
}

// IsZero reports whether the rule carries no constraints at all.
func (r ValidationRule) IsZero() bool {
	return r.Pattern == "" && r.Min == nil && r.Max == nil &&
		r.MinLength == nil && r.MaxLength == nil && len(r.AllowedValues) == 0
}

// StandardFieldDefinition is one entry of the field dictionary: a canonical
// target attribute within a business domain, plus the aliases used for
// matching source columns onto it. Read-only at pipeline runtime.
type StandardFieldDefinition struct {
	ID          uuid.UUID      `json:"id"`
	Domain      string         `json:"domain"`
	Name        string         `json:"name"`
	DisplayName string         `json:"display_name"`
	Type        FieldType      `json:"type"`
	Required    bool           `json:"required"`
	Aliases     []string       `json:"aliases"`
	Validation  ValidationRule `json:"validation"`
}

// MatchesName reports whether the normalized column name equals the field name.
func (d StandardFieldDefinition) MatchesName(column string) bool {
	return NormalizeColumnName(column) == d.Name
}

// MatchesAlias reports whether the normalized column name equals one of the
// field's aliases.
func (d StandardFieldDefinition) MatchesAlias(column string) bool {
	normalized := NormalizeColumnName(column)
	for _, alias := range d.Aliases {
		if NormalizeColumnName(alias) == normalized {
			return true
		}
	}
	return false
}

// GetValidationAsJSONB returns the validation rule as JSONB for storage.
func (d StandardFieldDefinition) GetValidationAsJSONB() (json.RawMessage, error) {
	return json.Marshal(d.Validation)
}

// NormalizeColumnName lowers and trims a source column name for matching.
func NormalizeColumnName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify converts an arbitrary column label into a snake_case identifier.
func Slugify(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	value = slugPattern.ReplaceAllString(value, "_")
	return strings.Trim(value, "_")
}
