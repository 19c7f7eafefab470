// Package cascade resolves cascading fields: dependents whose permitted
// values are narrowed by a parent field's chosen value. It validates
// dependent selections and persists them per parent value and per record.
package cascade

import (
	"context"
	"fmt"
	"strings"
)

// Field is one dependent of a parent field.
type Field struct {
	FieldID  string   `json:"field_id"`
	Name     string   `json:"name"`
	Required bool     `json:"required"`
	Options  []string `json:"options,omitempty"` // values seen with the parent value
	Selected string   `json:"selected,omitempty"`
}

// Config declares which fields of a directory depend on a parent field.
// Resolve fills in ParentValue, Options and the stored selections.
type Config struct {
	DirectoryID   string      `json:"directory_id"`
	ParentFieldID string      `json:"parent_field_id" validate:"required"`
	ParentValue   string      `json:"parent_value,omitempty"`
	Fields        []Field     `json:"fields" validate:"dive"`
	Selections    []Selection `json:"selections,omitempty"`
}

// Selection is a dependent field value chosen under a parent value.
type Selection struct {
	FieldName   string `json:"fieldName" validate:"required"`
	Value       string `json:"value"`
	ParentField string `json:"parentField,omitempty"`
	ParentValue string `json:"parentValue,omitempty"`
}

// ValidationResult is the outcome for one selection. Results are
// independent: an invalid selection never hides problems in the others.
type ValidationResult struct {
	Index     int    `json:"index"`
	FieldName string `json:"fieldName"`
	IsValid   bool   `json:"isValid"`
	Message   string `json:"message,omitempty"`
}

// ValidationError carries the results of a rejected store.
type ValidationError struct {
	Results []ValidationResult `json:"results"`
}

func (e *ValidationError) Error() string {
	var parts []string
	for _, r := range e.Results {
		if !r.IsValid {
			parts = append(parts, fmt.Sprintf("#%d %s: %s", r.Index, r.FieldName, r.Message))
		}
	}
	return "invalid cascading selections: " + strings.Join(parts, "; ")
}

// Valid reports whether every result is valid.
func Valid(results []ValidationResult) bool {
	for _, r := range results {
		if !r.IsValid {
			return false
		}
	}
	return true
}

// Store persists cascading configuration and selections.
type Store interface {
	// Config returns the stored config for a parent field, or nil.
	Config(ctx context.Context, directoryID, parentFieldID string) (*Config, error)
	PutConfig(ctx context.Context, cfg Config) error

	// ReplaceSelections sets the selections stored under a parent value,
	// dropping any stored before.
	ReplaceSelections(ctx context.Context, directoryID, parentFieldID, parentValue string, sels []Selection) error
	Selections(ctx context.Context, directoryID, parentFieldID, parentValue string) ([]Selection, error)

	// ReplaceRecordValues sets the selections saved for a record.
	ReplaceRecordValues(ctx context.Context, recordID string, sels []Selection) error
	RecordValues(ctx context.Context, recordID string) ([]Selection, error)
}
