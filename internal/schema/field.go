// Package schema provides the field schema registry for user-defined directories.
//
// A directory is a record type declared at runtime: it owns an ordered set of
// typed fields, and its records are stored as independent field/value pairs.
// The registry is consumed by the filter parser (field detection), the
// autocomplete engine, the record store (value coercion) and the cascading
// resolver.
package schema

import (
	"sort"
	"strings"
)

// SemanticType classifies how a field's values are stored, compared and
// which filter operators apply to it.
type SemanticType string

const (
	TypeString   SemanticType = "string"
	TypeText     SemanticType = "text"
	TypeNumber   SemanticType = "number"
	TypeInteger  SemanticType = "integer"
	TypeDecimal  SemanticType = "decimal"
	TypeDate     SemanticType = "date"
	TypeDatetime SemanticType = "datetime"
	TypeBoolean  SemanticType = "boolean"
	TypeRelation SemanticType = "relation"
	TypeJSON     SemanticType = "json"
	TypeFile     SemanticType = "file"
)

// SemanticTypes lists every accepted type in declaration order.
var SemanticTypes = []SemanticType{
	TypeString, TypeText, TypeNumber, TypeInteger, TypeDecimal,
	TypeDate, TypeDatetime, TypeBoolean, TypeRelation, TypeJSON, TypeFile,
}

// ParseSemanticType normalizes a type name. Matching is case-insensitive.
func ParseSemanticType(s string) (SemanticType, bool) {
	t := SemanticType(strings.ToLower(strings.TrimSpace(s)))
	return t, t.Valid()
}

// Valid reports whether t is a known semantic type.
func (t SemanticType) Valid() bool {
	for _, k := range SemanticTypes {
		if k == t {
			return true
		}
	}
	return false
}

// Numeric returns true for number, integer and decimal.
func (t SemanticType) Numeric() bool {
	switch t {
	case TypeNumber, TypeInteger, TypeDecimal:
		return true
	}
	return false
}

// Temporal returns true for date and datetime.
func (t SemanticType) Temporal() bool {
	return t == TypeDate || t == TypeDatetime
}

// Textual returns true for string and text.
func (t SemanticType) Textual() bool {
	return t == TypeString || t == TypeText
}

// DirectoryType tags where a directory lives in the console.
type DirectoryType string

const (
	DirectoryModule  DirectoryType = "module"
	DirectoryCompany DirectoryType = "company"
	DirectorySystem  DirectoryType = "system"
)

// Valid reports whether d is one of the known directory types.
func (d DirectoryType) Valid() bool {
	switch d {
	case DirectoryModule, DirectoryCompany, DirectorySystem:
		return true
	}
	return false
}

// FieldMeta is the metadata bag attached to a field. Pointer flags
// distinguish "unset" (default true) from an explicit false.
type FieldMeta struct {
	IsFilterable     *bool             `json:"isFilterable,omitempty"`
	IsVisibleOnTable *bool             `json:"isVisibleOnTable,omitempty"`
	FieldOrder       int               `json:"fieldOrder"`
	CascadeParent    string            `json:"cascadeParent,omitempty"`   // name of the parent field
	CascadeRequired  bool              `json:"cascadeRequired,omitempty"` // dependent must be selected
	Hints            map[string]string `json:"hints,omitempty"`
}

// Field is one typed attribute of a directory.
type Field struct {
	ID          string       `json:"id"`
	DirectoryID string       `json:"directory_id"`
	Name        string       `json:"name"`
	Type        SemanticType `json:"type"`
	Required    bool         `json:"required"`
	RelationID  string       `json:"relation_id,omitempty"`
	Meta        FieldMeta    `json:"metadata"`
}

// Filterable reports whether the field may appear in filter expressions.
func (f *Field) Filterable() bool {
	return f.Meta.IsFilterable == nil || *f.Meta.IsFilterable
}

// VisibleOnTable reports whether the field is shown as a table column.
func (f *Field) VisibleOnTable() bool {
	return f.Meta.IsVisibleOnTable == nil || *f.Meta.IsVisibleOnTable
}

// Directory is a user-defined record type.
type Directory struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Icon   string        `json:"icon,omitempty"`
	Type   DirectoryType `json:"directory_type"`
	Fields []*Field      `json:"fields"`
}

// Field returns the field with the given id, or nil.
func (d *Directory) Field(id string) *Field {
	for _, f := range d.Fields {
		if f.ID == id {
			return f
		}
	}
	return nil
}

// FieldByName looks a field up by name, case-insensitively.
func (d *Directory) FieldByName(name string) *Field {
	for _, f := range d.Fields {
		if strings.EqualFold(f.Name, name) {
			return f
		}
	}
	return nil
}

// OrderedFields returns the fields sorted by fieldOrder, then name.
func (d *Directory) OrderedFields() []*Field {
	out := make([]*Field, len(d.Fields))
	copy(out, d.Fields)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Meta.FieldOrder != out[j].Meta.FieldOrder {
			return out[i].Meta.FieldOrder < out[j].Meta.FieldOrder
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// FilterableFields returns the filterable fields in display order.
func (d *Directory) FilterableFields() []*Field {
	var out []*Field
	for _, f := range d.OrderedFields() {
		if f.Filterable() {
			out = append(out, f)
		}
	}
	return out
}

// Dependents returns the fields whose cascade parent is the named field.
func (d *Directory) Dependents(parentName string) []*Field {
	var out []*Field
	for _, f := range d.OrderedFields() {
		if f.Meta.CascadeParent != "" && strings.EqualFold(f.Meta.CascadeParent, parentName) {
			out = append(out, f)
		}
	}
	return out
}

// BoolPtr is a helper for metadata flags.
func BoolPtr(b bool) *bool { return &b }
