package schema

import (
	"fmt"
	"strings"
)

// ConfigProblem is one defect in a directory definition.
type ConfigProblem struct {
	Directory string `json:"directory"`
	Field     string `json:"field,omitempty"`
	Message   string `json:"message"`
}

func (p ConfigProblem) String() string {
	if p.Field != "" {
		return fmt.Sprintf("%s.%s: %s", p.Directory, p.Field, p.Message)
	}
	return fmt.Sprintf("%s: %s", p.Directory, p.Message)
}

// ConfigErrors lists every problem found in a directory configuration.
// Validation never stops at the first defect.
type ConfigErrors []ConfigProblem

func (e ConfigErrors) Error() string {
	parts := make([]string, len(e))
	for i, p := range e {
		parts[i] = p.String()
	}
	return fmt.Sprintf("invalid directory configuration (%d problems): %s", len(e), strings.Join(parts, "; "))
}

// ValidateDirectory checks a directory definition. exists reports whether a
// directory id may be used as a relation target. The returned error, if any,
// is a ConfigErrors.
func ValidateDirectory(d *Directory, exists func(id string) bool) error {
	var problems ConfigErrors
	dirLabel := d.Name
	if dirLabel == "" {
		dirLabel = d.ID
	}
	add := func(field, format string, args ...any) {
		problems = append(problems, ConfigProblem{
			Directory: dirLabel,
			Field:     field,
			Message:   fmt.Sprintf(format, args...),
		})
	}

	if strings.TrimSpace(d.Name) == "" {
		add("", "directory name is required")
	}
	if d.Type != "" && !d.Type.Valid() {
		add("", "unknown directory_type %q", d.Type)
	}

	seen := make(map[string]int)
	for i, f := range d.Fields {
		label := f.Name
		if strings.TrimSpace(label) == "" {
			label = fmt.Sprintf("#%d", i+1)
			add(label, "field name is required")
		} else {
			key := strings.ToLower(f.Name)
			seen[key]++
			if seen[key] == 2 {
				add(label, "duplicate field name")
			}
		}

		switch {
		case f.Type == "":
			add(label, "field type is required")
		case !f.Type.Valid():
			add(label, "unknown field type %q", f.Type)
		}

		if f.Type == TypeRelation {
			if f.RelationID == "" {
				add(label, "relation field requires relation_id")
			} else if exists != nil && !exists(f.RelationID) {
				add(label, "relation_id %q does not reference an existing directory", f.RelationID)
			}
		} else if f.RelationID != "" {
			add(label, "relation_id is only allowed on relation fields")
		}

		if p := f.Meta.CascadeParent; p != "" {
			switch {
			case strings.EqualFold(p, f.Name):
				add(label, "field cannot cascade from itself")
			case d.FieldByName(p) == nil:
				add(label, "cascade parent %q is not a field of this directory", p)
			}
		}
	}

	if len(problems) > 0 {
		return problems
	}
	return nil
}
