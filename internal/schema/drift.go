package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Drift compares file-defined directories with stored directories of the
// same id and describes every difference in their fields. Directories
// present on only one side are not drift.
func Drift(defined, stored []*Directory) []string {
	byID := make(map[string]*Directory, len(stored))
	for _, d := range stored {
		byID[d.ID] = d
	}

	var out []string
	for _, want := range defined {
		got, ok := byID[want.ID]
		if !ok {
			continue
		}
		out = append(out, fieldDrift(want, got)...)
	}
	sort.Strings(out)
	return out
}

func fieldDrift(want, got *Directory) []string {
	var out []string
	add := func(format string, args ...any) {
		out = append(out, want.Name+": "+fmt.Sprintf(format, args...))
	}
	if !strings.EqualFold(want.Name, got.Name) {
		add("stored as %q", got.Name)
	}

	stored := make(map[string]*Field, len(got.Fields))
	for _, f := range got.Fields {
		stored[strings.ToLower(f.Name)] = f
	}
	for _, f := range want.Fields {
		key := strings.ToLower(f.Name)
		s, ok := stored[key]
		if !ok {
			add("field %s is not stored", f.Name)
			continue
		}
		delete(stored, key)
		if s.Type != f.Type {
			add("field %s is %s, stored as %s", f.Name, f.Type, s.Type)
		}
		if s.ID != f.ID {
			add("field %s has id %s, stored as %s", f.Name, f.ID, s.ID)
		}
		if s.Required != f.Required {
			add("field %s required=%t, stored as %t", f.Name, f.Required, s.Required)
		}
	}
	for _, s := range stored {
		add("stored field %s is not defined", s.Name)
	}
	return out
}
