package query

import (
	"fmt"
	"strings"
)

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// ParseDirection accepts asc/desc in any case.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToUpper(strings.TrimSpace(s))) {
	case Asc, "":
		return Asc, nil
	case Desc:
		return Desc, nil
	}
	return "", fmt.Errorf("invalid sort direction %q", s)
}

// Sort orders records by one field.
type Sort struct {
	Field     string    `json:"field"`
	Direction Direction `json:"direction"`
}

// Sorting is an ordered sort list in which each field appears at most once.
type Sorting []Sort

// Apply sorts by field in the given direction. A field already in the list
// keeps its position and takes the new direction.
func (s Sorting) Apply(field string, dir Direction) Sorting {
	for i := range s {
		if s[i].Field == field {
			out := append(Sorting(nil), s...)
			out[i].Direction = dir
			return out
		}
	}
	return append(append(Sorting(nil), s...), Sort{Field: field, Direction: dir})
}

// Remove drops a field from the list.
func (s Sorting) Remove(field string) Sorting {
	out := make(Sorting, 0, len(s))
	for _, e := range s {
		if e.Field != field {
			out = append(out, e)
		}
	}
	return out
}

// Encode renders the list as "field:asc,field:desc".
func (s Sorting) Encode() string {
	parts := make([]string, len(s))
	for i, e := range s {
		parts[i] = e.Field + ":" + strings.ToLower(string(e.Direction))
	}
	return strings.Join(parts, ",")
}

// ParseSorting decodes the Encode form. Repeated fields collapse to the last
// direction given.
func ParseSorting(raw string) (Sorting, error) {
	var out Sorting
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		field, dirText := part, ""
		if i := strings.LastIndexByte(part, ':'); i >= 0 {
			field, dirText = part[:i], part[i+1:]
		}
		if field == "" {
			return nil, fmt.Errorf("invalid sort %q", part)
		}
		dir, err := ParseDirection(dirText)
		if err != nil {
			return nil, err
		}
		out = out.Apply(field, dir)
	}
	return out, nil
}
