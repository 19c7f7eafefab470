package record

import (
	"errors"
	"strings"

	"github.com/matthewbaird/dirconsole/internal/schema"
	"github.com/matthewbaird/dirconsole/internal/types"
)

// coerceInputs converts raw inputs into typed values keyed by field id. A nil
// value in the result marks a field to clear. With full set, required fields
// missing from values are reported too. All problems are collected.
func coerceInputs(dir *schema.Directory, values []Input, full bool) (map[string]types.Value, error) {
	out := make(map[string]types.Value, len(values))
	var errs []FieldError

	for _, in := range values {
		f := dir.Field(in.FieldID)
		if f == nil {
			errs = append(errs, FieldError{FieldID: in.FieldID, Message: "unknown field"})
			continue
		}
		if _, dup := out[f.ID]; dup {
			errs = append(errs, FieldError{FieldID: f.ID, Field: f.Name, Message: "field supplied more than once"})
			continue
		}
		raw := in.Value
		if s, ok := raw.(string); ok && strings.TrimSpace(s) == "" {
			raw = nil
		}
		v, err := types.Coerce(f.Type, raw)
		if err != nil {
			var ce *types.CoercionError
			msg := err.Error()
			if errors.As(err, &ce) {
				msg = ce.Reason
			}
			errs = append(errs, FieldError{FieldID: f.ID, Field: f.Name, Message: msg})
			continue
		}
		if v == nil && f.Required {
			errs = append(errs, FieldError{FieldID: f.ID, Field: f.Name, Message: "value is required"})
			continue
		}
		out[f.ID] = v
	}

	if full {
		for _, f := range dir.OrderedFields() {
			if _, ok := out[f.ID]; !ok && f.Required && !hasError(errs, f.ID) {
				errs = append(errs, FieldError{FieldID: f.ID, Field: f.Name, Message: "value is required"})
			}
		}
	}

	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	return out, nil
}

func hasError(errs []FieldError, fieldID string) bool {
	for _, e := range errs {
		if e.FieldID == fieldID {
			return true
		}
	}
	return false
}

// orderedValues renders a value map in the directory's field order.
func orderedValues(dir *schema.Directory, vals map[string]types.Value) []RecordValue {
	out := make([]RecordValue, 0, len(vals))
	for _, f := range dir.OrderedFields() {
		if v := vals[f.ID]; v != nil {
			out = append(out, RecordValue{FieldID: f.ID, Value: v})
		}
	}
	return out
}
