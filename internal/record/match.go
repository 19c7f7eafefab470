package record

import (
	"strings"

	"github.com/matthewbaird/dirconsole/internal/filter"
	"github.com/matthewbaird/dirconsole/internal/query"
	"github.com/matthewbaird/dirconsole/internal/schema"
	"github.com/matthewbaird/dirconsole/internal/types"
)

// predicate is an active filter resolved against the directory schema, with
// its argument coerced to the field's type.
type predicate struct {
	field *schema.Field
	op    string
	arg   types.Value
}

// compileFilters resolves every active filter. Unknown fields or operators
// are SchemaErrors; arguments that do not fit the field type are reported in
// a ValidationError.
func compileFilters(dir *schema.Directory, filters query.ActiveFilters) ([]predicate, error) {
	var (
		out  []predicate
		errs []FieldError
	)
	for _, c := range filters.Conditions() {
		f := dir.Field(c.FieldID)
		if f == nil {
			return nil, &filter.SchemaError{Kind: filter.RefField, Token: c.FieldID}
		}
		op, ok := filter.LookupOperator(f.Type, c.Operator)
		if !ok {
			return nil, &filter.SchemaError{Kind: filter.RefOperator, Token: c.Operator}
		}
		p := predicate{field: f, op: op.ID}
		if op.NeedsArgument {
			if c.Argument == "" {
				return nil, &filter.ApplyError{Reason: "operator " + op.ID + " requires an argument"}
			}
			if p.arg, ok = filterArgument(f, op.ID, c.Argument, &errs); !ok {
				continue
			}
		}
		out = append(out, p)
	}
	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	return out, nil
}

// filterArgument coerces a filter argument. Substring operators keep the
// raw text.
func filterArgument(f *schema.Field, op, arg string, errs *[]FieldError) (types.Value, bool) {
	switch op {
	case filter.OpContains, filter.OpNotContains, filter.OpStartsWith, filter.OpEndsWith:
		return types.StringValue(arg), true
	}
	v, err := types.Coerce(f.Type, arg)
	if err != nil {
		*errs = append(*errs, FieldError{FieldID: f.ID, Field: f.Name, Message: "filter argument: " + err.Error()})
		return nil, false
	}
	return v, true
}

// matches evaluates one predicate against a stored value (nil when blank).
func (p predicate) matches(v types.Value) bool {
	switch p.op {
	case filter.OpBlank:
		return v == nil
	case filter.OpNotBlank:
		return v != nil
	case filter.OpIsTrue:
		b, ok := v.(types.BooleanValue)
		return ok && bool(b)
	case filter.OpIsFalse:
		b, ok := v.(types.BooleanValue)
		return ok && !bool(b)
	case filter.OpNotEqual:
		return v == nil || types.Compare(v, p.arg) != 0
	case filter.OpNotContains:
		return v == nil || !strings.Contains(strings.ToLower(v.String()), strings.ToLower(p.arg.String()))
	}

	if v == nil {
		return false
	}
	switch p.op {
	case filter.OpEquals:
		return types.Compare(v, p.arg) == 0
	case filter.OpContains:
		return strings.Contains(strings.ToLower(v.String()), strings.ToLower(p.arg.String()))
	case filter.OpStartsWith:
		return strings.HasPrefix(strings.ToLower(v.String()), strings.ToLower(p.arg.String()))
	case filter.OpEndsWith:
		return strings.HasSuffix(strings.ToLower(v.String()), strings.ToLower(p.arg.String()))
	case filter.OpGreaterThan:
		return types.Compare(v, p.arg) > 0
	case filter.OpGreaterThanOrEqual:
		return types.Compare(v, p.arg) >= 0
	case filter.OpLessThan:
		return types.Compare(v, p.arg) < 0
	case filter.OpLessThanOrEqual:
		return types.Compare(v, p.arg) <= 0
	}
	return false
}

// searchable reports whether free-text search looks at a field.
func searchable(f *schema.Field) bool {
	return f.Type.Textual() || f.Type == schema.TypeRelation
}

// compileSorting resolves sort fields against the directory.
func compileSorting(dir *schema.Directory, s query.Sorting) ([]*schema.Field, error) {
	out := make([]*schema.Field, len(s))
	for i, e := range s {
		f := dir.Field(e.Field)
		if f == nil {
			return nil, &filter.SchemaError{Kind: filter.RefField, Token: e.Field}
		}
		out[i] = f
	}
	return out, nil
}

// groupPredicate builds the equality test used by bulk deletion.
func groupPredicate(dir *schema.Directory, fieldID, value string) (predicate, error) {
	f := dir.Field(fieldID)
	if f == nil {
		return predicate{}, &ValidationError{Errors: []FieldError{{FieldID: fieldID, Message: "unknown group field"}}}
	}
	if strings.TrimSpace(value) == "" {
		return predicate{}, &ValidationError{Errors: []FieldError{{FieldID: f.ID, Field: f.Name, Message: "group value is required"}}}
	}
	arg, err := types.Coerce(f.Type, value)
	if err != nil {
		return predicate{}, &ValidationError{Errors: []FieldError{{FieldID: f.ID, Field: f.Name, Message: err.Error()}}}
	}
	return predicate{field: f, op: filter.OpEquals, arg: arg}, nil
}
