package filter

import (
	"github.com/matthewbaird/dirconsole/internal/schema"
	"github.com/matthewbaird/dirconsole/internal/types"
)

// Condition is a completed filter: field, operator and, for argument-taking
// operators, the argument text.
type Condition struct {
	FieldID  string `json:"field_id"`
	Operator string `json:"operator"`
	Argument string `json:"argument,omitempty"`
}

// Key returns the active-filter key "fieldId:operator".
func Key(fieldID, operator string) string {
	return fieldID + ":" + operator
}

// Key returns the condition's active-filter key.
func (c Condition) Key() string { return Key(c.FieldID, c.Operator) }

// Check validates the condition against its field: the operator must be in
// the field type's catalog, argument-taking operators need an argument that
// coerces to the field's type and no-argument operators must not carry one.
// Substring operators take any text.
func (c Condition) Check(f *schema.Field) error {
	op, ok := LookupOperator(f.Type, c.Operator)
	if !ok {
		return &SchemaError{
			Kind:       RefOperator,
			Token:      c.Operator,
			Suggestion: SuggestFrom(c.Operator, operatorIDs(f.Type), 3),
		}
	}
	if op.NeedsArgument && c.Argument == "" {
		return &ApplyError{Reason: "operator " + op.ID + " requires an argument"}
	}
	if !op.NeedsArgument && c.Argument != "" {
		return &ApplyError{Reason: "operator " + op.ID + " takes no argument"}
	}
	if op.NeedsArgument && !substring(op.ID) {
		if _, err := types.Coerce(f.Type, c.Argument); err != nil {
			return &ApplyError{Reason: err.Error()}
		}
	}
	return nil
}

func substring(op string) bool {
	switch op {
	case OpContains, OpNotContains, OpStartsWith, OpEndsWith:
		return true
	}
	return false
}
