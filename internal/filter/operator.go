// Package filter implements the single-condition filter expression language:
// the per-type operator catalog, the re-entrant parser that turns free text
// into a (field, operator, argument) triple, and the errors it reports.
package filter

import (
	"strings"

	"github.com/matthewbaird/dirconsole/internal/schema"
)

// Operator ids.
const (
	OpEquals             = "equals"
	OpNotEqual           = "notEqual"
	OpContains           = "contains"
	OpNotContains        = "notContains"
	OpStartsWith         = "startsWith"
	OpEndsWith           = "endsWith"
	OpGreaterThan        = "greaterThan"
	OpGreaterThanOrEqual = "greaterThanOrEqual"
	OpLessThan           = "lessThan"
	OpLessThanOrEqual    = "lessThanOrEqual"
	OpBlank              = "blank"
	OpNotBlank           = "notBlank"
	OpIsTrue             = "isTrue"
	OpIsFalse            = "isFalse"
)

// Operator is one comparison offered for a semantic type.
type Operator struct {
	ID            string `json:"id"`
	Label         string `json:"label"`
	Description   string `json:"description"`
	NeedsArgument bool   `json:"needsArgument"`
}

var operatorDefs = map[string]Operator{
	OpEquals:             {OpEquals, "equals", "Value is exactly the argument", true},
	OpNotEqual:           {OpNotEqual, "does not equal", "Value differs from the argument or is blank", true},
	OpContains:           {OpContains, "contains", "Value contains the argument, ignoring case", true},
	OpNotContains:        {OpNotContains, "does not contain", "Value does not contain the argument", true},
	OpStartsWith:         {OpStartsWith, "starts with", "Value begins with the argument", true},
	OpEndsWith:           {OpEndsWith, "ends with", "Value ends with the argument", true},
	OpGreaterThan:        {OpGreaterThan, "greater than", "Value is greater than the argument", true},
	OpGreaterThanOrEqual: {OpGreaterThanOrEqual, "greater than or equal", "Value is at least the argument", true},
	OpLessThan:           {OpLessThan, "less than", "Value is less than the argument", true},
	OpLessThanOrEqual:    {OpLessThanOrEqual, "less than or equal", "Value is at most the argument", true},
	OpBlank:              {OpBlank, "is blank", "Field has no value", false},
	OpNotBlank:           {OpNotBlank, "is not blank", "Field has a value", false},
	OpIsTrue:             {OpIsTrue, "is true", "Value is true", false},
	OpIsFalse:            {OpIsFalse, "is false", "Value is false", false},
}

var (
	textOps     = []string{OpEquals, OpContains, OpNotContains, OpNotEqual, OpStartsWith, OpEndsWith, OpBlank, OpNotBlank}
	orderedOps  = []string{OpEquals, OpNotEqual, OpGreaterThan, OpGreaterThanOrEqual, OpLessThan, OpLessThanOrEqual, OpBlank, OpNotBlank}
	booleanOps  = []string{OpIsTrue, OpIsFalse, OpBlank, OpNotBlank}
	defaultOps  = []string{OpEquals, OpNotEqual, OpBlank, OpNotBlank}
	relationOps = defaultOps
)

func catalogIDs(t schema.SemanticType) []string {
	switch {
	case t.Textual():
		return textOps
	case t.Numeric(), t.Temporal():
		return orderedOps
	case t == schema.TypeBoolean:
		return booleanOps
	case t == schema.TypeRelation:
		return relationOps
	}
	return defaultOps
}

// OperatorsFor returns the ordered operators supported by a semantic type.
// Unknown types get the default equality set.
func OperatorsFor(t schema.SemanticType) []Operator {
	ids := catalogIDs(t)
	ops := make([]Operator, len(ids))
	for i, id := range ids {
		ops[i] = operatorDefs[id]
	}
	return ops
}

// LookupOperator finds an operator of type t by id, case-insensitively.
func LookupOperator(t schema.SemanticType, id string) (Operator, bool) {
	for _, opID := range catalogIDs(t) {
		if strings.EqualFold(opID, id) {
			return operatorDefs[opID], true
		}
	}
	return Operator{}, false
}

// NeedsArgument reports whether the operator id takes an argument. Unknown
// ids are treated as argument-taking.
func NeedsArgument(id string) bool {
	op, ok := operatorDefs[id]
	return !ok || op.NeedsArgument
}

// operatorIDs returns the operator ids of type t, for typo suggestions.
func operatorIDs(t schema.SemanticType) []string {
	ids := catalogIDs(t)
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}
