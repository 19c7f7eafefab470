// Package query holds the retrieval parameters handed to the record store:
// the active filter set, the sort list and pagination, and their encoding as
// URL query parameters.
package query

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/matthewbaird/dirconsole/internal/filter"
	"github.com/matthewbaird/dirconsole/internal/schema"
)

// Sentinel arguments for operators that take no argument.
const (
	SentinelTrue     = "true"
	SentinelFalse    = "false"
	SentinelBlank    = "blank"
	SentinelNotBlank = "not_blank"
)

// Sentinel returns the fixed wire value of a no-argument operator, or "" for
// argument-taking operators.
func Sentinel(operator string) string {
	switch operator {
	case filter.OpIsTrue:
		return SentinelTrue
	case filter.OpIsFalse:
		return SentinelFalse
	case filter.OpBlank:
		return SentinelBlank
	case filter.OpNotBlank:
		return SentinelNotBlank
	}
	return ""
}

// ActiveFilters maps "fieldId:operator" to the argument, or to the operator's
// sentinel. A field carries at most one condition per operator.
type ActiveFilters map[string]string

// Apply folds a condition into the set, replacing any earlier argument for
// the same key. The condition is checked against its field first; an
// incomplete or ill-typed condition leaves the set unchanged.
func (a ActiveFilters) Apply(c filter.Condition, f *schema.Field) error {
	if f == nil || f.ID != c.FieldID {
		return &filter.SchemaError{Kind: filter.RefField, Token: c.FieldID}
	}
	if err := c.Check(f); err != nil {
		return err
	}
	op, _ := filter.LookupOperator(f.Type, c.Operator)
	value := c.Argument
	if !op.NeedsArgument {
		value = Sentinel(op.ID)
	}
	a[filter.Key(c.FieldID, op.ID)] = value
	return nil
}

// Remove drops one condition by key.
func (a ActiveFilters) Remove(key string) {
	delete(a, key)
}

// Clear drops every condition.
func (a ActiveFilters) Clear() {
	for k := range a {
		delete(a, k)
	}
}

// Clone returns an independent copy.
func (a ActiveFilters) Clone() ActiveFilters {
	out := make(ActiveFilters, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Conditions decodes the set into conditions ordered by key. Keys that do not
// decode are skipped.
func (a ActiveFilters) Conditions() []filter.Condition {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]filter.Condition, 0, len(keys))
	for _, k := range keys {
		fieldID, op, err := DecodeKey(k)
		if err != nil {
			continue
		}
		c := filter.Condition{FieldID: fieldID, Operator: op}
		if filter.NeedsArgument(op) {
			c.Argument = a[k]
		}
		out = append(out, c)
	}
	return out
}

// DecodeKey splits a "fieldId:operator" key. The operator is taken after the
// last colon so field ids may themselves contain colons.
func DecodeKey(key string) (fieldID, operator string, err error) {
	i := strings.LastIndexByte(key, ':')
	if i <= 0 || i == len(key)-1 {
		return "", "", fmt.Errorf("malformed filter key %q", key)
	}
	return key[:i], key[i+1:], nil
}

const filterParamPrefix = "filters["

// EncodeFilters writes each active filter as filters[fieldId:operator]=value.
func EncodeFilters(v url.Values, a ActiveFilters) {
	for k, arg := range a {
		v.Set(filterParamPrefix+k+"]", arg)
	}
}

// DecodeFilters reads every filters[...] parameter back into an ActiveFilters.
func DecodeFilters(v url.Values) (ActiveFilters, error) {
	out := make(ActiveFilters)
	for name, vals := range v {
		if !strings.HasPrefix(name, filterParamPrefix) || !strings.HasSuffix(name, "]") {
			continue
		}
		key := name[len(filterParamPrefix) : len(name)-1]
		if _, _, err := DecodeKey(key); err != nil {
			return nil, err
		}
		if len(vals) > 0 {
			out[key] = vals[len(vals)-1]
		}
	}
	return out, nil
}
