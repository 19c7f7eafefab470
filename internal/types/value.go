// Package types provides the typed values stored in directory records.
//
// Every record value is a Value whose concrete type is selected by the
// owning field's semantic type. Raw input (JSON-decoded request bodies,
// filter arguments, stored strings) goes through Coerce, which either
// produces a well-typed Value or a CoercionError; values are never silently
// truncated or reinterpreted.
package types

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/matthewbaird/dirconsole/internal/schema"
)

// Value is a single typed record value.
type Value interface {
	// String returns the canonical storage encoding.
	String() string
	isValue()
}

// StringValue holds string, text and file values.
type StringValue string

// NumberValue holds number, integer and decimal values.
type NumberValue float64

// BooleanValue holds boolean values.
type BooleanValue bool

// DateValue holds date and datetime values. DateOnly values encode as
// YYYY-MM-DD, others as RFC 3339 in UTC.
type DateValue struct {
	Time     time.Time
	DateOnly bool
}

// RelationValue holds the id of a record in the relation's target directory.
type RelationValue string

// JSONValue holds a compact serialized JSON document.
type JSONValue json.RawMessage

func (StringValue) isValue()   {}
func (NumberValue) isValue()   {}
func (BooleanValue) isValue()  {}
func (DateValue) isValue()     {}
func (RelationValue) isValue() {}
func (JSONValue) isValue()     {}

func (v StringValue) String() string   { return string(v) }
func (v RelationValue) String() string { return string(v) }
func (v JSONValue) String() string     { return string(v) }

func (v NumberValue) String() string {
	return strconv.FormatFloat(float64(v), 'f', -1, 64)
}

func (v BooleanValue) String() string {
	return strconv.FormatBool(bool(v))
}

func (v DateValue) String() string {
	if v.DateOnly {
		return v.Time.Format(dateLayout)
	}
	return v.Time.UTC().Format(time.RFC3339)
}

// MarshalJSON renders values the way API clients expect them: numbers and
// booleans as JSON scalars, JSON documents inline, everything else as strings.
func (v NumberValue) MarshalJSON() ([]byte, error)  { return []byte(v.String()), nil }
func (v BooleanValue) MarshalJSON() ([]byte, error) { return []byte(v.String()), nil }
func (v DateValue) MarshalJSON() ([]byte, error)    { return json.Marshal(v.String()) }
func (v JSONValue) MarshalJSON() ([]byte, error) {
	if len(v) == 0 {
		return []byte("null"), nil
	}
	return []byte(v), nil
}

const dateLayout = "2006-01-02"

var datetimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	dateLayout,
}

// Coerce converts raw input into the Value for a semantic type. A nil raw
// value yields (nil, nil): the field is blank.
func Coerce(t schema.SemanticType, raw any) (Value, error) {
	if raw == nil {
		return nil, nil
	}
	if n, ok := raw.(json.Number); ok {
		raw = string(n)
	}

	switch {
	case t.Textual(), t == schema.TypeFile:
		return coerceString(t, raw)
	case t.Numeric():
		return coerceNumber(t, raw)
	case t.Temporal():
		return coerceDate(t, raw)
	case t == schema.TypeBoolean:
		return coerceBool(raw)
	case t == schema.TypeRelation:
		return coerceRelation(raw)
	case t == schema.TypeJSON:
		return coerceJSON(raw)
	}
	return nil, newCoercionError(t, raw, "unsupported semantic type")
}

// Parse decodes a stored string back into a Value.
func Parse(t schema.SemanticType, stored string) (Value, error) {
	return Coerce(t, stored)
}

func coerceString(t schema.SemanticType, raw any) (Value, error) {
	switch v := raw.(type) {
	case string:
		return StringValue(v), nil
	case float64:
		return StringValue(strconv.FormatFloat(v, 'f', -1, 64)), nil
	case int:
		return StringValue(strconv.Itoa(v)), nil
	case int64:
		return StringValue(strconv.FormatInt(v, 10)), nil
	case bool:
		return StringValue(strconv.FormatBool(v)), nil
	}
	return nil, newCoercionError(t, raw, "expected a scalar")
}

func coerceNumber(t schema.SemanticType, raw any) (Value, error) {
	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case string:
		s := strings.TrimSpace(v)
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, newCoercionError(t, raw, "not a number")
		}
		f = parsed
	default:
		return nil, newCoercionError(t, raw, "not a number")
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, newCoercionError(t, raw, "not a finite number")
	}
	if t == schema.TypeInteger && f != float64(int64(f)) {
		return nil, newCoercionError(t, raw, "not a whole number")
	}
	return NumberValue(f), nil
}

func coerceDate(t schema.SemanticType, raw any) (Value, error) {
	var s string
	switch v := raw.(type) {
	case string:
		s = strings.TrimSpace(v)
	case time.Time:
		return DateValue{Time: v, DateOnly: t == schema.TypeDate}, nil
	default:
		return nil, newCoercionError(t, raw, "expected an ISO-8601 string")
	}

	for _, layout := range datetimeLayouts {
		ts, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if t == schema.TypeDate {
			y, m, d := ts.Date()
			return DateValue{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), DateOnly: true}, nil
		}
		return DateValue{Time: ts.UTC()}, nil
	}
	return nil, newCoercionError(t, raw, "not an ISO-8601 date")
}

func coerceBool(raw any) (Value, error) {
	switch v := raw.(type) {
	case bool:
		return BooleanValue(v), nil
	case float64:
		if v == 0 || v == 1 {
			return BooleanValue(v == 1), nil
		}
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes":
			return BooleanValue(true), nil
		case "false", "0", "no":
			return BooleanValue(false), nil
		}
	}
	return nil, newCoercionError(schema.TypeBoolean, raw, "not a boolean")
}

func coerceRelation(raw any) (Value, error) {
	switch v := raw.(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			return RelationValue(s), nil
		}
	case float64:
		if v == float64(int64(v)) {
			return RelationValue(strconv.FormatInt(int64(v), 10)), nil
		}
	}
	return nil, newCoercionError(schema.TypeRelation, raw, "expected a record id")
}

func coerceJSON(raw any) (Value, error) {
	if s, ok := raw.(string); ok {
		if !json.Valid([]byte(s)) {
			return nil, newCoercionError(schema.TypeJSON, raw, "not a JSON document")
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, []byte(s)); err != nil {
			return nil, newCoercionError(schema.TypeJSON, raw, err.Error())
		}
		return JSONValue(buf.Bytes()), nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, newCoercionError(schema.TypeJSON, raw, err.Error())
	}
	return JSONValue(b), nil
}

// Compare orders two values of the same field. Blank (nil) values sort
// first. Mixed concrete types fall back to comparing storage encodings.
func Compare(a, b Value) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	switch av := a.(type) {
	case NumberValue:
		if bv, ok := b.(NumberValue); ok {
			return cmpFloat(float64(av), float64(bv))
		}
	case DateValue:
		if bv, ok := b.(DateValue); ok {
			return av.Time.Compare(bv.Time)
		}
	case BooleanValue:
		if bv, ok := b.(BooleanValue); ok {
			switch {
			case av == bv:
				return 0
			case !bool(av):
				return -1
			}
			return 1
		}
	}
	return strings.Compare(a.String(), b.String())
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
