package query

import (
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/dirconsole/internal/filter"
	"github.com/matthewbaird/dirconsole/internal/schema"
)

var (
	amount = &schema.Field{ID: "f-amount", Name: "amount", Type: schema.TypeDecimal}
	status = &schema.Field{ID: "f-status", Name: "status", Type: schema.TypeBoolean}
	name   = &schema.Field{ID: "f-name", Name: "name", Type: schema.TypeString}
)

func TestActiveFilters_ApplyArgument(t *testing.T) {
	af := ActiveFilters{}
	st := filter.Parse("amount greaterThan 1000", []*schema.Field{amount})
	c, err := st.Condition()
	require.NoError(t, err)

	require.NoError(t, af.Apply(c, amount))
	assert.Equal(t, ActiveFilters{"f-amount:greaterThan": "1000"}, af)

	c.Argument = "2000"
	require.NoError(t, af.Apply(c, amount))
	assert.Len(t, af, 1)
	assert.Equal(t, "2000", af["f-amount:greaterThan"])
}

func TestActiveFilters_ApplyNoArgumentUsesSentinel(t *testing.T) {
	af := ActiveFilters{}
	require.NoError(t, af.Apply(filter.Condition{FieldID: status.ID, Operator: filter.OpIsTrue}, status))
	require.NoError(t, af.Apply(filter.Condition{FieldID: name.ID, Operator: filter.OpNotBlank}, name))
	assert.Equal(t, ActiveFilters{
		"f-status:isTrue": "true",
		"f-name:notBlank": "not_blank",
	}, af)
}

func TestActiveFilters_ApplyRejectsIncomplete(t *testing.T) {
	af := ActiveFilters{}
	err := af.Apply(filter.Condition{FieldID: amount.ID, Operator: filter.OpEquals}, amount)
	var ae *filter.ApplyError
	require.True(t, errors.As(err, &ae))
	assert.Empty(t, af)

	err = af.Apply(filter.Condition{FieldID: amount.ID, Operator: filter.OpContains, Argument: "x"}, amount)
	var se *filter.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Empty(t, af)
}

func TestActiveFilters_ApplyChecksArgumentType(t *testing.T) {
	af := ActiveFilters{"f-amount:lessThan": "10"}
	due := &schema.Field{ID: "f-due", Name: "due", Type: schema.TypeDate}

	err := af.Apply(filter.Condition{FieldID: amount.ID, Operator: filter.OpGreaterThan, Argument: "abc"}, amount)
	var ae *filter.ApplyError
	require.True(t, errors.As(err, &ae))
	assert.Contains(t, ae.Error(), "not a number")
	assert.Error(t, af.Apply(filter.Condition{FieldID: due.ID, Operator: filter.OpEquals, Argument: "soon"}, due))
	assert.Error(t, af.Apply(filter.Condition{FieldID: amount.ID, Operator: filter.OpEquals, Argument: "NaN"}, amount))
	assert.Equal(t, ActiveFilters{"f-amount:lessThan": "10"}, af)

	require.NoError(t, af.Apply(filter.Condition{FieldID: name.ID, Operator: filter.OpContains, Argument: "12abc"}, name))
	require.NoError(t, af.Apply(filter.Condition{FieldID: due.ID, Operator: filter.OpGreaterThan, Argument: "2024-01-31"}, due))
	assert.Len(t, af, 3)
}

func TestActiveFilters_RemoveClearClone(t *testing.T) {
	af := ActiveFilters{"a:equals": "1", "b:blank": "blank"}
	cp := af.Clone()
	af.Remove("a:equals")
	assert.Len(t, af, 1)
	assert.Len(t, cp, 2)
	af.Clear()
	assert.Empty(t, af)
}

func TestActiveFilters_Conditions(t *testing.T) {
	af := ActiveFilters{"f-status:isFalse": "false", "f-amount:lessThan": "5"}
	assert.Equal(t, []filter.Condition{
		{FieldID: "f-amount", Operator: "lessThan", Argument: "5"},
		{FieldID: "f-status", Operator: "isFalse"},
	}, af.Conditions())
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	conds := []filter.Condition{
		{FieldID: "f-amount", Operator: filter.OpGreaterThan, Argument: "1000"},
		{FieldID: "urn:field:7", Operator: filter.OpEquals, Argument: "a b"},
		{FieldID: "f-status", Operator: filter.OpIsTrue},
	}
	for _, c := range conds {
		fieldID, op, err := DecodeKey(c.Key())
		require.NoError(t, err)
		assert.Equal(t, c.FieldID, fieldID)
		assert.Equal(t, c.Operator, op)
	}

	af := ActiveFilters{"f-amount:greaterThan": "1000", "urn:field:7:equals": "a b", "f-status:isTrue": "true"}
	v := url.Values{}
	EncodeFilters(v, af)
	assert.Equal(t, "1000", v.Get("filters[f-amount:greaterThan]"))

	got, err := DecodeFilters(v)
	require.NoError(t, err)
	assert.Equal(t, af, got)
}

func TestDecodeKey_Malformed(t *testing.T) {
	for _, k := range []string{"", "nocolon", ":equals", "field:"} {
		_, _, err := DecodeKey(k)
		assert.Error(t, err, k)
	}
}

func TestSorting_ReapplyReplacesDirection(t *testing.T) {
	var s Sorting
	s = s.Apply("a", Asc)
	s = s.Apply("b", Asc)
	s = s.Apply("a", Desc)
	assert.Equal(t, Sorting{{"a", Desc}, {"b", Asc}}, s)

	s = s.Remove("a")
	assert.Equal(t, Sorting{{"b", Asc}}, s)
}

func TestSorting_ApplyDoesNotAlias(t *testing.T) {
	base := Sorting{{"a", Asc}}
	next := base.Apply("a", Desc)
	assert.Equal(t, Asc, base[0].Direction)
	assert.Equal(t, Desc, next[0].Direction)
}

func TestParseSorting(t *testing.T) {
	s, err := ParseSorting("a:asc, b:DESC,a:desc")
	require.NoError(t, err)
	assert.Equal(t, Sorting{{"a", Desc}, {"b", Desc}}, s)
	assert.Equal(t, "a:desc,b:desc", s.Encode())

	_, err = ParseSorting("a:sideways")
	assert.Error(t, err)
}

func TestListParams_RoundTrip(t *testing.T) {
	p := ListParams{
		CompanyID: "c1",
		Search:    "acme",
		Filters:   ActiveFilters{"f-amount:greaterThan": "10"},
		Sorting:   Sorting{{"f-amount", Desc}},
		Page:      Page{Number: 3, Size: 50},
	}
	got, err := ParseListParams(p.Values())
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestParseListParams_Defaults(t *testing.T) {
	p, err := ParseListParams(url.Values{"page_size": {"1000"}})
	require.NoError(t, err)
	assert.Equal(t, Page{Number: 1, Size: MaxPageSize}, p.Page)
	assert.Empty(t, p.Filters)
	assert.Equal(t, 0, Page{}.Offset())
	assert.Equal(t, 40, Page{Number: 3, Size: 20}.Offset())

	_, err = ParseListParams(url.Values{"page": {"x"}})
	assert.Error(t, err)
}
