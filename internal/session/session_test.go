package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/dirconsole/internal/autocomplete"
	"github.com/matthewbaird/dirconsole/internal/query"
	"github.com/matthewbaird/dirconsole/internal/schema"
)

func reducer() Reducer {
	fields := []*schema.Field{
		{ID: "f-amount", Name: "amount", Type: schema.TypeDecimal, Meta: schema.FieldMeta{FieldOrder: 1}},
		{ID: "f-status", Name: "status", Type: schema.TypeBoolean, Meta: schema.FieldMeta{FieldOrder: 2}},
		{ID: "f-name", Name: "name", Type: schema.TypeString, Meta: schema.FieldMeta{FieldOrder: 3}},
		{ID: "f-customer", Name: "customer", Type: schema.TypeRelation, RelationID: "customers", Meta: schema.FieldMeta{FieldOrder: 4}},
	}
	return Reducer{Fields: fields, Engine: autocomplete.New(nil, nil, autocomplete.Options{})}
}

func item(t *testing.T, s State, label string) autocomplete.CompletionItem {
	t.Helper()
	for _, it := range s.Suggestions.Items {
		if it.Label == label {
			return it
		}
	}
	t.Fatalf("suggestion %q not offered; have %v", label, s.Suggestions.Items)
	return autocomplete.CompletionItem{}
}

func TestReduce_AcceptFieldOperatorAndValue(t *testing.T) {
	r := reducer()
	s := r.Init("invoices")

	s = r.Reduce(s, InputChanged{Seq: 1, Text: "amo"})
	assert.Equal(t, ModeText, s.Mode)
	assert.False(t, s.CanApply)

	s = r.Reduce(s, SuggestionAccepted{Item: item(t, s, "amount")})
	assert.Equal(t, "amount ", s.Input)
	require.NotNil(t, s.Parse.Field)
	assert.Equal(t, autocomplete.KindOperator, s.Suggestions.Items[0].Kind)

	s = r.Reduce(s, SuggestionAccepted{Item: item(t, s, "greaterThan")})
	assert.Equal(t, "amount greaterThan ", s.Input)
	assert.Equal(t, ModeValue, s.Mode)
	assert.False(t, s.CanApply)
	assert.Empty(t, s.Active)

	s = r.Reduce(s, InputChanged{Seq: 2, Text: "1000"})
	assert.Equal(t, "1000", s.ValueText)
	assert.True(t, s.CanApply)
	assert.Empty(t, s.Active, "typing never touches the active filters")

	s = r.Reduce(s, ValueCommitted{Value: "1000"})
	assert.Equal(t, query.ActiveFilters{"f-amount:greaterThan": "1000"}, s.Active)
	assert.Equal(t, ModeText, s.Mode)
	assert.Empty(t, s.Input)
}

func TestReduce_NoArgumentOperatorAppliesWithoutValueMode(t *testing.T) {
	r := reducer()
	s := r.Init("invoices")
	s = r.Reduce(s, InputChanged{Seq: 1, Text: "status "})
	s = r.Reduce(s, SuggestionAccepted{Item: item(t, s, "isTrue")})
	assert.Equal(t, ModeText, s.Mode)
	assert.True(t, s.CanApply)

	s = r.Reduce(s, ApplyRequested{})
	assert.Equal(t, query.ActiveFilters{"f-status:isTrue": "true"}, s.Active)
}

func TestReduce_ValueModeNeverParsesTheValue(t *testing.T) {
	r := reducer()
	s := r.Init("invoices")
	s = r.Reduce(s, InputChanged{Seq: 1, Text: "name "})
	s = r.Reduce(s, SuggestionAccepted{Item: item(t, s, "contains")})
	require.Equal(t, ModeValue, s.Mode)

	s = r.Reduce(s, InputChanged{Seq: 2, Text: "status isTrue"})
	assert.Equal(t, "f-name", s.Parse.Field.ID)
	s = r.Reduce(s, ApplyRequested{})
	assert.Equal(t, query.ActiveFilters{"f-name:contains": "status isTrue"}, s.Active)
}

func TestReduce_ApplyIncompleteIsRejected(t *testing.T) {
	r := reducer()
	s := r.Init("invoices")
	s = r.Reduce(s, InputChanged{Seq: 1, Text: "amount equals "})
	s = r.Reduce(s, ApplyRequested{})
	assert.Empty(t, s.Active)
	assert.Contains(t, s.Error, "requires an argument")
	assert.Equal(t, "amount equals ", s.Input)

	s = r.Reduce(s, InputChanged{Seq: 2, Text: "frobnicate equals 5"})
	assert.Contains(t, s.Error, "unknown reference")
	assert.False(t, s.CanApply)
	s = r.Reduce(s, ApplyRequested{})
	assert.Empty(t, s.Active)
}

func TestReduce_IllTypedArgumentBlocksApply(t *testing.T) {
	r := reducer()
	s := r.Init("invoices")
	s = r.Reduce(s, InputChanged{Seq: 1, Text: "amount greaterThan abc"})
	require.True(t, s.Parse.IsComplete)
	assert.False(t, s.CanApply)

	s = r.Reduce(s, ApplyRequested{})
	assert.Empty(t, s.Active)
	assert.False(t, s.CanApply)
	assert.Contains(t, s.Error, "not a number")
	assert.Equal(t, "amount greaterThan abc", s.Input)

	s = r.Reduce(s, InputChanged{Seq: 2, Text: "amount "})
	s = r.Reduce(s, SuggestionAccepted{Item: item(t, s, "lessThan")})
	require.Equal(t, ModeValue, s.Mode)
	s = r.Reduce(s, InputChanged{Seq: 3, Text: "ten"})
	assert.False(t, s.CanApply)
	s = r.Reduce(s, ValueCommitted{Value: "ten"})
	assert.Empty(t, s.Active)

	s = r.Reduce(s, InputChanged{Seq: 4, Text: "10"})
	assert.True(t, s.CanApply)
}

func TestReduce_StaleInputIgnored(t *testing.T) {
	r := reducer()
	s := r.Init("invoices")
	s = r.Reduce(s, InputChanged{Seq: 2, Text: "amount "})
	s = r.Reduce(s, InputChanged{Seq: 1, Text: "am"})
	assert.Equal(t, "amount ", s.Input)
}

func TestReduce_RelationLookupLatestWins(t *testing.T) {
	r := reducer()
	s := r.Init("invoices")
	s = r.Reduce(s, InputChanged{Seq: 1, Text: "customer equals "})
	require.Equal(t, ModeText, s.Mode)

	s = r.Reduce(s, InputChanged{Seq: 2, Text: "customer equals ac"})
	f, q, rev1, ok := s.PendingLookup()
	require.True(t, ok)
	assert.Equal(t, "f-customer", f.ID)
	assert.Equal(t, "ac", q)

	s = r.Reduce(s, InputChanged{Seq: 3, Text: "customer equals acm"})
	_, _, rev2, ok := s.PendingLookup()
	require.True(t, ok)

	s = r.Reduce(s, RelationLoaded{Revision: rev1, Items: []autocomplete.CompletionItem{{Label: "stale"}}})
	assert.True(t, s.Loading, "older lookup result is discarded")

	fresh := []autocomplete.CompletionItem{{Label: "Acme", Kind: autocomplete.KindValue, InsertText: "r-1", Selectable: true}}
	s = r.Reduce(s, RelationLoaded{Revision: rev2, Items: fresh})
	assert.False(t, s.Loading)
	assert.Equal(t, fresh, s.Suggestions.Items)
}

func TestReduce_RelationValueModeAcceptsCandidate(t *testing.T) {
	r := reducer()
	s := r.Init("invoices")
	s = r.Reduce(s, InputChanged{Seq: 1, Text: "customer "})
	s = r.Reduce(s, SuggestionAccepted{Item: item(t, s, "equals")})
	require.Equal(t, ModeValue, s.Mode)

	s = r.Reduce(s, InputChanged{Seq: 2, Text: "acm"})
	_, _, rev, ok := s.PendingLookup()
	require.True(t, ok)
	s = r.Reduce(s, RelationLoaded{Revision: rev, Items: []autocomplete.CompletionItem{
		{Label: "Acme", Kind: autocomplete.KindValue, InsertText: "r-1", Selectable: true},
	}})
	s = r.Reduce(s, SuggestionAccepted{Item: item(t, s, "Acme")})
	assert.Equal(t, "r-1", s.ValueText)
	assert.Equal(t, "Acme", s.ValueLabel)
	assert.False(t, s.Loading)

	s = r.Reduce(s, ApplyRequested{})
	assert.Equal(t, query.ActiveFilters{"f-customer:equals": "r-1"}, s.Active)
}

func TestReduce_RelationLoadError(t *testing.T) {
	r := reducer()
	s := r.Init("invoices")
	s = r.Reduce(s, InputChanged{Seq: 1, Text: "customer equals a"})
	_, _, rev, _ := s.PendingLookup()
	s = r.Reduce(s, RelationLoaded{Revision: rev, Err: errors.New("record store list: timeout")})
	assert.False(t, s.Loading)
	assert.Contains(t, s.Error, "timeout")
}

func TestReduce_SortCollapsesToLatestDirection(t *testing.T) {
	r := reducer()
	s := r.Init("invoices")
	s = r.Reduce(s, SortRequested{FieldID: "f-amount", Direction: query.Asc})
	s = r.Reduce(s, SortRequested{FieldID: "f-amount", Direction: query.Desc})
	assert.Equal(t, query.Sorting{{Field: "f-amount", Direction: query.Desc}}, s.Sorting)

	s = r.Reduce(s, SortRequested{FieldID: "f-ghost"})
	assert.Contains(t, s.Error, "unknown reference")
	assert.Len(t, s.Sorting, 1)
}

func TestReduce_RemoveAndClearFilters(t *testing.T) {
	r := reducer()
	s := r.Init("invoices")
	s = r.Reduce(s, InputChanged{Seq: 1, Text: "status isFalse "})
	s = r.Reduce(s, ApplyRequested{})
	s = r.Reduce(s, InputChanged{Seq: 2, Text: "amount lessThan 5"})
	s = r.Reduce(s, ApplyRequested{})
	require.Len(t, s.Active, 2)

	before := s
	s = r.Reduce(s, FilterRemoved{Key: "f-status:isFalse"})
	assert.Len(t, s.Active, 1)
	assert.Len(t, before.Active, 2, "reduce does not mutate its input")

	s = r.Reduce(s, FiltersCleared{})
	assert.Empty(t, s.Active)
}

func TestReduce_InputClearedLeavesValueMode(t *testing.T) {
	r := reducer()
	s := r.Init("invoices")
	s = r.Reduce(s, InputChanged{Seq: 1, Text: "amount "})
	s = r.Reduce(s, SuggestionAccepted{Item: item(t, s, "equals")})
	require.Equal(t, ModeValue, s.Mode)
	s = r.Reduce(s, InputCleared{})
	assert.Equal(t, ModeText, s.Mode)
	assert.Empty(t, s.Input)
}

func TestManager_Lifecycle(t *testing.T) {
	r := reducer()
	m := NewManager(time.Hour, time.Hour)
	sess := m.Create("invoices", r.Init("invoices"))
	assert.Same(t, sess, m.Get(sess.ID))

	st := sess.Dispatch(r, InputChanged{Seq: 1, Text: "amount "})
	assert.Equal(t, "amount ", st.Input)
	assert.Equal(t, st, sess.State())

	m.Remove(sess.ID)
	assert.Nil(t, m.Get(sess.ID))
}

func TestManager_CleanupDropsIdle(t *testing.T) {
	m := NewManager(time.Hour, time.Millisecond)
	sess := m.Create("invoices", State{})
	time.Sleep(5 * time.Millisecond)
	m.Cleanup()
	assert.Equal(t, 0, m.Len())
	assert.Nil(t, m.Get(sess.ID))
}
