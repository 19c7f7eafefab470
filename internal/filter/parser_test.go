package filter

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/dirconsole/internal/schema"
)

func testFields() []*schema.Field {
	return []*schema.Field{
		{ID: "f-amount", Name: "amount", Type: schema.TypeDecimal},
		{ID: "f-status", Name: "status", Type: schema.TypeBoolean},
		{ID: "f-name", Name: "name", Type: schema.TypeString},
		{ID: "f-due", Name: "due", Type: schema.TypeDate},
		{ID: "f-due-date", Name: "Due Date", Type: schema.TypeDate},
		{ID: "f-customer", Name: "customer", Type: schema.TypeRelation, RelationID: "customers"},
		{ID: "f-secret", Name: "secret", Type: schema.TypeString, Meta: schema.FieldMeta{IsFilterable: schema.BoolPtr(false)}},
	}
}

func TestParse_Empty(t *testing.T) {
	st := Parse("", testFields())
	assert.Equal(t, StageNoField, st.Stage)
	assert.Nil(t, st.Field)
	assert.Nil(t, st.Err)
	assert.False(t, st.IsComplete)
}

func TestParse_PartialWordDoesNotBind(t *testing.T) {
	st := Parse("amo", testFields())
	assert.Equal(t, StageNoField, st.Stage)
	assert.Equal(t, "amo", st.Partial)
	assert.Nil(t, st.Err)

	st = Parse("amount", testFields())
	assert.Nil(t, st.Field)
}

func TestParse_FieldThenOperatorThenArgument(t *testing.T) {
	fields := testFields()

	st := Parse("amount ", fields)
	assert.Equal(t, StageFieldSelected, st.Stage)
	require.NotNil(t, st.Field)
	assert.Equal(t, "f-amount", st.Field.ID)

	st = Parse("amount greaterThan ", fields)
	assert.Equal(t, StageOperatorSelected, st.Stage)
	require.NotNil(t, st.Operator)
	assert.Equal(t, OpGreaterThan, st.Operator.ID)
	assert.True(t, st.AwaitingArgument())
	assert.False(t, st.IsComplete)

	st = Parse("amount greaterThan 1000", fields)
	assert.Equal(t, StageComplete, st.Stage)
	assert.True(t, st.IsComplete)
	assert.Equal(t, "1000", st.Argument)
	assert.Equal(t, len("amount greaterThan "), st.ArgPos)

	cond, err := st.Condition()
	require.NoError(t, err)
	assert.Equal(t, Condition{FieldID: "f-amount", Operator: OpGreaterThan, Argument: "1000"}, cond)
	assert.Equal(t, "f-amount:greaterThan", cond.Key())
}

func TestParse_CaseInsensitive(t *testing.T) {
	st := Parse("AMOUNT lessthanorequal 5 ", testFields())
	require.True(t, st.IsComplete)
	assert.Equal(t, OpLessThanOrEqual, st.Operator.ID)
	assert.Equal(t, "5", st.Argument)
}

func TestParse_MultiWordArgumentIsJoined(t *testing.T) {
	st := Parse("name contains  New   York", testFields())
	require.True(t, st.IsComplete)
	assert.Equal(t, "New York", st.Argument)
}

func TestParse_NoArgumentOperatorCompletesImmediately(t *testing.T) {
	st := Parse("status isTrue ", testFields())
	assert.Equal(t, StageComplete, st.Stage)
	assert.True(t, st.IsComplete)
	assert.Empty(t, st.Argument)

	st = Parse("status isTrue trailing words", testFields())
	assert.True(t, st.IsComplete)
	assert.Empty(t, st.Argument)

	cond, err := st.Condition()
	require.NoError(t, err)
	assert.Equal(t, "f-status:isTrue", cond.Key())
	assert.Empty(t, cond.Argument)
}

func TestParse_UnknownField(t *testing.T) {
	st := Parse("frobnicate equals 5", testFields())
	assert.Equal(t, StageNoField, st.Stage)
	assert.False(t, st.IsComplete)
	require.NotNil(t, st.Err)
	assert.Equal(t, RefField, st.Err.Kind)
	assert.Equal(t, "frobnicate", st.Err.Token)
	assert.Contains(t, st.Err.Error(), "unknown reference")

	_, err := st.Condition()
	var ae *ApplyError
	assert.True(t, errors.As(err, &ae))
}

func TestParse_TypoSuggestion(t *testing.T) {
	st := Parse("amuont ", testFields())
	require.NotNil(t, st.Err)
	assert.Equal(t, "did you mean 'amount'?", st.Err.Suggestion)
}

func TestParse_UnknownOperator(t *testing.T) {
	st := Parse("amount contains ", testFields())
	assert.Equal(t, StageFieldSelected, st.Stage)
	require.NotNil(t, st.Err)
	assert.Equal(t, RefOperator, st.Err.Kind)
	assert.Equal(t, "contains", st.Err.Token)
}

func TestParse_OperatorOnlyFromBoundFieldCatalog(t *testing.T) {
	st := Parse("status equals true ", testFields())
	assert.Nil(t, st.Operator)
	assert.False(t, st.IsComplete)
}

func TestParse_FieldDetectedBeforeOperator(t *testing.T) {
	st := Parse("equals amount ", testFields())
	require.NotNil(t, st.Field)
	assert.Equal(t, "f-amount", st.Field.ID)
	assert.Nil(t, st.Operator)
}

func TestParse_FieldNameBeatsOperatorName(t *testing.T) {
	fields := append(testFields(), &schema.Field{ID: "f-equals", Name: "equals", Type: schema.TypeString})
	st := Parse("equals equals x", fields)
	require.NotNil(t, st.Field)
	assert.Equal(t, "f-equals", st.Field.ID)
	require.NotNil(t, st.Operator)
	assert.Equal(t, OpEquals, st.Operator.ID)
	assert.Equal(t, "x", st.Argument)
}

func TestParse_UnfilterableFieldIgnored(t *testing.T) {
	st := Parse("secret equals x", testFields())
	assert.Nil(t, st.Field)
	require.NotNil(t, st.Err)
}

func TestParse_LongestMultiWordNameWins(t *testing.T) {
	fields := testFields()

	st := Parse("due ", fields)
	assert.Nil(t, st.Field, "binding is deferred while 'Due Date' is still possible")

	st = Parse("due date ", fields)
	require.NotNil(t, st.Field)
	assert.Equal(t, "f-due-date", st.Field.ID)

	st = Parse("due equals 2024-01-01", fields)
	require.NotNil(t, st.Field)
	assert.Equal(t, "f-due", st.Field.ID)
	assert.True(t, st.IsComplete)
}

func TestParse_Deterministic(t *testing.T) {
	inputs := []string{"", "amo", "amount greaterThan 10", "status isFalse ", "frobnicate x ", "due date lessThan 2024-01-01"}
	for _, in := range inputs {
		assert.Equal(t, Parse(in, testFields()), Parse(in, testFields()), in)
	}
}

func TestParse_FieldBindingIsMonotonic(t *testing.T) {
	fields := testFields()
	full := "due date greaterThan 2024-01-01 and more"
	var bound *schema.Field
	for i := 0; i <= len(full); i++ {
		st := Parse(full[:i], fields)
		if bound != nil {
			require.NotNil(t, st.Field, "prefix %q lost its field", full[:i])
			assert.Equal(t, bound.ID, st.Field.ID, "prefix %q", full[:i])
		}
		if st.Field != nil {
			bound = st.Field
		}
	}
	require.NotNil(t, bound)
	assert.Equal(t, "f-due-date", bound.ID)
}

func TestCondition_Incomplete(t *testing.T) {
	st := Parse("amount equals ", testFields())
	_, err := st.Condition()
	var ae *ApplyError
	require.True(t, errors.As(err, &ae))
	assert.Contains(t, ae.Error(), "requires an argument")
}

func TestCondition_Check(t *testing.T) {
	amount := testFields()[0]
	status := testFields()[1]

	assert.NoError(t, Condition{FieldID: amount.ID, Operator: OpEquals, Argument: "1"}.Check(amount))

	var se *SchemaError
	assert.True(t, errors.As(Condition{FieldID: amount.ID, Operator: "like"}.Check(amount), &se))

	var ae *ApplyError
	assert.True(t, errors.As(Condition{FieldID: amount.ID, Operator: OpEquals}.Check(amount), &ae))
	assert.True(t, errors.As(Condition{FieldID: status.ID, Operator: OpIsTrue, Argument: "x"}.Check(status), &ae))
}

func TestState_JSONRoundTrip(t *testing.T) {
	for _, input := range []string{"", "amount ", "amount greaterThan ", "amount greaterThan 10"} {
		st := Parse(input, testFields())
		b, err := json.Marshal(st)
		require.NoError(t, err)

		var got State
		require.NoError(t, json.Unmarshal(b, &got), input)
		assert.Equal(t, st.Stage, got.Stage, input)
	}

	var s Stage
	assert.Error(t, s.UnmarshalText([]byte("halfway")))
}

func TestTokenize(t *testing.T) {
	toks, partial := Tokenize("  amount  greaterThan 10")
	require.Len(t, toks, 2)
	assert.Equal(t, Token{Text: "amount", Pos: 2}, toks[0])
	assert.Equal(t, Token{Text: "greaterThan", Pos: 10}, toks[1])
	assert.Equal(t, Token{Text: "10", Pos: 22}, partial)

	toks, partial = Tokenize("a b ")
	assert.Len(t, toks, 2)
	assert.Empty(t, partial.Text)
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, Levenshtein("abc", "abc"))
	assert.Equal(t, 3, Levenshtein("", "abc"))
	assert.Equal(t, 2, Levenshtein("amuont", "amount"))
}
