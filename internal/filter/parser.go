package filter

import (
	"fmt"
	"strings"

	"github.com/matthewbaird/dirconsole/internal/schema"
)

// Stage is the parser's position in the field → operator → argument sequence.
type Stage int

const (
	StageNoField Stage = iota
	StageFieldSelected
	StageOperatorSelected
	StageComplete
)

// String returns the stage name used on the wire.
func (s Stage) String() string {
	switch s {
	case StageNoField:
		return "no_field"
	case StageFieldSelected:
		return "field_selected"
	case StageOperatorSelected:
		return "operator_selected"
	case StageComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// MarshalText encodes the stage by name.
func (s Stage) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText decodes a stage name written by MarshalText.
func (s *Stage) UnmarshalText(b []byte) error {
	for st := StageNoField; st <= StageComplete; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown filter stage %q", b)
}

// State is everything the parser derives from one input string.
type State struct {
	Input      string        `json:"input"`
	Stage      Stage         `json:"stage"`
	Field      *schema.Field `json:"field,omitempty"`
	Operator   *Operator     `json:"operator,omitempty"`
	Argument   string        `json:"argument,omitempty"`
	IsComplete bool          `json:"isComplete"`
	Partial    string        `json:"partial"`         // trailing word still being typed
	ArgPos     int           `json:"argPos"`          // byte offset where the argument starts
	Err        *SchemaError  `json:"error,omitempty"` // unknown field or operator token
}

// AwaitingArgument reports whether an argument-taking operator is bound
// with no argument yet.
func (s State) AwaitingArgument() bool {
	return s.Stage == StageOperatorSelected && s.Operator != nil && s.Operator.NeedsArgument
}

// Parse interprets the whole input against the filterable fields. It is a
// pure function of its arguments and is re-run on every keystroke.
//
// Only complete words (followed by whitespace) can bind a field or an
// operator. The argument is every word after the operator, including the one
// being typed.
func Parse(input string, fields []*schema.Field) State {
	st := State{Input: input, ArgPos: len(input)}
	toks, partial := Tokenize(input)
	st.Partial = partial.Text

	filterable := make([]*schema.Field, 0, len(fields))
	for _, f := range fields {
		if f.Filterable() {
			filterable = append(filterable, f)
		}
	}

	m, pending := matchField(toks, filterable)
	if m == nil || pending {
		if !pending && len(toks) > 0 {
			st.Err = unknownField(toks[0], filterable)
		}
		return st
	}
	st.Field = m.field
	st.Stage = StageFieldSelected

	opIdx := -1
	for i := m.end; i < len(toks); i++ {
		if op, ok := LookupOperator(m.field.Type, toks[i].Text); ok {
			st.Operator = &op
			opIdx = i
			break
		}
	}
	if st.Operator == nil {
		if m.end < len(toks) {
			tok := toks[m.end]
			st.Err = &SchemaError{
				Kind:       RefOperator,
				Token:      tok.Text,
				Pos:        tok.Pos,
				Suggestion: SuggestFrom(tok.Text, operatorIDs(m.field.Type), 3),
			}
		}
		return st
	}
	st.Stage = StageOperatorSelected

	if !st.Operator.NeedsArgument {
		st.Stage = StageComplete
		st.IsComplete = true
		return st
	}

	args := toks[opIdx+1:]
	if partial.Text != "" {
		args = append(args[:len(args):len(args)], partial)
	}
	if len(args) == 0 {
		return st
	}
	words := make([]string, len(args))
	for i, a := range args {
		words[i] = a.Text
	}
	st.ArgPos = args[0].Pos
	st.Argument = strings.Join(words, " ")
	st.Stage = StageComplete
	st.IsComplete = true
	return st
}

// Condition returns the applyable condition, or an ApplyError when the
// state is not complete.
func (s State) Condition() (Condition, error) {
	switch {
	case s.Field == nil && s.Err != nil:
		return Condition{}, &ApplyError{Reason: s.Err.Error()}
	case s.Field == nil:
		return Condition{}, &ApplyError{Reason: "no field selected"}
	case s.Operator == nil:
		return Condition{}, &ApplyError{Reason: "no operator selected for " + s.Field.Name}
	case !s.IsComplete:
		return Condition{}, &ApplyError{Reason: "operator " + s.Operator.ID + " requires an argument"}
	}
	c := Condition{FieldID: s.Field.ID, Operator: s.Operator.ID}
	if s.Operator.NeedsArgument {
		c.Argument = s.Argument
	}
	return c, nil
}

type fieldMatch struct {
	field      *schema.Field
	start, end int // token index range [start, end)
}

// matchField finds the field whose name occurs earliest in toks, preferring
// the longest name at that position. pending is true when a longer field
// name could still be completed by words typed later at or before that
// position; the binding is then deferred so that appending text never
// changes an established field.
func matchField(toks []Token, fields []*schema.Field) (best *fieldMatch, pending bool) {
	names := make([][]string, len(fields))
	for i, f := range fields {
		names[i] = strings.Fields(strings.ToLower(f.Name))
	}

	for start := 0; start < len(toks); start++ {
		for i, words := range names {
			if len(words) == 0 {
				continue
			}
			k := 0
			for k < len(words) && start+k < len(toks) && toks[start+k].Lower() == words[k] {
				k++
			}
			switch {
			case k == len(words):
				if best == nil || k > best.end-best.start {
					best = &fieldMatch{field: fields[i], start: start, end: start + k}
				}
			case start+k == len(toks):
				pending = true
			}
		}
		if best != nil {
			return best, pending
		}
	}
	return nil, pending
}

func unknownField(tok Token, fields []*schema.Field) *SchemaError {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.ToLower(f.Name)
	}
	return &SchemaError{
		Kind:       RefField,
		Token:      tok.Text,
		Pos:        tok.Pos,
		Suggestion: SuggestFrom(tok.Lower(), names, 2),
	}
}
