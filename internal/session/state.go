// Package session holds the state of an interactive filter session and the
// pure reducer that advances it. All I/O (relation lookups, record queries)
// happens outside the reducer; results are fed back in as events.
package session

import (
	"strings"

	"github.com/matthewbaird/dirconsole/internal/autocomplete"
	"github.com/matthewbaird/dirconsole/internal/filter"
	"github.com/matthewbaird/dirconsole/internal/query"
	"github.com/matthewbaird/dirconsole/internal/schema"
)

// Mode says how typed text is interpreted.
type Mode string

const (
	// ModeText parses the input as a filter expression.
	ModeText Mode = "text"
	// ModeValue collects the argument of a bound operator verbatim.
	ModeValue Mode = "value"
)

// State is everything a filter session shows. It is a value: reducers return
// a new State and never mutate the one passed in.
type State struct {
	DirectoryID string `json:"directory_id"`
	Mode        Mode   `json:"mode"`
	Input       string `json:"input"`
	// ValueText is the argument being entered in value mode.
	ValueText string `json:"value_text,omitempty"`
	// ValueLabel is the display label of an accepted relation candidate.
	ValueLabel string `json:"value_label,omitempty"`

	// Revision increases whenever Input or ValueText changes. Results of
	// asynchronous work started at an older revision are discarded.
	Revision uint64 `json:"revision"`
	// ClientSeq is the highest client sequence number applied.
	ClientSeq uint64 `json:"client_seq"`

	Parse       filter.State        `json:"parse"`
	Suggestions autocomplete.Result `json:"suggestions"`
	Loading     bool                `json:"loading"`

	Active   query.ActiveFilters `json:"active_filters"`
	Sorting  query.Sorting       `json:"sorting"`
	CanApply bool                `json:"can_apply"`
	Error    string              `json:"error,omitempty"`
}

// PendingLookup reports the relation lookup the current state waits for.
func (s State) PendingLookup() (f *schema.Field, q string, revision uint64, ok bool) {
	if !s.Loading || s.Suggestions.Relation == nil {
		return nil, "", 0, false
	}
	return s.Suggestions.Relation, s.Suggestions.Query, s.Revision, true
}

// condition is the condition Apply would fold into the active filters.
func (s State) condition() (filter.Condition, error) {
	if s.Mode != ModeValue {
		return s.Parse.Condition()
	}
	c := filter.Condition{FieldID: s.Parse.Field.ID, Operator: s.Parse.Operator.ID}
	c.Argument = strings.TrimSpace(s.ValueText)
	if c.Argument == "" {
		return c, &filter.ApplyError{Reason: "operator " + c.Operator + " requires an argument"}
	}
	return c, nil
}

// checkedCondition is condition checked against the bound field, argument
// type included. CanApply holds exactly when it succeeds.
func (s State) checkedCondition() (filter.Condition, error) {
	c, err := s.condition()
	if err != nil {
		return c, err
	}
	return c, c.Check(s.Parse.Field)
}
