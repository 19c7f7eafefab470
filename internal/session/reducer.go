package session

import (
	"github.com/matthewbaird/dirconsole/internal/autocomplete"
	"github.com/matthewbaird/dirconsole/internal/filter"
	"github.com/matthewbaird/dirconsole/internal/query"
	"github.com/matthewbaird/dirconsole/internal/schema"
)

// Event is an input to the reducer.
type Event interface{ isEvent() }

// InputChanged replaces the typed text. In value mode the text is the
// argument. Events with a Seq not above the last applied one are stale.
type InputChanged struct {
	Seq  uint64
	Text string
}

// SuggestionAccepted inserts a suggestion's text at the suggestion list's
// replacement offset.
type SuggestionAccepted struct {
	Item autocomplete.CompletionItem
}

// InputCleared abandons the expression being typed, leaving value mode.
type InputCleared struct{}

// ValueCommitted sets the argument in value mode and applies the filter.
type ValueCommitted struct {
	Value string
}

// ApplyRequested folds the current condition into the active filters.
type ApplyRequested struct{}

// FilterRemoved drops one active filter by key.
type FilterRemoved struct {
	Key string
}

// FiltersCleared drops every active filter.
type FiltersCleared struct{}

// SortRequested sorts by a field; re-sorting a field replaces its direction.
type SortRequested struct {
	FieldID   string
	Direction query.Direction
}

// RelationLoaded delivers relation candidates fetched for a revision.
type RelationLoaded struct {
	Revision uint64
	Items    []autocomplete.CompletionItem
	Err      error
}

func (InputChanged) isEvent()       {}
func (SuggestionAccepted) isEvent() {}
func (InputCleared) isEvent()       {}
func (ValueCommitted) isEvent()     {}
func (ApplyRequested) isEvent()     {}
func (FilterRemoved) isEvent()      {}
func (FiltersCleared) isEvent()     {}
func (SortRequested) isEvent()      {}
func (RelationLoaded) isEvent()     {}

// Reducer advances session state for one directory.
type Reducer struct {
	Fields []*schema.Field
	Engine *autocomplete.Engine
}

// Init returns the empty state of a session.
func (r Reducer) Init(directoryID string) State {
	s := State{
		DirectoryID: directoryID,
		Mode:        ModeText,
		Active:      query.ActiveFilters{},
	}
	return r.setInput(s, "")
}

// Reduce applies one event.
func (r Reducer) Reduce(s State, ev Event) State {
	s.Active = s.Active.Clone()
	s.Error = ""

	switch e := ev.(type) {
	case InputChanged:
		if e.Seq != 0 && e.Seq <= s.ClientSeq {
			return s
		}
		if e.Seq != 0 {
			s.ClientSeq = e.Seq
		}
		if s.Mode == ModeValue {
			return r.setValue(s, e.Text, "")
		}
		return r.setInput(s, e.Text)

	case SuggestionAccepted:
		if !e.Item.Selectable {
			return s
		}
		if s.Mode == ModeValue {
			return r.setValue(s, e.Item.InsertText, e.Item.Label)
		}
		from := min(max(s.Suggestions.ReplaceFrom, 0), len(s.Input))
		s = r.setInput(s, s.Input[:from]+e.Item.InsertText)
		if s.Parse.AwaitingArgument() {
			s.Mode = ModeValue
			s.CanApply = false
			return r.setValue(s, "", "")
		}
		return s

	case InputCleared:
		return r.setInput(s, "")

	case ValueCommitted:
		if s.Mode == ModeValue {
			s = r.setValue(s, e.Value, "")
		}
		return r.apply(s)

	case ApplyRequested:
		return r.apply(s)

	case FilterRemoved:
		s.Active.Remove(e.Key)
		return s

	case FiltersCleared:
		s.Active.Clear()
		return s

	case SortRequested:
		if field(r.Fields, e.FieldID) == nil {
			s.Error = (&filter.SchemaError{Kind: filter.RefField, Token: e.FieldID}).Error()
			return s
		}
		dir := e.Direction
		if dir == "" {
			dir = query.Asc
		}
		s.Sorting = s.Sorting.Apply(e.FieldID, dir)
		return s

	case RelationLoaded:
		if e.Revision != s.Revision || !s.Loading {
			return s
		}
		s.Loading = false
		if e.Err != nil {
			s.Error = e.Err.Error()
			s.Suggestions.Items = []autocomplete.CompletionItem{}
			return s
		}
		s.Suggestions.Items = e.Items
		return s
	}
	return s
}

// setInput re-parses text from scratch and recomputes suggestions.
func (r Reducer) setInput(s State, text string) State {
	s.Mode = ModeText
	s.Input = text
	s.ValueText = ""
	s.ValueLabel = ""
	s.Revision++
	s.Parse = filter.Parse(text, r.Fields)
	s.Suggestions = r.complete(s.Parse)
	s.Loading = s.Suggestions.Relation != nil
	_, err := s.checkedCondition()
	s.CanApply = err == nil
	if s.Parse.Err != nil {
		s.Error = s.Parse.Err.Error()
	}
	return s
}

// setValue records the argument typed in value mode. The text is never
// parsed; relation fields look up matching records.
func (r Reducer) setValue(s State, text, label string) State {
	s.ValueText = text
	s.ValueLabel = label
	s.Revision++
	_, err := s.checkedCondition()
	s.CanApply = err == nil
	if s.Parse.Field != nil && s.Parse.Field.Type == schema.TypeRelation {
		s.Suggestions = autocomplete.Result{
			Items:       []autocomplete.CompletionItem{{Label: "Loading…", Kind: autocomplete.KindLoading}},
			ReplaceFrom: len(s.Input),
			Relation:    s.Parse.Field,
			Query:       text,
		}
		s.Loading = label == ""
		if !s.Loading {
			s.Suggestions.Items = []autocomplete.CompletionItem{}
		}
		return s
	}
	s.Loading = false
	s.Suggestions = autocomplete.Result{
		Items: []autocomplete.CompletionItem{{
			Label:  "Enter a value",
			Kind:   autocomplete.KindPrompt,
			Detail: string(s.Parse.Field.Type),
		}},
		ReplaceFrom: len(s.Input),
	}
	return s
}

// apply folds the current condition into the active filters and resets the
// input. An incomplete condition leaves everything but Error unchanged.
func (r Reducer) apply(s State) State {
	c, err := s.checkedCondition()
	if err != nil {
		s.Error = err.Error()
		s.CanApply = false
		return s
	}
	if err := s.Active.Apply(c, field(r.Fields, c.FieldID)); err != nil {
		s.Error = err.Error()
		s.CanApply = false
		return s
	}
	return r.setInput(s, "")
}

func (r Reducer) complete(st filter.State) autocomplete.Result {
	if r.Engine == nil {
		return autocomplete.Result{}
	}
	return r.Engine.Complete(st, r.Fields)
}

func field(fields []*schema.Field, id string) *schema.Field {
	for _, f := range fields {
		if f.ID == id {
			return f
		}
	}
	return nil
}
