package cascade

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/matthewbaird/dirconsole/internal/filter"
	"github.com/matthewbaird/dirconsole/internal/query"
	"github.com/matthewbaird/dirconsole/internal/record"
	"github.com/matthewbaird/dirconsole/internal/schema"
	"github.com/matthewbaird/dirconsole/internal/types"
)

// ErrUnknownField is returned when a parent field id is not part of the
// directory.
var ErrUnknownField = errors.New("unknown field")

// Directories resolves directory schemas.
type Directories interface {
	Directory(id string) (*schema.Directory, error)
}

// Resolver maps parent values to the permitted values of their dependents
// and keeps the chosen selections.
type Resolver struct {
	dirs    Directories
	records record.Store
	store   Store
}

// NewResolver creates a resolver reading records from records and keeping
// configuration and selections in store.
func NewResolver(dirs Directories, records record.Store, store Store) *Resolver {
	return &Resolver{dirs: dirs, records: records, store: store}
}

// Resolve returns the dependents of a parent field for one parent value:
// for each dependent the values it takes on records carrying that parent
// value, plus the selections stored under the parent value.
func (r *Resolver) Resolve(ctx context.Context, directoryID, fieldID, value string) (*Config, error) {
	dir, parent, err := r.parent(directoryID, fieldID)
	if err != nil {
		return nil, err
	}
	cfg, err := r.config(ctx, dir, parent)
	if err != nil {
		return nil, err
	}
	cfg.ParentValue = value

	recs, err := r.allRecords(ctx, dir, parent, value)
	if err != nil {
		return nil, err
	}
	for i := range cfg.Fields {
		cfg.Fields[i].Options = distinctValues(recs, cfg.Fields[i].FieldID)
	}

	sels, err := r.selections(ctx, dir, parent, value)
	if err != nil {
		return nil, err
	}
	cfg.Selections = sels
	for _, sel := range sels {
		for i := range cfg.Fields {
			if strings.EqualFold(cfg.Fields[i].Name, sel.FieldName) {
				cfg.Fields[i].Selected = sel.Value
			}
		}
	}
	return cfg, nil
}

// config returns the stored config for a parent, falling back to the
// dependents declared in field metadata.
func (r *Resolver) config(ctx context.Context, dir *schema.Directory, parent *schema.Field) (*Config, error) {
	cfg, err := r.store.Config(ctx, dir.ID, parent.ID)
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		return cfg, nil
	}
	cfg = &Config{DirectoryID: dir.ID, ParentFieldID: parent.ID, Fields: []Field{}}
	for _, f := range dir.Dependents(parent.Name) {
		cfg.Fields = append(cfg.Fields, Field{FieldID: f.ID, Name: f.Name, Required: f.Meta.CascadeRequired})
	}
	return cfg, nil
}

// PutConfig stores which fields depend on a parent field. Every problem
// with the config is reported as a schema.ConfigErrors.
func (r *Resolver) PutConfig(ctx context.Context, cfg Config) error {
	dir, err := r.dirs.Directory(cfg.DirectoryID)
	if err != nil {
		return err
	}
	var problems schema.ConfigErrors
	add := func(field, format string, args ...any) {
		problems = append(problems, schema.ConfigProblem{Directory: dir.Name, Field: field, Message: fmt.Sprintf(format, args...)})
	}

	parent := dir.Field(cfg.ParentFieldID)
	if parent == nil {
		add("", "parent field %q is not a field of this directory", cfg.ParentFieldID)
	}
	seen := make(map[string]bool)
	fields := make([]Field, 0, len(cfg.Fields))
	for i, cf := range cfg.Fields {
		f := dir.Field(cf.FieldID)
		if f == nil && cf.Name != "" {
			f = dir.FieldByName(cf.Name)
		}
		switch {
		case f == nil:
			add(fmt.Sprintf("#%d", i+1), "dependent %q is not a field of this directory", cf.FieldID+cf.Name)
			continue
		case parent != nil && f.ID == parent.ID:
			add(f.Name, "field cannot depend on itself")
			continue
		case seen[f.ID]:
			add(f.Name, "dependent listed more than once")
			continue
		}
		seen[f.ID] = true
		fields = append(fields, Field{FieldID: f.ID, Name: f.Name, Required: cf.Required})
	}
	if len(problems) > 0 {
		return problems
	}
	return r.store.PutConfig(ctx, Config{DirectoryID: dir.ID, ParentFieldID: parent.ID, Fields: fields})
}

// FilteredRecords returns the records whose parent field equals
// parentValue. Without a parent field every record is returned; an empty
// parent value selects records where the parent is blank.
func (r *Resolver) FilteredRecords(ctx context.Context, directoryID, parentFieldID, parentValue string, page query.Page) (*record.Page, error) {
	dir, err := r.dirs.Directory(directoryID)
	if err != nil {
		return nil, err
	}
	p := query.ListParams{Page: page}
	if parentFieldID != "" {
		parent := dir.Field(parentFieldID)
		if parent == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownField, parentFieldID)
		}
		if p.Filters, err = parentFilter(parent, parentValue); err != nil {
			return nil, err
		}
	}
	return r.records.List(ctx, dir, p)
}

// Validate checks each selection on its own. A selection is invalid when
// its field is unknown, its value is blank or not representable under the
// field's type, or its parent value is not held by any record.
func (r *Resolver) Validate(ctx context.Context, directoryID string, sels []Selection) ([]ValidationResult, error) {
	dir, err := r.dirs.Directory(directoryID)
	if err != nil {
		return nil, err
	}
	out := make([]ValidationResult, len(sels))
	for i, sel := range sels {
		msg, err := r.check(ctx, dir, sel)
		if err != nil {
			return nil, err
		}
		out[i] = ValidationResult{Index: i, FieldName: sel.FieldName, IsValid: msg == "", Message: msg}
	}
	return out, nil
}

// check returns the problem with one selection, or "". Errors are reserved
// for failures reading records.
func (r *Resolver) check(ctx context.Context, dir *schema.Directory, sel Selection) (string, error) {
	f := dir.FieldByName(sel.FieldName)
	if f == nil {
		return fmt.Sprintf("unknown field %q", sel.FieldName), nil
	}
	if strings.TrimSpace(sel.Value) == "" {
		return "value is required", nil
	}
	if _, err := types.Coerce(f.Type, sel.Value); err != nil {
		var ce *types.CoercionError
		if errors.As(err, &ce) {
			return ce.Reason, nil
		}
		return err.Error(), nil
	}
	if sel.ParentField == "" {
		return "", nil
	}
	parent := dir.FieldByName(sel.ParentField)
	if parent == nil {
		return fmt.Sprintf("unknown parent field %q", sel.ParentField), nil
	}
	return r.checkParent(ctx, dir, parent, sel.ParentValue)
}

// checkParent returns the problem with a parent value, or "". A blank value
// is accepted; any other value must be held by at least one record.
func (r *Resolver) checkParent(ctx context.Context, dir *schema.Directory, parent *schema.Field, value string) (string, error) {
	if value == "" {
		return "", nil
	}
	filters, err := parentFilter(parent, value)
	if err != nil {
		return fmt.Sprintf("parent value %q is not a valid %s", value, parent.Type), nil
	}
	page, err := r.records.List(ctx, dir, query.ListParams{Filters: filters, Page: query.Page{Number: 1, Size: 1}})
	if err != nil {
		return "", err
	}
	if page.Total == 0 {
		return fmt.Sprintf("parent value %q no longer matches any %s", value, parent.Name), nil
	}
	return "", nil
}

// Store replaces the selections kept under a parent value. Storing the same
// set twice leaves the same state. Nothing is written unless every
// selection is valid and the parent value is held by a record.
func (r *Resolver) Store(ctx context.Context, directoryID, parentFieldID, parentValue string, sels []Selection) error {
	dir, parent, err := r.parent(directoryID, parentFieldID)
	if err != nil {
		return err
	}
	stale, err := r.checkParent(ctx, dir, parent, parentValue)
	if err != nil {
		return err
	}
	normalized := make([]Selection, len(sels))
	results := make([]ValidationResult, len(sels))
	for i, sel := range sels {
		normalized[i] = Selection{FieldName: sel.FieldName, Value: sel.Value}
		msg := ""
		f := dir.FieldByName(sel.FieldName)
		switch {
		case f == nil:
			msg = fmt.Sprintf("unknown field %q", sel.FieldName)
		case f.ID == parent.ID:
			msg = "field cannot depend on itself"
		case strings.TrimSpace(sel.Value) == "":
			msg = "value is required"
		case stale != "":
			msg = stale
		default:
			normalized[i].FieldName = f.Name
		}
		results[i] = ValidationResult{Index: i, FieldName: sel.FieldName, IsValid: msg == "", Message: msg}
	}
	if !Valid(results) {
		return &ValidationError{Results: results}
	}
	return r.store.ReplaceSelections(ctx, dir.ID, parent.ID, parentValue, normalized)
}

// Selections returns what Store kept for a parent value.
func (r *Resolver) Selections(ctx context.Context, directoryID, parentFieldID, parentValue string) ([]Selection, error) {
	dir, parent, err := r.parent(directoryID, parentFieldID)
	if err != nil {
		return nil, err
	}
	return r.selections(ctx, dir, parent, parentValue)
}

// selections loads the stored set and fills in the parent it is kept under.
func (r *Resolver) selections(ctx context.Context, dir *schema.Directory, parent *schema.Field, value string) ([]Selection, error) {
	sels, err := r.store.Selections(ctx, dir.ID, parent.ID, value)
	if err != nil {
		return nil, err
	}
	for i := range sels {
		sels[i].ParentField = parent.Name
		sels[i].ParentValue = value
	}
	return sels, nil
}

// SaveValues replaces the cascading selections saved for a record. Each
// selection's parent value must equal the record's current value of the
// parent field; a stale parent value rejects the save.
func (r *Resolver) SaveValues(ctx context.Context, directoryID, recordID string, sels []Selection) error {
	dir, err := r.dirs.Directory(directoryID)
	if err != nil {
		return err
	}
	rec, err := r.records.Get(ctx, dir, recordID)
	if err != nil {
		return err
	}

	results := make([]ValidationResult, len(sels))
	for i, sel := range sels {
		msg, err := r.check(ctx, dir, Selection{FieldName: sel.FieldName, Value: sel.Value})
		if err != nil {
			return err
		}
		if msg == "" && sel.ParentField != "" {
			msg = currentParentMismatch(dir, rec, sel)
		}
		results[i] = ValidationResult{Index: i, FieldName: sel.FieldName, IsValid: msg == "", Message: msg}
	}
	if !Valid(results) {
		return &ValidationError{Results: results}
	}
	return r.store.ReplaceRecordValues(ctx, rec.ID, sels)
}

func currentParentMismatch(dir *schema.Directory, rec *record.Record, sel Selection) string {
	parent := dir.FieldByName(sel.ParentField)
	if parent == nil {
		return fmt.Sprintf("unknown parent field %q", sel.ParentField)
	}
	current := rec.Value(parent.ID)
	want, err := types.Coerce(parent.Type, blankToNil(sel.ParentValue))
	if err != nil {
		return fmt.Sprintf("parent value %q is not a valid %s", sel.ParentValue, parent.Type)
	}
	switch {
	case current == nil && want == nil:
		return ""
	case current == nil || want == nil || types.Compare(current, want) != 0:
		return fmt.Sprintf("parent value %q is stale: %s is now %q", sel.ParentValue, parent.Name, valueString(current))
	}
	return ""
}

// Values returns the selections saved for a record.
func (r *Resolver) Values(ctx context.Context, recordID string) ([]Selection, error) {
	return r.store.RecordValues(ctx, recordID)
}

func (r *Resolver) parent(directoryID, fieldID string) (*schema.Directory, *schema.Field, error) {
	dir, err := r.dirs.Directory(directoryID)
	if err != nil {
		return nil, nil, err
	}
	f := dir.Field(fieldID)
	if f == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownField, fieldID)
	}
	return dir, f, nil
}

func (r *Resolver) allRecords(ctx context.Context, dir *schema.Directory, parent *schema.Field, value string) ([]*record.Record, error) {
	filters, err := parentFilter(parent, value)
	if err != nil {
		return nil, err
	}
	var out []*record.Record
	for n := 1; ; n++ {
		page, err := r.records.List(ctx, dir, query.ListParams{
			Filters: filters,
			Page:    query.Page{Number: n, Size: query.MaxPageSize},
		})
		if err != nil {
			return nil, err
		}
		out = append(out, page.Records...)
		if len(page.Records) == 0 || len(out) >= page.Total {
			return out, nil
		}
	}
}

// parentFilter builds the active filter selecting records whose parent
// field holds value. Booleans use isTrue/isFalse; an empty value selects
// blanks.
func parentFilter(parent *schema.Field, value string) (query.ActiveFilters, error) {
	c := filter.Condition{FieldID: parent.ID}
	switch {
	case strings.TrimSpace(value) == "":
		c.Operator = filter.OpBlank
	case parent.Type == schema.TypeBoolean:
		v, err := types.Coerce(parent.Type, value)
		if err != nil {
			return nil, err
		}
		c.Operator = filter.OpIsFalse
		if bool(v.(types.BooleanValue)) {
			c.Operator = filter.OpIsTrue
		}
	default:
		c.Operator = filter.OpEquals
		c.Argument = value
	}
	filters := query.ActiveFilters{}
	if err := filters.Apply(c, parent); err != nil {
		return nil, err
	}
	return filters, nil
}

func distinctValues(recs []*record.Record, fieldID string) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, rec := range recs {
		v := rec.Value(fieldID)
		if v == nil {
			continue
		}
		s := v.String()
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func blankToNil(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func valueString(v types.Value) string {
	if v == nil {
		return ""
	}
	return v.String()
}
