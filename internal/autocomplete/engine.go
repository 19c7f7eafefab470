// Package autocomplete proposes the next tokens of a filter expression from
// the parser state: field names, then the bound field's operators, then a
// value prompt or the records of a relation's target directory.
package autocomplete

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/matthewbaird/dirconsole/internal/filter"
	"github.com/matthewbaird/dirconsole/internal/query"
	"github.com/matthewbaird/dirconsole/internal/record"
	"github.com/matthewbaird/dirconsole/internal/schema"
)

var (
	relationCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dirconsole_relation_cache_hits_total",
		Help: "Relation suggestion lookups served from cache.",
	})
	relationCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dirconsole_relation_cache_misses_total",
		Help: "Relation suggestion lookups that queried the record store.",
	})
)

// Item kinds.
const (
	KindField    = "field"
	KindOperator = "operator"
	KindValue    = "value"
	KindPrompt   = "prompt"
	KindLoading  = "loading"
)

// CompletionItem is a single suggestion.
type CompletionItem struct {
	Label         string `json:"label"`
	Kind          string `json:"kind"`
	Detail        string `json:"detail,omitempty"` // semantic type or operator label
	Description   string `json:"description,omitempty"`
	InsertText    string `json:"insert_text,omitempty"`
	NeedsArgument bool   `json:"needs_argument,omitempty"`
	Selectable    bool   `json:"selectable"`
}

// Result is the suggestion list for one parser state.
type Result struct {
	Items []CompletionItem `json:"items"`
	// ReplaceFrom is the byte offset of the input replaced by an accepted
	// item's InsertText.
	ReplaceFrom int `json:"replace_from"`
	// Relation is set when the candidates are records of the field's target
	// directory; Items then holds a loading placeholder until
	// RelationCandidates is called with Query.
	Relation *schema.Field `json:"relation,omitempty"`
	Query    string        `json:"query,omitempty"`
}

// Directories resolves relation targets.
type Directories interface {
	Directory(id string) (*schema.Directory, error)
}

// Records lists the records offered for relation fields.
type Records interface {
	List(ctx context.Context, dir *schema.Directory, p query.ListParams) (*record.Page, error)
}

// Options tune the relation candidate cache.
type Options struct {
	CacheSize int
	CacheTTL  time.Duration
	Limit     int // candidates per lookup
}

// Engine computes suggestions. Complete is pure; relation candidates go
// through an expiring LRU cache keyed by target directory and query.
type Engine struct {
	dirs    Directories
	records Records
	limit   int
	cache   *expirable.LRU[string, []CompletionItem]
}

// New creates an engine.
func New(dirs Directories, records Records, opts Options) *Engine {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 512
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Second
	}
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	return &Engine{
		dirs:    dirs,
		records: records,
		limit:   opts.Limit,
		cache:   expirable.NewLRU[string, []CompletionItem](opts.CacheSize, nil, opts.CacheTTL),
	}
}

// Complete returns the suggestions for a parser state.
func (e *Engine) Complete(st filter.State, fields []*schema.Field) Result {
	switch {
	case st.Field == nil:
		return completeFields(st, fields)
	case st.Operator == nil:
		return completeOperators(st)
	case !st.Operator.NeedsArgument:
		return Result{Items: []CompletionItem{}, ReplaceFrom: len(st.Input)}
	case st.Field.Type == schema.TypeRelation:
		return Result{
			Items:       []CompletionItem{{Label: "Loading…", Kind: KindLoading}},
			ReplaceFrom: st.ArgPos,
			Relation:    st.Field,
			Query:       st.Argument,
		}
	}
	return Result{
		Items: []CompletionItem{{
			Label:  "Enter a value",
			Kind:   KindPrompt,
			Detail: string(st.Field.Type),
		}},
		ReplaceFrom: st.ArgPos,
	}
}

// completeFields matches the unbound text against filterable field names.
// The whole unbound text is tried first so multi-word names keep matching
// while they are typed; otherwise only the trailing word is used.
func completeFields(st filter.State, fields []*schema.Field) Result {
	typed := strings.Join(strings.Fields(st.Input), " ")
	from := len(st.Input) - len(strings.TrimLeft(st.Input, " \t\r\n"))
	if typed != "" {
		if items := fieldItems(fields, typed); len(items) > 0 {
			return Result{Items: items, ReplaceFrom: from}
		}
	}
	return Result{
		Items:       fieldItems(fields, st.Partial),
		ReplaceFrom: len(st.Input) - len(st.Partial),
	}
}

func fieldItems(fields []*schema.Field, partial string) []CompletionItem {
	partial = strings.ToLower(partial)
	items := []CompletionItem{}
	for _, f := range fields {
		if !f.Filterable() {
			continue
		}
		if partial != "" && !strings.Contains(strings.ToLower(f.Name), partial) {
			continue
		}
		items = append(items, CompletionItem{
			Label:      f.Name,
			Kind:       KindField,
			Detail:     string(f.Type),
			InsertText: f.Name + " ",
			Selectable: true,
		})
	}
	return items
}

func completeOperators(st filter.State) Result {
	partial := strings.ToLower(st.Partial)
	items := []CompletionItem{}
	for _, op := range filter.OperatorsFor(st.Field.Type) {
		if partial != "" && !strings.Contains(strings.ToLower(op.ID), partial) {
			continue
		}
		items = append(items, CompletionItem{
			Label:         op.ID,
			Kind:          KindOperator,
			Detail:        op.Label,
			Description:   op.Description,
			InsertText:    op.ID + " ",
			NeedsArgument: op.NeedsArgument,
			Selectable:    true,
		})
	}
	return Result{Items: items, ReplaceFrom: len(st.Input) - len(st.Partial)}
}

// RelationCandidates lists records of the relation field's target directory
// matching q. Results are cached until the TTL expires or the directory is
// invalidated.
func (e *Engine) RelationCandidates(ctx context.Context, f *schema.Field, q string) ([]CompletionItem, error) {
	key := cacheKey(f.RelationID, q)
	if items, ok := e.cache.Get(key); ok {
		relationCacheHits.Inc()
		return items, nil
	}
	relationCacheMisses.Inc()

	target, err := e.dirs.Directory(f.RelationID)
	if err != nil {
		return nil, err
	}
	page, err := e.records.List(ctx, target, query.ListParams{
		Search: q,
		Page:   query.Page{Number: 1, Size: e.limit},
	})
	if err != nil {
		return nil, err
	}

	labelField := displayField(target)
	items := make([]CompletionItem, 0, len(page.Records))
	for _, rec := range page.Records {
		label := rec.ID
		if labelField != nil {
			if v := rec.Value(labelField.ID); v != nil {
				label = v.String()
			}
		}
		items = append(items, CompletionItem{
			Label:      label,
			Kind:       KindValue,
			Detail:     target.Name,
			InsertText: rec.ID,
			Selectable: true,
		})
	}
	e.cache.Add(key, items)
	return items, nil
}

// Invalidate drops cached candidates of a directory.
func (e *Engine) Invalidate(directoryID string) {
	prefix := directoryID + "\x00"
	for _, k := range e.cache.Keys() {
		if strings.HasPrefix(k, prefix) {
			e.cache.Remove(k)
		}
	}
}

func cacheKey(directoryID, q string) string {
	return directoryID + "\x00" + strings.ToLower(strings.TrimSpace(q))
}

// displayField is the first textual field in display order, used to label
// relation candidates.
func displayField(d *schema.Directory) *schema.Field {
	for _, f := range d.OrderedFields() {
		if f.Type.Textual() {
			return f
		}
	}
	return nil
}
