package record

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/matthewbaird/dirconsole/internal/query"
	"github.com/matthewbaird/dirconsole/internal/schema"
	"github.com/matthewbaird/dirconsole/internal/types"
)

// MemoryStore implements Store in process memory.
// Intended for demos and testing, no database required.
type MemoryStore struct {
	mu      sync.RWMutex
	seq     int64
	records map[string]*memRecord
	now     func() time.Time
}

type memRecord struct {
	seq       int64
	id        string
	dirID     string
	companyID string
	values    map[string]types.Value
	createdAt time.Time
	updatedAt time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*memRecord),
		now:     time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context, dir *schema.Directory, companyID string, values []Input) (*Record, error) {
	vals, err := coerceInputs(dir, values, true)
	if err != nil {
		return nil, err
	}
	dropBlank(vals)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	now := s.now().UTC()
	m := &memRecord{
		seq:       s.seq,
		id:        uuid.New().String(),
		dirID:     dir.ID,
		companyID: companyID,
		values:    vals,
		createdAt: now,
		updatedAt: now,
	}
	s.records[m.id] = m
	return m.toRecord(dir), nil
}

func (s *MemoryStore) Get(_ context.Context, dir *schema.Directory, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, err := s.lookup(dir, id)
	if err != nil {
		return nil, err
	}
	return m.toRecord(dir), nil
}

func (s *MemoryStore) Update(_ context.Context, dir *schema.Directory, id string, values []Input) (*Record, error) {
	vals, err := coerceInputs(dir, values, false)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.lookup(dir, id)
	if err != nil {
		return nil, err
	}
	next := make(map[string]types.Value, len(m.values))
	for k, v := range m.values {
		next[k] = v
	}
	for k, v := range vals {
		next[k] = v
	}
	dropBlank(next)
	m.values = next
	m.updatedAt = s.now().UTC()
	return m.toRecord(dir), nil
}

func (s *MemoryStore) Replace(_ context.Context, dir *schema.Directory, id string, values []Input) (*Record, error) {
	vals, err := coerceInputs(dir, values, true)
	if err != nil {
		return nil, err
	}
	dropBlank(vals)

	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.lookup(dir, id)
	if err != nil {
		return nil, err
	}
	m.values = vals
	m.updatedAt = s.now().UTC()
	return m.toRecord(dir), nil
}

func (s *MemoryStore) Delete(_ context.Context, dir *schema.Directory, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.lookup(dir, id); err != nil {
		return err
	}
	delete(s.records, id)
	return nil
}

func (s *MemoryStore) DeleteByGroup(_ context.Context, dir *schema.Directory, groupFieldID, value string) ([]string, error) {
	p, err := groupPredicate(dir, groupFieldID, value)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, m := range s.sortedLocked(dir.ID) {
		if p.matches(m.values[groupFieldID]) {
			ids = append(ids, m.id)
			delete(s.records, m.id)
		}
	}
	return ids, nil
}

func (s *MemoryStore) List(_ context.Context, dir *schema.Directory, p query.ListParams) (*Page, error) {
	preds, err := compileFilters(dir, p.Filters)
	if err != nil {
		return nil, err
	}
	sortFields, err := compileSorting(dir, p.Sorting)
	if err != nil {
		return nil, err
	}
	search := strings.ToLower(strings.TrimSpace(p.Search))

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*memRecord
	for _, m := range s.sortedLocked(dir.ID) {
		if p.CompanyID != "" && m.companyID != p.CompanyID {
			continue
		}
		if search != "" && !m.contains(dir, search) {
			continue
		}
		if !m.matchesAll(preds) {
			continue
		}
		matched = append(matched, m)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		for k, f := range sortFields {
			c := types.Compare(matched[i].values[f.ID], matched[j].values[f.ID])
			if p.Sorting[k].Direction == query.Desc {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return matched[i].seq < matched[j].seq
	})

	page := p.Page.Normalize()
	out := &Page{
		Fields:   dir.OrderedFields(),
		Records:  []*Record{},
		Total:    len(matched),
		Page:     page.Number,
		PageSize: page.Size,
	}
	start := min(page.Offset(), len(matched))
	end := min(start+page.Size, len(matched))
	for _, m := range matched[start:end] {
		out.Records = append(out.Records, m.toRecord(dir))
	}
	return out, nil
}

func (s *MemoryStore) lookup(dir *schema.Directory, id string) (*memRecord, error) {
	m, ok := s.records[id]
	if !ok || m.dirID != dir.ID {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return m, nil
}

// sortedLocked returns a directory's records in insertion order.
func (s *MemoryStore) sortedLocked(dirID string) []*memRecord {
	var out []*memRecord
	for _, m := range s.records {
		if m.dirID == dirID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func (m *memRecord) matchesAll(preds []predicate) bool {
	for _, p := range preds {
		if !p.matches(m.values[p.field.ID]) {
			return false
		}
	}
	return true
}

func (m *memRecord) contains(dir *schema.Directory, search string) bool {
	for _, f := range dir.Fields {
		if !searchable(f) {
			continue
		}
		if v := m.values[f.ID]; v != nil && strings.Contains(strings.ToLower(v.String()), search) {
			return true
		}
	}
	return false
}

func (m *memRecord) toRecord(dir *schema.Directory) *Record {
	return &Record{
		ID:          m.id,
		DirectoryID: m.dirID,
		CompanyID:   m.companyID,
		Values:      orderedValues(dir, m.values),
		CreatedAt:   m.createdAt,
		UpdatedAt:   m.updatedAt,
	}
}

func dropBlank(vals map[string]types.Value) {
	for k, v := range vals {
		if v == nil {
			delete(vals, k)
		}
	}
}
