package activity

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore implements Store using in-memory slices.
// Intended for demos and testing, no database required.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	seen    map[string]bool
}

// NewMemoryStore creates a new empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: make(map[string]bool)}
}

func (s *MemoryStore) WriteEntries(_ context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		key := e.EventID + "\x00" + e.RecordID
		if s.seen[key] {
			continue
		}
		s.seen[key] = true
		s.entries = append(s.entries, e)
	}
	return nil
}

func (s *MemoryStore) QueryByRecord(_ context.Context, directoryID, recordID string, opts QueryOptions) ([]Entry, string, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cursor, hasCursor := opts.cursor()
	var matched []Entry
	for _, e := range s.entries {
		if e.DirectoryID != directoryID || e.RecordID != recordID {
			continue
		}
		if opts.Since != nil && e.OccurredAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && e.OccurredAt.After(*opts.Until) {
			continue
		}
		if len(opts.EventTypes) > 0 && !contains(opts.EventTypes, e.EventType) {
			continue
		}
		matched = append(matched, e)
	}
	newestFirst(matched)
	total := len(matched)

	if hasCursor {
		i := sort.Search(len(matched), func(i int) bool { return matched[i].OccurredAt.Before(cursor) })
		matched = matched[i:]
	}

	var next string
	if limit := opts.limit(); len(matched) > limit {
		matched = matched[:limit]
		next = matched[len(matched)-1].OccurredAt.Format(time.RFC3339Nano)
	}
	return matched, next, total, nil
}

func (s *MemoryStore) Search(_ context.Context, directoryID, query string, opts SearchOptions) ([]Entry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(query)
	var matched []Entry
	for _, e := range s.entries {
		if e.DirectoryID != directoryID || !strings.Contains(strings.ToLower(e.Summary), q) {
			continue
		}
		if opts.Since != nil && e.OccurredAt.Before(*opts.Since) {
			continue
		}
		matched = append(matched, e)
	}
	newestFirst(matched)

	total := len(matched)
	if limit := opts.limit(); len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func newestFirst(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].OccurredAt.After(entries[j].OccurredAt)
	})
}

func contains(slice []string, val string) bool {
	for _, s := range slice {
		if s == val {
			return true
		}
	}
	return false
}
