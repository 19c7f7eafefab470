package cascade

import (
	"context"
	"sync"
)

// MemoryStore implements Store in process memory.
type MemoryStore struct {
	mu         sync.RWMutex
	configs    map[string]Config
	selections map[string][]Selection
	records    map[string][]Selection
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		configs:    make(map[string]Config),
		selections: make(map[string][]Selection),
		records:    make(map[string][]Selection),
	}
}

func configKey(directoryID, parentFieldID string) string {
	return directoryID + "\x00" + parentFieldID
}

func selectionKey(directoryID, parentFieldID, parentValue string) string {
	return directoryID + "\x00" + parentFieldID + "\x00" + parentValue
}

func (s *MemoryStore) Config(_ context.Context, directoryID, parentFieldID string) (*Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[configKey(directoryID, parentFieldID)]
	if !ok {
		return nil, nil
	}
	cfg.Fields = append([]Field(nil), cfg.Fields...)
	return &cfg, nil
}

func (s *MemoryStore) PutConfig(_ context.Context, cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg.Fields = append([]Field(nil), cfg.Fields...)
	s.configs[configKey(cfg.DirectoryID, cfg.ParentFieldID)] = cfg
	return nil
}

func (s *MemoryStore) ReplaceSelections(_ context.Context, directoryID, parentFieldID, parentValue string, sels []Selection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := selectionKey(directoryID, parentFieldID, parentValue)
	if len(sels) == 0 {
		delete(s.selections, key)
		return nil
	}
	s.selections[key] = append([]Selection(nil), sels...)
	return nil
}

func (s *MemoryStore) Selections(_ context.Context, directoryID, parentFieldID, parentValue string) ([]Selection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Selection{}, s.selections[selectionKey(directoryID, parentFieldID, parentValue)]...), nil
}

func (s *MemoryStore) ReplaceRecordValues(_ context.Context, recordID string, sels []Selection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(sels) == 0 {
		delete(s.records, recordID)
		return nil
	}
	s.records[recordID] = append([]Selection(nil), sels...)
	return nil
}

func (s *MemoryStore) RecordValues(_ context.Context, recordID string) ([]Selection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Selection{}, s.records[recordID]...), nil
}
