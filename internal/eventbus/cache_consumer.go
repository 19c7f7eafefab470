package eventbus

import (
	"context"

	"github.com/matthewbaird/dirconsole/internal/event"
)

// Invalidator drops cached data derived from a directory's records.
type Invalidator interface {
	Invalidate(directoryID string)
}

// CacheConsumer invalidates relation-suggestion caches when records of a
// directory change, so lookups into that directory see the new records.
type CacheConsumer struct {
	cache Invalidator
}

// NewCacheConsumer creates a consumer invalidating cache.
func NewCacheConsumer(cache Invalidator) *CacheConsumer {
	return &CacheConsumer{cache: cache}
}

func (c *CacheConsumer) HandleEvent(_ context.Context, evt event.DomainEvent) error {
	switch evt.EventType {
	case event.RecordCreated, event.RecordUpdated, event.RecordDeleted,
		event.RecordsBulkDeleted, event.DirectoryRegistered:
		c.cache.Invalidate(evt.DirectoryID)
	}
	return nil
}
