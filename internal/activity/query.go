// Package activity keeps the per-record activity log: one entry for every
// domain event that touched a record, newest first.
package activity

import (
	"encoding/json"
	"time"
)

// Entry is one event as seen from one record. Directory-level events are
// stored with an empty RecordID.
type Entry struct {
	EventID     string          `json:"event_id"`
	EventType   string          `json:"event_type"`
	OccurredAt  time.Time       `json:"occurred_at"`
	DirectoryID string          `json:"directory_id"`
	RecordID    string          `json:"record_id,omitempty"`
	Summary     string          `json:"summary"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

const (
	defaultLimit = 100
	maxLimit     = 500
)

// QueryOptions controls filtering and pagination for record activity queries.
type QueryOptions struct {
	Since      *time.Time
	Until      *time.Time
	EventTypes []string
	Limit      int    // default 100, max 500
	Cursor     string // occurred_at of the last entry of the previous page
}

// SearchOptions controls filtering for summary search within a directory.
type SearchOptions struct {
	Since *time.Time
	Limit int // default 20
}

// DefaultQueryOptions returns QueryOptions covering the last six months.
func DefaultQueryOptions() QueryOptions {
	sixMonthsAgo := time.Now().AddDate(0, -6, 0)
	return QueryOptions{
		Since: &sixMonthsAgo,
		Limit: defaultLimit,
	}
}

func (o QueryOptions) limit() int {
	if o.Limit <= 0 || o.Limit > maxLimit {
		return defaultLimit
	}
	return o.Limit
}

func (o QueryOptions) cursor() (time.Time, bool) {
	if o.Cursor == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, o.Cursor)
	return t, err == nil
}

func (o SearchOptions) limit() int {
	if o.Limit <= 0 {
		return 20
	}
	return o.Limit
}
