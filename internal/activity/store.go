package activity

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
)

// Store is the interface for reading and writing activity entries.
type Store interface {
	// WriteEntries writes the entries of one or more events. Writing an
	// entry twice is a no-op.
	WriteEntries(ctx context.Context, entries []Entry) error

	// QueryByRecord returns a record's entries, newest first.
	QueryByRecord(ctx context.Context, directoryID, recordID string, opts QueryOptions) (entries []Entry, nextCursor string, totalCount int, err error)

	// Search matches summaries case-insensitively within a directory.
	Search(ctx context.Context, directoryID, query string, opts SearchOptions) (entries []Entry, totalCount int, err error)
}

// SQLStore implements Store on the activity_entries table. Timestamps are
// stored as unix nanoseconds.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a new SQLStore.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

var columns = []string{"event_id", "event_type", "occurred_at", "directory_id", "record_id", "summary", "payload"}

func builder() *entsql.DialectBuilder { return entsql.Dialect(dialect.SQLite) }

// WriteEntries inserts activity entries, skipping ones already stored.
func (s *SQLStore) WriteEntries(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	ins := builder().Insert("activity_entries").Columns(columns...)
	for _, e := range entries {
		var payload any
		if len(e.Payload) > 0 {
			payload = string(e.Payload)
		}
		ins.Values(e.EventID, e.EventType, e.OccurredAt.UnixNano(), e.DirectoryID, e.RecordID, e.Summary, payload)
	}
	ins.OnConflict(entsql.DoNothing())
	q, args := ins.Query()
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("writing activity entries: %w", err)
	}
	return nil
}

// QueryByRecord returns a record's entries with filtering and pagination.
func (s *SQLStore) QueryByRecord(ctx context.Context, directoryID, recordID string, opts QueryOptions) ([]Entry, string, int, error) {
	preds := []*entsql.Predicate{
		entsql.EQ("directory_id", directoryID),
		entsql.EQ("record_id", recordID),
	}
	if opts.Since != nil {
		preds = append(preds, entsql.GTE("occurred_at", opts.Since.UnixNano()))
	}
	if opts.Until != nil {
		preds = append(preds, entsql.LTE("occurred_at", opts.Until.UnixNano()))
	}
	if len(opts.EventTypes) > 0 {
		types := make([]any, len(opts.EventTypes))
		for i, t := range opts.EventTypes {
			types[i] = t
		}
		preds = append(preds, entsql.In("event_type", types...))
	}

	total, err := s.count(ctx, preds)
	if err != nil {
		return nil, "", 0, err
	}

	if cursor, ok := opts.cursor(); ok {
		preds = append(preds, entsql.LT("occurred_at", cursor.UnixNano()))
	}
	limit := opts.limit()
	entries, err := s.query(ctx, preds, limit+1)
	if err != nil {
		return nil, "", 0, err
	}

	var next string
	if len(entries) > limit {
		entries = entries[:limit]
		next = entries[len(entries)-1].OccurredAt.Format(time.RFC3339Nano)
	}
	return entries, next, total, nil
}

// Search matches summaries within a directory.
func (s *SQLStore) Search(ctx context.Context, directoryID, query string, opts SearchOptions) ([]Entry, int, error) {
	preds := []*entsql.Predicate{
		entsql.EQ("directory_id", directoryID),
		entsql.ContainsFold("summary", query),
	}
	if opts.Since != nil {
		preds = append(preds, entsql.GTE("occurred_at", opts.Since.UnixNano()))
	}
	total, err := s.count(ctx, preds)
	if err != nil {
		return nil, 0, err
	}
	entries, err := s.query(ctx, preds, opts.limit())
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (s *SQLStore) count(ctx context.Context, preds []*entsql.Predicate) (int, error) {
	b := builder()
	q, args := b.Select(entsql.Count("*")).From(b.Table("activity_entries")).
		Where(entsql.And(preds...)).
		Query()
	var n int
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting activity entries: %w", err)
	}
	return n, nil
}

func (s *SQLStore) query(ctx context.Context, preds []*entsql.Predicate, limit int) ([]Entry, error) {
	b := builder()
	q, args := b.Select(columns...).From(b.Table("activity_entries")).
		Where(entsql.And(preds...)).
		OrderBy(entsql.Desc("occurred_at")).
		Limit(limit).
		Query()
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying activity entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			at      int64
			payload sql.NullString
		)
		if err := rows.Scan(&e.EventID, &e.EventType, &at, &e.DirectoryID, &e.RecordID, &e.Summary, &payload); err != nil {
			return nil, fmt.Errorf("scanning activity entry: %w", err)
		}
		e.OccurredAt = time.Unix(0, at).UTC()
		if payload.Valid {
			e.Payload = []byte(payload.String)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
