package activity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/dirconsole/internal/database"
)

func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore())
	})
	t.Run("sql", func(t *testing.T) {
		db, err := database.OpenMemory(context.Background(), t.Name())
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		fn(t, NewSQLStore(db))
	})
}

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func entry(id, eventType, recordID, summary string, minutes int) Entry {
	return Entry{
		EventID:     id,
		EventType:   eventType,
		OccurredAt:  base.Add(time.Duration(minutes) * time.Minute),
		DirectoryID: "dir-1",
		RecordID:    recordID,
		Summary:     summary,
	}
}

func ids(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.EventID
	}
	return out
}

func TestStore_QueryByRecordNewestFirst(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.WriteEntries(ctx, []Entry{
			entry("e1", "record_created", "r1", "Record created", 0),
			entry("e2", "record_updated", "r1", "Record updated", 5),
			entry("e3", "record_created", "r2", "Record created", 6),
		}))

		got, next, total, err := s.QueryByRecord(ctx, "dir-1", "r1", QueryOptions{})
		require.NoError(t, err)
		assert.Equal(t, []string{"e2", "e1"}, ids(got))
		assert.Empty(t, next)
		assert.Equal(t, 2, total)
		assert.True(t, got[0].OccurredAt.Equal(base.Add(5*time.Minute)))
	})
}

func TestStore_WriteTwiceIsNoop(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		e := entry("e1", "record_created", "r1", "Record created", 0)
		e.Payload = []byte(`{"a":1}`)
		require.NoError(t, s.WriteEntries(ctx, []Entry{e}))
		require.NoError(t, s.WriteEntries(ctx, []Entry{e}))

		got, _, total, err := s.QueryByRecord(ctx, "dir-1", "r1", QueryOptions{})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		assert.JSONEq(t, `{"a":1}`, string(got[0].Payload))
	})
}

func TestStore_QueryFilters(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.WriteEntries(ctx, []Entry{
			entry("e1", "record_created", "r1", "created", 0),
			entry("e2", "record_updated", "r1", "updated", 10),
			entry("e3", "record_updated", "r1", "updated again", 20),
		}))

		since := base.Add(5 * time.Minute)
		until := base.Add(15 * time.Minute)
		got, _, _, err := s.QueryByRecord(ctx, "dir-1", "r1", QueryOptions{Since: &since, Until: &until})
		require.NoError(t, err)
		assert.Equal(t, []string{"e2"}, ids(got))

		got, _, _, err = s.QueryByRecord(ctx, "dir-1", "r1", QueryOptions{EventTypes: []string{"record_created"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"e1"}, ids(got))
	})
}

func TestStore_CursorPaging(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		var entries []Entry
		for i, id := range []string{"e1", "e2", "e3", "e4", "e5"} {
			entries = append(entries, entry(id, "record_updated", "r1", "updated", i))
		}
		require.NoError(t, s.WriteEntries(ctx, entries))

		page1, next, total, err := s.QueryByRecord(ctx, "dir-1", "r1", QueryOptions{Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		assert.Equal(t, []string{"e5", "e4"}, ids(page1))
		require.NotEmpty(t, next)

		page2, next, _, err := s.QueryByRecord(ctx, "dir-1", "r1", QueryOptions{Limit: 2, Cursor: next})
		require.NoError(t, err)
		assert.Equal(t, []string{"e3", "e2"}, ids(page2))

		page3, next, _, err := s.QueryByRecord(ctx, "dir-1", "r1", QueryOptions{Limit: 2, Cursor: next})
		require.NoError(t, err)
		assert.Equal(t, []string{"e1"}, ids(page3))
		assert.Empty(t, next)
	})
}

func TestStore_Search(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		other := entry("e4", "record_created", "r9", "Invoice created", 3)
		other.DirectoryID = "dir-2"
		require.NoError(t, s.WriteEntries(ctx, []Entry{
			entry("e1", "record_created", "r1", "Invoice INV-1 created", 0),
			entry("e2", "record_deleted", "r1", "Invoice INV-1 deleted", 1),
			entry("e3", "directory_registered", "", "Directory registered", 2),
			other,
		}))

		got, total, err := s.Search(ctx, "dir-1", "invoice", SearchOptions{})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Equal(t, []string{"e2", "e1"}, ids(got))

		got, total, err = s.Search(ctx, "dir-1", "invoice", SearchOptions{Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Len(t, got, 1)
	})
}
