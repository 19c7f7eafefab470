// Activity handlers read the per-record activity log written by the event
// recorder. They do not touch the record store.
package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/matthewbaird/dirconsole/internal/activity"
)

// ActivityHandler implements HTTP handlers for the activity log.
type ActivityHandler struct {
	store activity.Store
}

// NewActivityHandler creates a new ActivityHandler.
func NewActivityHandler(store activity.Store) *ActivityHandler {
	return &ActivityHandler{store: store}
}

// GetRecordActivity returns the activity feed of one record, newest first.
// GET /v1/directories/{id}/records/{recordID}/activity
func (h *ActivityHandler) GetRecordActivity(w http.ResponseWriter, r *http.Request) {
	dirID := chi.URLParam(r, "id")
	recordID := chi.URLParam(r, "recordID")

	opts := activity.DefaultQueryOptions()
	if s := r.URL.Query().Get("since"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			opts.Since = &t
		}
	}
	if u := r.URL.Query().Get("until"); u != "" {
		if t, err := time.Parse(time.RFC3339, u); err == nil {
			opts.Until = &t
		}
	}
	if types := r.URL.Query().Get("event_types"); types != "" {
		opts.EventTypes = strings.Split(types, ",")
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			if n > 500 {
				n = 500
			}
			opts.Limit = n
		}
	}
	if c := r.URL.Query().Get("cursor"); c != "" {
		opts.Cursor = c
	}

	entries, nextCursor, totalCount, err := h.store.QueryByRecord(r.Context(), dirID, recordID, opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "QUERY_FAILED", err.Error())
		return
	}

	resp := struct {
		Activities []activity.Entry `json:"activities"`
		NextCursor string           `json:"next_cursor,omitempty"`
		TotalCount int              `json:"total_count"`
	}{
		Activities: entries,
		NextCursor: nextCursor,
		TotalCount: totalCount,
	}
	if resp.Activities == nil {
		resp.Activities = []activity.Entry{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// SearchActivity searches event summaries within a directory.
// GET /v1/directories/{id}/activity?q=
func (h *ActivityHandler) SearchActivity(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "MISSING_PARAMS", "q is required")
		return
	}

	var opts activity.SearchOptions
	if s := r.URL.Query().Get("since"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			opts.Since = &t
		}
	}
	opts.Limit = queryInt(r, "limit", 0)

	entries, total, err := h.store.Search(r.Context(), chi.URLParam(r, "id"), q, opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SEARCH_FAILED", err.Error())
		return
	}
	if entries == nil {
		entries = []activity.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results":     entries,
		"total_count": total,
		"query":       q,
	})
}
