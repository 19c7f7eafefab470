package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/matthewbaird/dirconsole/internal/event"
	"github.com/matthewbaird/dirconsole/internal/schema"
)

// DirectoryStore persists directories registered at runtime.
type DirectoryStore interface {
	Save(ctx context.Context, d *schema.Directory) error
}

// DirectoryHandler implements HTTP handlers for directory definitions.
type DirectoryHandler struct {
	registry *schema.Registry
	store    DirectoryStore
}

// NewDirectoryHandler creates a new DirectoryHandler. store may be nil, in
// which case registered directories live only in memory.
func NewDirectoryHandler(registry *schema.Registry, store DirectoryStore) *DirectoryHandler {
	return &DirectoryHandler{registry: registry, store: store}
}

// ListDirectories handles GET /v1/directories.
func (h *DirectoryHandler) ListDirectories(w http.ResponseWriter, r *http.Request) {
	dirs := h.registry.Directories()
	if dirs == nil {
		dirs = []*schema.Directory{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"directories": dirs})
}

// CreateDirectory handles POST /v1/directories. Every configuration problem
// is reported at once.
func (h *DirectoryHandler) CreateDirectory(w http.ResponseWriter, r *http.Request) {
	var d schema.Directory
	if err := decodeJSON(r, &d); err != nil {
		writeDecodeError(w, err)
		return
	}
	if d.Type == "" {
		d.Type = schema.DirectoryModule
	}
	var persist func(*schema.Directory) error
	if h.store != nil {
		persist = func(d *schema.Directory) error { return h.store.Save(r.Context(), d) }
	}
	if err := h.registry.RegisterWith(&d, persist); err != nil {
		domainErrorToHTTP(w, err)
		return
	}
	recordEvent(r.Context(), event.NewDirectoryRegistered(d.ID, event.DirectoryRegisteredPayload{
		Name:       d.Name,
		FieldCount: len(d.Fields),
	}))
	writeJSON(w, http.StatusCreated, &d)
}

// GetFields handles GET /v1/directories/{id}/fields.
func (h *DirectoryHandler) GetFields(w http.ResponseWriter, r *http.Request) {
	fields, err := h.registry.Fields(chi.URLParam(r, "id"))
	if err != nil {
		domainErrorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fields": fields})
}
