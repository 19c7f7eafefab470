package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/matthewbaird/dirconsole/internal/cascade"
	"github.com/matthewbaird/dirconsole/internal/event"
	"github.com/matthewbaird/dirconsole/internal/query"
)

// CascadingHandler implements HTTP handlers for cascading fields.
type CascadingHandler struct {
	resolver *cascade.Resolver
}

// NewCascadingHandler creates a new CascadingHandler.
func NewCascadingHandler(resolver *cascade.Resolver) *CascadingHandler {
	return &CascadingHandler{resolver: resolver}
}

type selectionsRequest struct {
	Selections []cascade.Selection `json:"selections" validate:"required,dive"`
}

type storeSelectionsRequest struct {
	ParentFieldID string              `json:"parent_field_id" validate:"required"`
	ParentValue   string              `json:"parent_value"`
	Selections    []cascade.Selection `json:"selections" validate:"dive"`
}

type saveValuesRequest struct {
	DirectoryID string              `json:"directory_id" validate:"required"`
	RecordID    string              `json:"record_id" validate:"required"`
	Selections  []cascade.Selection `json:"selections" validate:"dive"`
}

// GetCascading handles GET /v1/directories/{id}/cascading?field_id=&value=.
func (h *CascadingHandler) GetCascading(w http.ResponseWriter, r *http.Request) {
	fieldID := r.URL.Query().Get("field_id")
	if fieldID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_PARAMS", "field_id is required")
		return
	}
	cfg, err := h.resolver.Resolve(r.Context(), chi.URLParam(r, "id"), fieldID, r.URL.Query().Get("value"))
	if err != nil {
		domainErrorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// PutCascading handles PUT /v1/directories/{id}/cascading.
func (h *CascadingHandler) PutCascading(w http.ResponseWriter, r *http.Request) {
	var cfg cascade.Config
	if err := decodeJSON(r, &cfg); err != nil {
		writeDecodeError(w, err)
		return
	}
	cfg.DirectoryID = chi.URLParam(r, "id")
	if err := h.resolver.PutConfig(r.Context(), cfg); err != nil {
		domainErrorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// ValidateSelections handles POST /v1/directories/{id}/cascading/validate.
// Invalid selections are reported in the body, not as an error status.
func (h *CascadingHandler) ValidateSelections(w http.ResponseWriter, r *http.Request) {
	var req selectionsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	results, err := h.resolver.Validate(r.Context(), chi.URLParam(r, "id"), req.Selections)
	if err != nil {
		domainErrorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"valid":   cascade.Valid(results),
	})
}

// StoreSelections handles POST /v1/directories/{id}/cascading/selections.
// The stored set replaces any earlier selections for the parent value.
func (h *CascadingHandler) StoreSelections(w http.ResponseWriter, r *http.Request) {
	var req storeSelectionsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	dirID := chi.URLParam(r, "id")
	if err := h.resolver.Store(r.Context(), dirID, req.ParentFieldID, req.ParentValue, req.Selections); err != nil {
		domainErrorToHTTP(w, err)
		return
	}
	sels, err := h.resolver.Selections(r.Context(), dirID, req.ParentFieldID, req.ParentValue)
	if err != nil {
		domainErrorToHTTP(w, err)
		return
	}
	recordEvent(r.Context(), event.NewCascadingStored(dirID, event.CascadingPayload{
		ParentFieldID: req.ParentFieldID,
		ParentValue:   req.ParentValue,
		Selections:    sels,
		Count:         len(sels),
	}))
	writeJSON(w, http.StatusOK, map[string]any{"selections": nonNil(sels)})
}

// GetSelections handles GET /v1/directories/{id}/cascading/selections?parent_field_id=&parent_value=.
func (h *CascadingHandler) GetSelections(w http.ResponseWriter, r *http.Request) {
	parentID := r.URL.Query().Get("parent_field_id")
	if parentID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_PARAMS", "parent_field_id is required")
		return
	}
	sels, err := h.resolver.Selections(r.Context(), chi.URLParam(r, "id"), parentID, r.URL.Query().Get("parent_value"))
	if err != nil {
		domainErrorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"selections": nonNil(sels)})
}

// FilteredRecords handles GET /v1/directories/{id}/cascading/records?parent_field_id=&parent_value=.
func (h *CascadingHandler) FilteredRecords(w http.ResponseWriter, r *http.Request) {
	parentID := r.URL.Query().Get("parent_field_id")
	if parentID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_PARAMS", "parent_field_id is required")
		return
	}
	page := query.Page{
		Number: queryInt(r, "page", 1),
		Size:   queryInt(r, "page_size", query.DefaultPageSize),
	}.Normalize()

	res, err := h.resolver.FilteredRecords(r.Context(), chi.URLParam(r, "id"), parentID, r.URL.Query().Get("parent_value"), page)
	if err != nil {
		domainErrorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SaveValues handles POST /v1/cascading/save-values.
func (h *CascadingHandler) SaveValues(w http.ResponseWriter, r *http.Request) {
	var req saveValuesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if err := h.resolver.SaveValues(r.Context(), req.DirectoryID, req.RecordID, req.Selections); err != nil {
		domainErrorToHTTP(w, err)
		return
	}
	recordEvent(r.Context(), event.NewCascadingValuesSaved(req.DirectoryID, event.CascadingPayload{
		RecordID:   req.RecordID,
		Selections: req.Selections,
		Count:      len(req.Selections),
	}))
	writeJSON(w, http.StatusOK, map[string]any{"record_id": req.RecordID, "selections": nonNil(req.Selections)})
}

// GetValues handles GET /v1/cascading/values/{recordID}.
func (h *CascadingHandler) GetValues(w http.ResponseWriter, r *http.Request) {
	recordID := chi.URLParam(r, "recordID")
	sels, err := h.resolver.Values(r.Context(), recordID)
	if err != nil {
		domainErrorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"record_id": recordID, "selections": nonNil(sels)})
}

func nonNil(sels []cascade.Selection) []cascade.Selection {
	if sels == nil {
		return []cascade.Selection{}
	}
	return sels
}
