package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/matthewbaird/dirconsole/internal/event"
	"github.com/matthewbaird/dirconsole/internal/query"
	"github.com/matthewbaird/dirconsole/internal/record"
	"github.com/matthewbaird/dirconsole/internal/schema"
)

// Directories resolves directories by id.
type Directories interface {
	Directory(id string) (*schema.Directory, error)
}

// RecordHandler implements HTTP handlers for directory records.
type RecordHandler struct {
	dirs    Directories
	records record.Store
}

// NewRecordHandler creates a new RecordHandler.
func NewRecordHandler(dirs Directories, records record.Store) *RecordHandler {
	return &RecordHandler{dirs: dirs, records: records}
}

type writeRecordRequest struct {
	CompanyID string         `json:"company_id"`
	Values    []record.Input `json:"values" validate:"required,dive"`
}

// directory resolves the {id} route parameter, writing a 404 on failure.
func (h *RecordHandler) directory(w http.ResponseWriter, r *http.Request) (*schema.Directory, bool) {
	dir, err := h.dirs.Directory(chi.URLParam(r, "id"))
	if err != nil {
		domainErrorToHTTP(w, err)
		return nil, false
	}
	return dir, true
}

// ListRecords handles GET /v1/directories/{id}/records.
func (h *RecordHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	dir, ok := h.directory(w, r)
	if !ok {
		return
	}
	params, err := query.ParseListParams(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_PARAMS", err.Error())
		return
	}
	page, err := h.records.List(r.Context(), dir, params)
	if err != nil {
		domainErrorToHTTP(w, err)
		return
	}
	if page.Records == nil {
		page.Records = []*record.Record{}
	}
	writeJSON(w, http.StatusOK, page)
}

// GetRecord handles GET /v1/directories/{id}/records/{recordID}.
func (h *RecordHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	dir, ok := h.directory(w, r)
	if !ok {
		return
	}
	rec, err := h.records.Get(r.Context(), dir, chi.URLParam(r, "recordID"))
	if err != nil {
		domainErrorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// CreateRecord handles POST /v1/directories/{id}/records.
func (h *RecordHandler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	dir, ok := h.directory(w, r)
	if !ok {
		return
	}
	var req writeRecordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	rec, err := h.records.Create(r.Context(), dir, req.CompanyID, req.Values)
	if err != nil {
		domainErrorToHTTP(w, err)
		return
	}
	recordEvent(r.Context(), event.NewRecordCreated(dir.ID, event.RecordChangedPayload{
		RecordID:  rec.ID,
		CompanyID: rec.CompanyID,
		Values:    inputValues(req.Values),
	}))
	writeJSON(w, http.StatusCreated, rec)
}

// UpdateRecord handles PUT /v1/directories/{id}/records/{recordID}. Only
// the supplied fields change; ?mode=replace blanks every field not supplied.
func (h *RecordHandler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	dir, ok := h.directory(w, r)
	if !ok {
		return
	}
	var req writeRecordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	id := chi.URLParam(r, "recordID")
	replace := r.URL.Query().Get("mode") == "replace"
	var (
		rec *record.Record
		err error
	)
	if replace {
		rec, err = h.records.Replace(r.Context(), dir, id, req.Values)
	} else {
		rec, err = h.records.Update(r.Context(), dir, id, req.Values)
	}
	if err != nil {
		domainErrorToHTTP(w, err)
		return
	}
	recordEvent(r.Context(), event.NewRecordUpdated(dir.ID, event.RecordChangedPayload{
		RecordID:  rec.ID,
		CompanyID: rec.CompanyID,
		Values:    inputValues(req.Values),
		Replaced:  replace,
	}))
	writeJSON(w, http.StatusOK, rec)
}

// DeleteRecord handles DELETE /v1/directories/{id}/records/{recordID}.
func (h *RecordHandler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	dir, ok := h.directory(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "recordID")
	if err := h.records.Delete(r.Context(), dir, id); err != nil {
		domainErrorToHTTP(w, err)
		return
	}
	recordEvent(r.Context(), event.NewRecordDeleted(dir.ID, id))
	w.WriteHeader(http.StatusNoContent)
}

// DeleteByGroup handles DELETE /v1/directories/{id}/records?group_field=&group_value=.
func (h *RecordHandler) DeleteByGroup(w http.ResponseWriter, r *http.Request) {
	dir, ok := h.directory(w, r)
	if !ok {
		return
	}
	fieldID := r.URL.Query().Get("group_field")
	if fieldID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_PARAMS", "group_field is required")
		return
	}
	value := r.URL.Query().Get("group_value")

	ids, err := h.records.DeleteByGroup(r.Context(), dir, fieldID, value)
	if err != nil {
		domainErrorToHTTP(w, err)
		return
	}
	if len(ids) > 0 {
		recordEvent(r.Context(), event.NewRecordsBulkDeleted(dir.ID, event.BulkDeletedPayload{
			GroupFieldID: fieldID,
			GroupValue:   value,
			RecordIDs:    ids,
		}))
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": ids, "count": len(ids)})
}

func inputValues(in []record.Input) map[string]any {
	out := make(map[string]any, len(in))
	for _, v := range in {
		out[v.FieldID] = v.Value
	}
	return out
}
