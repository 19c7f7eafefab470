package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/matthewbaird/dirconsole/internal/autocomplete"
	"github.com/matthewbaird/dirconsole/internal/filter"
	"github.com/matthewbaird/dirconsole/internal/query"
)

// FilterHandler parses filter expressions over plain HTTP for clients that
// do not hold a websocket session.
type FilterHandler struct {
	dirs   Directories
	engine *autocomplete.Engine
}

// NewFilterHandler creates a new FilterHandler.
func NewFilterHandler(dirs Directories, engine *autocomplete.Engine) *FilterHandler {
	return &FilterHandler{dirs: dirs, engine: engine}
}

// Parse handles GET /v1/directories/{id}/filter/parse?input=. Relation
// candidates are looked up before responding. A complete expression also
// returns the filter key and value it would add.
func (h *FilterHandler) Parse(w http.ResponseWriter, r *http.Request) {
	dir, err := h.dirs.Directory(chi.URLParam(r, "id"))
	if err != nil {
		domainErrorToHTTP(w, err)
		return
	}
	fields := dir.FilterableFields()
	st := filter.Parse(r.URL.Query().Get("input"), fields)
	res := h.engine.Complete(st, fields)

	if res.Relation != nil {
		items, err := h.engine.RelationCandidates(r.Context(), res.Relation, res.Query)
		if err != nil {
			domainErrorToHTTP(w, err)
			return
		}
		res.Items = items
	}

	resp := map[string]any{
		"state":       st,
		"suggestions": res,
	}
	if st.IsComplete {
		c, err := st.Condition()
		if err == nil {
			active := query.ActiveFilters{}
			if err := active.Apply(c, st.Field); err == nil {
				resp["filters"] = active
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
