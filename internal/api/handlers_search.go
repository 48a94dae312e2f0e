package api

import (
	"net/http"

	"github.com/memkeep/memkeep/internal/memory"
	"github.com/memkeep/memkeep/internal/models"
)

type SearchHandler struct {
	svc *memory.Service
}

func NewSearchHandler(svc *memory.Service) *SearchHandler {
	return &SearchHandler{svc: svc}
}

// Search handles POST /search
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	resp, err := h.svc.Search(r.Context(), &req)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// BuildContext handles POST /context
func (h *SearchHandler) BuildContext(w http.ResponseWriter, r *http.Request) {
	var req models.BuildContextRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	resp, err := h.svc.BuildContext(r.Context(), &req)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Stats handles GET /stats
func (h *SearchHandler) Stats(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.Stats()
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// RebuildIndex handles POST /index/rebuild
func (h *SearchHandler) RebuildIndex(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.RebuildIndex(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"indexed": n})
}
