package api

import (
	"net/http"

	"github.com/memkeep/memkeep/internal/memory"
	"github.com/memkeep/memkeep/internal/store"
)

type HealthHandler struct {
	db  *store.DB
	svc *memory.Service
}

func NewHealthHandler(db *store.DB, svc *memory.Service) *HealthHandler {
	return &HealthHandler{db: db, svc: svc}
}

type healthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
	Index  string `json:"index"`
}

// Health handles GET /health. The service is healthy as long as the store
// responds; a missing vector index only degrades search.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Store: "ok", Index: "ok"}
	status := http.StatusOK

	if err := h.db.Ping(); err != nil {
		resp.Status = "unhealthy"
		resp.Store = err.Error()
		status = http.StatusServiceUnavailable
	}
	if !h.svc.IndexAvailable() {
		resp.Index = "unavailable, search degraded to keyword"
		if resp.Status == "ok" {
			resp.Status = "degraded"
		}
	}

	writeJSON(w, status, resp)
}
