package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/memkeep/memkeep/internal/memory"
)

type SessionHandler struct {
	svc *memory.Service
}

func NewSessionHandler(svc *memory.Service) *SessionHandler {
	return &SessionHandler{svc: svc}
}

// List handles GET /sessions
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	sessions, err := h.svc.ListSessions(limit)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// Get handles GET /sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.GetSession(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// End handles POST /sessions/{id}/end. Ending an already closed session is
// a no-op, not an error.
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.EndSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Reprocess handles POST /sessions/{id}/reprocess
func (h *SessionHandler) Reprocess(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ReprocessSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
