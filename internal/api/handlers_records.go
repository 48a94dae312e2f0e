package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/memkeep/memkeep/internal/memory"
	"github.com/memkeep/memkeep/internal/models"
)

type RecordHandler struct {
	svc *memory.Service
}

func NewRecordHandler(svc *memory.Service) *RecordHandler {
	return &RecordHandler{svc: svc}
}

// AddUserMessage handles POST /records/user-messages
func (h *RecordHandler) AddUserMessage(w http.ResponseWriter, r *http.Request) {
	var req models.AddUserMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	resp, err := h.svc.Conversation.AddUserMessage(r.Context(), &req)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// AddAssistantMessage handles POST /records/assistant-messages
func (h *RecordHandler) AddAssistantMessage(w http.ResponseWriter, r *http.Request) {
	var req models.AddAssistantMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	resp, err := h.svc.Conversation.AddAssistantMessage(r.Context(), &req)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// AddToolUse handles POST /records/tool-uses
func (h *RecordHandler) AddToolUse(w http.ResponseWriter, r *http.Request) {
	var req models.AddToolUseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	resp, err := h.svc.Conversation.AddToolUse(r.Context(), &req)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// AddDecision handles POST /records/decisions
func (h *RecordHandler) AddDecision(w http.ResponseWriter, r *http.Request) {
	var req models.AddDecisionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	resp, err := h.svc.Knowledge.AddDecision(r.Context(), &req)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// AddConvention handles POST /records/conventions
func (h *RecordHandler) AddConvention(w http.ResponseWriter, r *http.Request) {
	var req models.AddConventionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	resp, err := h.svc.Knowledge.AddConvention(r.Context(), &req)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// AddLearning handles POST /records/learnings
func (h *RecordHandler) AddLearning(w http.ResponseWriter, r *http.Request) {
	var req models.AddLearningRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	resp, err := h.svc.Knowledge.AddLearning(r.Context(), &req)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// AddArtifact handles POST /records/artifacts
func (h *RecordHandler) AddArtifact(w http.ResponseWriter, r *http.Request) {
	var req models.AddArtifactRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	resp, err := h.svc.Knowledge.AddArtifact(r.Context(), &req)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

type importLegacyRequest struct {
	SessionID string          `json:"sessionId"`
	Content   string          `json:"content"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ImportLegacy handles POST /records/legacy
func (h *RecordHandler) ImportLegacy(w http.ResponseWriter, r *http.Request) {
	var req importLegacyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	resp, err := h.svc.Knowledge.ImportLegacy(r.Context(), req.SessionID, req.Content, req.Payload)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// Get handles GET /records/{id}
func (h *RecordHandler) Get(w http.ResponseWriter, r *http.Request) {
	record, err := h.svc.GetRecord(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// RefreshVerified handles POST /records/{id}/verify
func (h *RecordHandler) RefreshVerified(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RefreshVerified(chi.URLParam(r, "id")); err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"verified": true})
}

// Prune handles POST /records/prune
func (h *RecordHandler) Prune(w http.ResponseWriter, r *http.Request) {
	var req models.PruneRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	resp, err := h.svc.Prune(r.Context(), &req)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Decay handles POST /records/decay
func (h *RecordHandler) Decay(w http.ResponseWriter, r *http.Request) {
	var req models.DecayRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	resp, err := h.svc.Decay(&req)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
