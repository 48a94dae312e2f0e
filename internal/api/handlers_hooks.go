package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/memkeep/memkeep/internal/memory"
	"github.com/memkeep/memkeep/internal/models"
)

// HookHandler is the boundary for fire-and-forget lifecycle callbacks from
// the host runtime. Every call completes within a bounded timeout and is
// acknowledged with continue=true regardless of internal failures: stopping
// a session is never this service's decision. Errors ride along in the ack
// as diagnostic metadata only.
type HookHandler struct {
	svc     *memory.Service
	timeout time.Duration
}

func NewHookHandler(svc *memory.Service, timeout time.Duration) *HookHandler {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HookHandler{svc: svc, timeout: timeout}
}

// Handle processes POST /hooks.
func (h *HookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req models.HookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusOK, models.HookAck{
			Continue: true,
			Error:    "invalid hook payload: " + err.Error(),
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	ack := models.HookAck{Continue: true}
	if err := h.dispatch(ctx, &req); err != nil {
		ack.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, ack)
}

func (h *HookHandler) dispatch(ctx context.Context, req *models.HookRequest) error {
	done := make(chan error, 1)
	go func() {
		done <- h.apply(ctx, req)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("hook %s timed out", req.Event)
	}
}

func (h *HookHandler) apply(ctx context.Context, req *models.HookRequest) error {
	switch req.Event {
	case "user_prompt":
		_, err := h.svc.Conversation.AddUserMessage(ctx, &models.AddUserMessageRequest{
			SessionID: req.SessionID,
			Content:   req.Content,
			Turn:      req.Turn,
		})
		return err
	case "assistant_response":
		_, err := h.svc.Conversation.AddAssistantMessage(ctx, &models.AddAssistantMessageRequest{
			SessionID: req.SessionID,
			Content:   req.Content,
			Turn:      req.Turn,
		})
		return err
	case "tool_use":
		_, err := h.svc.Conversation.AddToolUse(ctx, &models.AddToolUseRequest{
			SessionID: req.SessionID,
			ToolName:  req.ToolName,
			Input:     req.Input,
			Response:  req.Response,
			Turn:      req.Turn,
			Success:   req.Success,
		})
		return err
	case "session_end":
		_, err := h.svc.EndSession(ctx, req.SessionID)
		return err
	default:
		return fmt.Errorf("unknown hook event %q", req.Event)
	}
}
