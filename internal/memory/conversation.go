package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/memkeep/memkeep/internal/dedup"
	"github.com/memkeep/memkeep/internal/embedding"
	"github.com/memkeep/memkeep/internal/models"
	"github.com/memkeep/memkeep/internal/privacy"
	"github.com/memkeep/memkeep/internal/store"
	"github.com/memkeep/memkeep/internal/tokenizer"
)

// ConversationManager binds the conversation record kinds to the shared
// store and deduplicator. Message and tool content passes the privacy
// filter before anything is persisted.
type ConversationManager struct {
	sessions *store.SessionStore
	dedup    *dedup.Deduplicator
	tokens   *tokenizer.Tokenizer
}

func NewConversationManager(sessions *store.SessionStore, d *dedup.Deduplicator, tokens *tokenizer.Tokenizer) *ConversationManager {
	return &ConversationManager{sessions: sessions, dedup: d, tokens: tokens}
}

// AddUserMessage validates and stores one user utterance.
func (m *ConversationManager) AddUserMessage(ctx context.Context, req *models.AddUserMessageRequest) (*models.AddResponse, error) {
	content, err := cleanContent(req.Content)
	if err != nil {
		return nil, err
	}
	if err := m.checkTurn(req.SessionID, req.Turn); err != nil {
		return nil, err
	}
	r := m.newRecord(models.KindUserMessage, req.SessionID, req.Turn, content)
	r.Topics = req.Topics
	return m.insert(ctx, r)
}

// AddAssistantMessage stores one assistant response with token accounting.
func (m *ConversationManager) AddAssistantMessage(ctx context.Context, req *models.AddAssistantMessageRequest) (*models.AddResponse, error) {
	content, err := cleanContent(req.Content)
	if err != nil {
		return nil, err
	}
	if err := m.checkTurn(req.SessionID, req.Turn); err != nil {
		return nil, err
	}
	r := m.newRecord(models.KindAssistantMessage, req.SessionID, req.Turn, content)
	r.Topics = req.Topics
	if err := r.EncodePayload(models.AssistantMessagePayload{
		TokensIn:  req.TokensIn,
		TokensOut: req.TokensOut,
		Model:     req.Model,
	}); err != nil {
		return nil, err
	}
	return m.insert(ctx, r)
}

// AddToolUse stores one tool execution record. The envelope content is the
// tool response (what retrieval cares about); name, input and timing ride
// in the payload.
func (m *ConversationManager) AddToolUse(ctx context.Context, req *models.AddToolUseRequest) (*models.AddResponse, error) {
	if req.ToolName == "" {
		return nil, models.Validation("tool_name", "must not be empty")
	}
	content := privacy.StripPrivateTags(req.Response)
	if content == "" {
		content = req.ToolName
	}
	if err := m.checkTurn(req.SessionID, req.Turn); err != nil {
		return nil, err
	}
	r := m.newRecord(models.KindToolUse, req.SessionID, req.Turn, content)
	if err := r.EncodePayload(models.ToolUsePayload{
		ToolName:  req.ToolName,
		Input:     privacy.StripPrivateTags(req.Input),
		Response:  content,
		LatencyMS: req.LatencyMS,
		Success:   req.Success,
	}); err != nil {
		return nil, err
	}
	return m.insert(ctx, r)
}

// checkTurn validates the session and turn without advancing either. Turn
// accounting is committed by insert only after the record write succeeds, so
// a failed insert leaves the session untouched.
func (m *ConversationManager) checkTurn(sessionID string, turn int) error {
	if sessionID == "" {
		return models.Validation("session_id", "must not be empty")
	}
	return m.sessions.CheckTurn(sessionID, turn, time.Now())
}

func (m *ConversationManager) newRecord(kind models.Kind, sessionID string, turn int, content string) *models.Record {
	return &models.Record{
		ID:          uuid.New().String(),
		Kind:        kind,
		SessionID:   sessionID,
		Turn:        turn,
		Content:     content,
		ContentHash: embedding.ContentHash(content),
		TokenCount:  m.tokens.CountTokens(content),
		CreatedAt:   time.Now().Unix(),
	}
}

func (m *ConversationManager) insert(ctx context.Context, r *models.Record) (*models.AddResponse, error) {
	out, err := m.dedup.Insert(ctx, r)
	if err != nil {
		return nil, err
	}
	if err := m.sessions.RecordTurn(r.SessionID, r.Turn, time.Now()); err != nil {
		return nil, err
	}
	return &models.AddResponse{
		ID:              out.ID,
		Suppressed:      out.Suppressed,
		Merged:          out.Merged,
		MergeSimilarity: out.Similarity,
	}, nil
}

// cleanContent strips private blocks and rejects content with nothing left.
func cleanContent(content string) (string, error) {
	if content == "" {
		return "", models.Validation("content", "must not be empty")
	}
	stripped := privacy.StripPrivateTags(content)
	if stripped == "" {
		return "", models.Validation("content", "empty after private blocks removed")
	}
	return stripped, nil
}
