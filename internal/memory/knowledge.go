package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/memkeep/memkeep/internal/dedup"
	"github.com/memkeep/memkeep/internal/embedding"
	"github.com/memkeep/memkeep/internal/models"
	"github.com/memkeep/memkeep/internal/store"
	"github.com/memkeep/memkeep/internal/tokenizer"
)

// KnowledgeManager binds the knowledge record kinds to the shared store and
// deduplicator. Knowledge adds carry confidence and are subject to
// near-duplicate merging.
type KnowledgeManager struct {
	sessions *store.SessionStore
	dedup    *dedup.Deduplicator
	tokens   *tokenizer.Tokenizer
}

func NewKnowledgeManager(sessions *store.SessionStore, d *dedup.Deduplicator, tokens *tokenizer.Tokenizer) *KnowledgeManager {
	return &KnowledgeManager{sessions: sessions, dedup: d, tokens: tokens}
}

// AddDecision records an architectural choice.
func (m *KnowledgeManager) AddDecision(ctx context.Context, req *models.AddDecisionRequest) (*models.AddResponse, error) {
	if req.Decision == "" {
		return nil, models.Validation("decision", "must not be empty")
	}
	r, err := m.newRecord(models.KindDecision, req.SessionID, req.Decision)
	if err != nil {
		return nil, err
	}
	r.Topics = req.Topics
	r.Confidence = 1.0
	if err := r.EncodePayload(models.DecisionPayload{
		Question:     req.Question,
		Rationale:    req.Rationale,
		Alternatives: req.Alternatives,
		DecidedBy:    req.DecidedBy,
	}); err != nil {
		return nil, err
	}
	return m.insert(ctx, r)
}

// AddConvention records a recurring practice.
func (m *KnowledgeManager) AddConvention(ctx context.Context, req *models.AddConventionRequest) (*models.AddResponse, error) {
	if req.Content == "" {
		return nil, models.Validation("content", "must not be empty")
	}
	if err := validConfidence(req.Confidence); err != nil {
		return nil, err
	}
	r, err := m.newRecord(models.KindConvention, req.SessionID, req.Content)
	if err != nil {
		return nil, err
	}
	r.Topics = req.Topics
	r.Confidence = req.Confidence
	now := time.Now().Unix()
	r.LastVerified = &now
	return m.insert(ctx, r)
}

// AddLearning records a cross-session insight. A learning must cite at
// least one source session.
func (m *KnowledgeManager) AddLearning(ctx context.Context, req *models.AddLearningRequest) (*models.AddResponse, error) {
	if req.Pattern == "" {
		return nil, models.Validation("pattern", "must not be empty")
	}
	if err := validConfidence(req.Confidence); err != nil {
		return nil, err
	}
	if len(req.LearnedFrom) == 0 {
		return nil, models.Validation("learned_from", "must cite at least one source session")
	}
	r, err := m.newRecord(models.KindLearning, req.SessionID, req.Pattern)
	if err != nil {
		return nil, err
	}
	r.Confidence = req.Confidence
	r.SourceSessions = req.LearnedFrom
	if err := r.EncodePayload(models.LearningPayload{Category: req.Category}); err != nil {
		return nil, err
	}
	return m.insert(ctx, r)
}

// AddArtifact records a produced file, function or class.
func (m *KnowledgeManager) AddArtifact(ctx context.Context, req *models.AddArtifactRequest) (*models.AddResponse, error) {
	if req.Description == "" {
		return nil, models.Validation("description", "must not be empty")
	}
	if req.Path == "" {
		return nil, models.Validation("path", "must not be empty")
	}
	r, err := m.newRecord(models.KindArtifact, req.SessionID, req.Description)
	if err != nil {
		return nil, err
	}
	r.Topics = req.Topics
	if err := r.EncodePayload(models.ArtifactPayload{
		ArtifactType: req.ArtifactType,
		Path:         req.Path,
	}); err != nil {
		return nil, err
	}
	return m.insert(ctx, r)
}

// ImportLegacy accepts an opaque payload from a pre-migration store. The
// payload shape is preserved as-is but the envelope still goes through the
// same write-boundary validation as every other record.
func (m *KnowledgeManager) ImportLegacy(ctx context.Context, sessionID, content string, payload json.RawMessage) (*models.AddResponse, error) {
	if content == "" {
		return nil, models.Validation("content", "must not be empty")
	}
	if len(payload) > 0 && !json.Valid(payload) {
		return nil, models.Validation("payload", "must be valid JSON")
	}
	r, err := m.newRecord(models.KindLegacy, sessionID, content)
	if err != nil {
		return nil, err
	}
	r.Confidence = 0.5
	r.Payload = payload
	return m.insert(ctx, r)
}

func (m *KnowledgeManager) newRecord(kind models.Kind, sessionID, content string) (*models.Record, error) {
	if sessionID == "" {
		return nil, models.Validation("session_id", "must not be empty")
	}
	if _, err := m.sessions.Ensure(sessionID, time.Now()); err != nil {
		return nil, err
	}
	return &models.Record{
		ID:             uuid.New().String(),
		Kind:           kind,
		SessionID:      sessionID,
		Content:        content,
		ContentHash:    embedding.ContentHash(content),
		SourceSessions: []string{sessionID},
		TokenCount:     m.tokens.CountTokens(content),
		CreatedAt:      time.Now().Unix(),
	}, nil
}

func (m *KnowledgeManager) insert(ctx context.Context, r *models.Record) (*models.AddResponse, error) {
	out, err := m.dedup.Insert(ctx, r)
	if err != nil {
		return nil, err
	}
	return &models.AddResponse{
		ID:              out.ID,
		Suppressed:      out.Suppressed,
		Merged:          out.Merged,
		MergeSimilarity: out.Similarity,
	}, nil
}

func validConfidence(c float64) error {
	if c < 0 || c > 1 {
		return models.Validation("confidence", fmt.Sprintf("must be in [0,1], got %v", c))
	}
	return nil
}
