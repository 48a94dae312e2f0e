// Package memory wires the store, deduplicator, index, scorer and assembler
// into one service façade constructed once at process start.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/memkeep/memkeep/internal/assemble"
	"github.com/memkeep/memkeep/internal/extract"
	"github.com/memkeep/memkeep/internal/index"
	"github.com/memkeep/memkeep/internal/models"
	"github.com/memkeep/memkeep/internal/quality"
	"github.com/memkeep/memkeep/internal/store"
)

// Service is the process-wide façade over the retention engine. One
// instance is built in main and shared by every handler.
type Service struct {
	Conversation *ConversationManager
	Knowledge    *KnowledgeManager

	records   *store.RecordStore
	sessions  *store.SessionStore
	counters  *store.CounterStore
	keyword   *store.KeywordStore
	index     *index.VectorIndex
	scorer    *quality.Scorer
	assembler *assemble.Assembler
	extractor *extract.Extractor
	logger    *slog.Logger
}

// Deps collects the collaborators main constructs.
type Deps struct {
	Records   *store.RecordStore
	Sessions  *store.SessionStore
	Counters  *store.CounterStore
	Keyword   *store.KeywordStore
	Index     *index.VectorIndex
	Scorer    *quality.Scorer
	Assembler *assemble.Assembler
	Extractor *extract.Extractor
	Logger    *slog.Logger

	Conversation *ConversationManager
	Knowledge    *KnowledgeManager
}

func NewService(d Deps) *Service {
	return &Service{
		Conversation: d.Conversation,
		Knowledge:    d.Knowledge,
		records:      d.Records,
		sessions:     d.Sessions,
		counters:     d.Counters,
		keyword:      d.Keyword,
		index:        d.Index,
		scorer:       d.Scorer,
		assembler:    d.Assembler,
		extractor:    d.Extractor,
		logger:       d.Logger,
	}
}

// Search ranks records against a free-text query. The vector index drives
// similarity ranking; when it is unavailable the keyword path takes over
// and results are flagged degraded with no similarity score.
func (s *Service) Search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	if req.Query == "" {
		return nil, models.Validation("query", "must not be empty")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	kindOK := func(k models.Kind) bool {
		if len(req.TypeFilter) == 0 {
			return true
		}
		for _, want := range req.TypeFilter {
			if k == want {
				return true
			}
		}
		return false
	}

	// Over-fetch so post-filtering by kind and confidence still fills the
	// requested limit.
	hits, err := s.index.TopK(ctx, req.Query, limit*3)
	if err != nil {
		if !errors.Is(err, models.ErrIndexUnavailable) {
			return nil, err
		}
		s.logger.Warn("search degraded to keyword ranking", "error", err)
		return s.keywordSearch(req, limit, kindOK)
	}

	resp := &models.SearchResponse{Results: []models.SearchResult{}}
	for _, h := range hits {
		if len(resp.Results) >= limit {
			break
		}
		if !kindOK(h.Kind) {
			continue
		}
		r, err := s.records.GetByID(h.ID)
		if errors.Is(err, models.ErrNotFound) {
			continue // stale index entry, rebuild will clear it
		}
		if err != nil {
			return nil, err
		}
		if req.ConfidenceFloor > 0 && r.Kind.Family() == models.FamilyKnowledge && r.Confidence < req.ConfidenceFloor {
			continue
		}
		resp.Results = append(resp.Results, searchResult(r, h.Similarity, true))
		s.touch(r.ID)
	}
	return resp, nil
}

func (s *Service) keywordSearch(req *models.SearchRequest, limit int, kindOK func(models.Kind) bool) (*models.SearchResponse, error) {
	matches, err := s.keyword.Search(req.Query, limit*3)
	if err != nil {
		return nil, err
	}
	resp := &models.SearchResponse{Results: []models.SearchResult{}, Degraded: true}
	for _, m := range matches {
		if len(resp.Results) >= limit {
			break
		}
		r, err := s.records.GetByID(m.ID)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !kindOK(r.Kind) {
			continue
		}
		if req.ConfidenceFloor > 0 && r.Kind.Family() == models.FamilyKnowledge && r.Confidence < req.ConfidenceFloor {
			continue
		}
		resp.Results = append(resp.Results, searchResult(r, 0, false))
		s.touch(r.ID)
	}
	return resp, nil
}

func searchResult(r *models.Record, similarity float64, similarityAvailable bool) models.SearchResult {
	md := map[string]string{
		"session_id": r.SessionID,
		"created_at": time.Unix(r.CreatedAt, 0).UTC().Format(time.RFC3339),
	}
	if len(r.Topics) > 0 {
		md["topics"] = strings.Join(r.Topics, ",")
	}
	return models.SearchResult{
		ID:                  r.ID,
		Text:                r.Content,
		Type:                r.Kind,
		Similarity:          similarity,
		SimilarityAvailable: similarityAvailable,
		Metadata:            md,
	}
}

func (s *Service) touch(id string) {
	if err := s.records.IncrementAccess(id); err != nil {
		s.logger.Warn("access count not recorded", "id", id, "error", err)
	}
}

// BuildContext assembles a budgeted context window for an agent.
func (s *Service) BuildContext(ctx context.Context, req *models.BuildContextRequest) (*models.BuildContextResponse, error) {
	if req.TokenBudget < 0 {
		return nil, models.Validation("token_budget", "must not be negative")
	}
	records, err := s.records.All()
	if err != nil {
		return nil, err
	}
	res, err := s.assembler.Assemble(ctx, records, req.Query, req.Topics, req.TokenBudget)
	if err != nil {
		return nil, err
	}
	for _, id := range res.RecordIDs {
		s.touch(id)
	}
	s.logger.Debug("context assembled",
		"agent", req.Agent,
		"records", len(res.RecordIDs),
		"tokens_used", res.TokensUsed,
		"budget", req.TokenBudget,
	)
	return &models.BuildContextResponse{
		AssembledText: res.AssembledText,
		RecordIDs:     res.RecordIDs,
		TokensUsed:    res.TokensUsed,
	}, nil
}

// Stats reports store-wide counts and the persistent dedup counters.
func (s *Service) Stats() (*models.StatsResponse, error) {
	counts, err := s.records.CountsByKind()
	if err != nil {
		return nil, err
	}
	byType := make(map[string]int, len(counts))
	for k, n := range counts {
		byType[string(k)] = n
	}
	total, err := s.records.TotalTokens()
	if err != nil {
		return nil, err
	}
	suppressed, err := s.counters.Get(store.CounterSuppressed)
	if err != nil {
		return nil, err
	}
	merged, err := s.counters.Get(store.CounterMerged)
	if err != nil {
		return nil, err
	}
	return &models.StatsResponse{
		CountsByType:     byType,
		TotalTokens:      int64(total),
		SuppressionCount: suppressed,
		MergeCount:       merged,
	}, nil
}

// GetRecord fetches one record by id.
func (s *Service) GetRecord(id string) (*models.Record, error) {
	return s.records.GetByID(id)
}

// GetSession fetches one session by id.
func (s *Service) GetSession(id string) (*models.Session, error) {
	return s.sessions.GetByID(id)
}

// ListSessions returns recent sessions.
func (s *Service) ListSessions(limit int) ([]*models.Session, error) {
	return s.sessions.List(limit)
}

// EndSession closes a session and runs knowledge extraction exactly once.
// A session already closing or closed is left alone.
func (s *Service) EndSession(ctx context.Context, sessionID string) (*extract.Result, error) {
	if sessionID == "" {
		return nil, models.Validation("session_id", "must not be empty")
	}
	won, err := s.sessions.BeginClose(sessionID, time.Now())
	if err != nil {
		return nil, err
	}
	if !won {
		return &extract.Result{}, nil
	}
	res, err := s.runExtraction(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.MarkClosed(sessionID); err != nil {
		return nil, err
	}
	return res, nil
}

// ReprocessSession re-runs extraction on a closed session. The dedup layer
// makes this idempotent: already-extracted facts are suppressed or merged,
// never duplicated.
func (s *Service) ReprocessSession(ctx context.Context, sessionID string) (*extract.Result, error) {
	if sessionID == "" {
		return nil, models.Validation("session_id", "must not be empty")
	}
	if err := s.sessions.Reopen(sessionID); err != nil {
		return nil, err
	}
	res, err := s.runExtraction(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.MarkClosed(sessionID); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) runExtraction(ctx context.Context, sessionID string) (*extract.Result, error) {
	records, err := s.records.BySession(sessionID)
	if err != nil {
		return nil, err
	}
	var texts []string
	for _, r := range records {
		if r.Kind == models.KindAssistantMessage {
			texts = append(texts, r.Content)
		}
	}
	return s.extractor.ProcessTranscript(ctx, sessionID, texts)
}

// Decay applies a confidence decay pass to knowledge records. Factor must
// be in (0, 1] so decay is monotonically non-increasing.
func (s *Service) Decay(req *models.DecayRequest) (*models.DecayResponse, error) {
	if req.Factor <= 0 || req.Factor > 1 {
		return nil, models.Validation("factor", fmt.Sprintf("must be in (0,1], got %v", req.Factor))
	}
	if req.MinAgeDays < 0 {
		return nil, models.Validation("min_age_days", "must not be negative")
	}
	n, err := s.records.DecayConfidence(req.Factor, req.MinAgeDays, time.Now())
	if err != nil {
		return nil, err
	}
	s.logger.Info("confidence decay applied", "factor", req.Factor, "updated", n)
	return &models.DecayResponse{Updated: n}, nil
}

// RefreshVerified stamps a knowledge record as re-verified now.
func (s *Service) RefreshVerified(id string) error {
	return s.records.RefreshVerified(id, time.Now())
}

// Prune deletes records by explicit caller-driven criteria: age, quality
// floor, or both. Nothing is ever deleted implicitly.
func (s *Service) Prune(ctx context.Context, req *models.PruneRequest) (*models.PruneResponse, error) {
	if req.MaxAgeDays <= 0 && req.QualityFloor <= 0 {
		return nil, models.Validation("prune", "at least one of max_age_days or quality_floor is required")
	}
	if !req.ConversationOK && !req.KnowledgeOK {
		return nil, models.Validation("prune", "select at least one record family")
	}
	records, err := s.records.All()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	var doomed []string
	for _, r := range records {
		family := r.Kind.Family()
		if family == models.FamilyConversation && !req.ConversationOK {
			continue
		}
		if family == models.FamilyKnowledge && !req.KnowledgeOK {
			continue
		}
		tooOld := req.MaxAgeDays > 0 && time.Unix(r.CreatedAt, 0).Before(now.AddDate(0, 0, -req.MaxAgeDays))
		tooPoor := req.QualityFloor > 0 && s.scorer.Score(r, now) < req.QualityFloor
		if tooOld || tooPoor {
			doomed = append(doomed, r.ID)
		}
	}
	if err := s.records.DeleteByIDs(doomed); err != nil {
		return nil, err
	}
	if err := s.index.Remove(ctx, doomed); err != nil && !errors.Is(err, models.ErrIndexUnavailable) {
		s.logger.Warn("index eviction incomplete, rebuild will reconcile", "error", err)
	}
	s.logger.Info("prune complete", "deleted", len(doomed))
	return &models.PruneResponse{Deleted: len(doomed)}, nil
}

// RebuildIndex regenerates the derived search structures from the record
// store: the vector index and the FTS keyword mirror.
func (s *Service) RebuildIndex(ctx context.Context) (int, error) {
	n, err := s.index.Rebuild(ctx, s.records)
	if err != nil {
		return 0, err
	}
	if _, err := s.records.RebuildFTS(); err != nil {
		return 0, err
	}
	s.logger.Info("search structures rebuilt", "records", n)
	return n, nil
}

// IndexAvailable reports whether similarity search is currently usable.
func (s *Service) IndexAvailable() bool {
	return s.index.Available()
}
