// Package assemble is the compression engine: it selects and orders records
// for a query so the most useful content survives a fixed token budget.
package assemble

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/memkeep/memkeep/internal/index"
	"github.com/memkeep/memkeep/internal/models"
	"github.com/memkeep/memkeep/internal/quality"
	"github.com/memkeep/memkeep/internal/tokenizer"
	"github.com/memkeep/memkeep/internal/topic"
)

// Defaults for the stale degrade path.
const (
	DefaultStaleAfter   = 14 * 24 * time.Hour
	DefaultDigestTokens = 40
)

// Result is an assembled context window.
type Result struct {
	AssembledText string
	RecordIDs     []string
	TokensUsed    int
}

// Assembler implements the budgeted selection algorithm. The vector index
// contributes the semantic term of the blended score; when the index is
// down, that term is dropped and ranking continues on quality alone.
type Assembler struct {
	index        *index.VectorIndex
	scorer       *quality.Scorer
	tokens       *tokenizer.Tokenizer
	logger       *slog.Logger
	staleAfter   time.Duration
	digestTokens int
}

func New(idx *index.VectorIndex, scorer *quality.Scorer, tokens *tokenizer.Tokenizer, logger *slog.Logger) *Assembler {
	return &Assembler{
		index:        idx,
		scorer:       scorer,
		tokens:       tokens,
		logger:       logger,
		staleAfter:   DefaultStaleAfter,
		digestTokens: DefaultDigestTokens,
	}
}

// SetStalePolicy overrides the age past which unfit candidates degrade to a
// digest, and the digest's token length.
func (a *Assembler) SetStalePolicy(staleAfter time.Duration, digestTokens int) {
	if staleAfter > 0 {
		a.staleAfter = staleAfter
	}
	if digestTokens > 0 {
		a.digestTokens = digestTokens
	}
}

type candidate struct {
	record  *models.Record
	score   float64
	textLen int
}

// Assemble picks records for the query within budget. Candidates come in
// insertion order from the store; the caller passes them so assembly reads
// a single consistent snapshot.
//
// The blended score is similarity * priority, where priority already folds
// in recency decay. Ranking is deterministic: score descending, then newer
// created_at, then higher insertion sequence.
func (a *Assembler) Assemble(ctx context.Context, records []*models.Record, query string, topics []string, budget int) (*Result, error) {
	now := time.Now()

	var candidates []candidate
	for _, r := range records {
		if !topic.MatchesAny(topics, r.Topics) {
			continue
		}
		candidates = append(candidates, candidate{record: r})
	}
	if len(candidates) == 0 || budget <= 0 {
		return &Result{}, nil
	}

	similarities := a.similarityByID(ctx, query, len(records))

	for i := range candidates {
		r := candidates[i].record
		score := a.scorer.Score(r, now)
		if similarities != nil {
			score *= similarities[r.ID]
		}
		candidates[i].score = score
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		ci, cj := candidates[i], candidates[j]
		if ci.score != cj.score {
			return ci.score > cj.score
		}
		if ci.record.CreatedAt != cj.record.CreatedAt {
			return ci.record.CreatedAt > cj.record.CreatedAt
		}
		return ci.record.Seq > cj.record.Seq
	})

	var (
		parts     []string
		ids       []string
		used      int
		remaining = budget
	)
	for _, c := range candidates {
		text := c.record.Content
		cost := a.tokens.CountTokens(text)
		if cost > remaining {
			// Stale candidates degrade to a short digest instead of
			// being dropped outright.
			age := now.Sub(time.Unix(c.record.CreatedAt, 0))
			if age <= a.staleAfter {
				continue
			}
			text = a.digest(text)
			cost = a.tokens.CountTokens(text)
			if cost > remaining || cost == 0 {
				continue
			}
		}
		parts = append(parts, text)
		ids = append(ids, c.record.ID)
		used += cost
		remaining -= cost
		if remaining <= 0 {
			break
		}
	}

	return &Result{
		AssembledText: strings.Join(parts, "\n\n"),
		RecordIDs:     ids,
		TokensUsed:    used,
	}, nil
}

// similarityByID queries the index once and maps record id to similarity.
// Returns nil when the semantic term should be dropped.
func (a *Assembler) similarityByID(ctx context.Context, query string, k int) map[string]float64 {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	hits, err := a.index.TopK(ctx, query, k)
	if err != nil {
		if !errors.Is(err, models.ErrIndexUnavailable) {
			a.logger.Warn("similarity lookup failed, ranking on quality only", "error", err)
		}
		return nil
	}
	sims := make(map[string]float64, len(hits))
	for _, h := range hits {
		// Cosine similarity can be slightly negative; floor at zero so
		// the blended score stays in [0, 1].
		if h.Similarity < 0 {
			sims[h.ID] = 0
			continue
		}
		sims[h.ID] = h.Similarity
	}
	return sims
}

// digest shortens content to a leading slice roughly digestTokens long,
// preferring a sentence boundary when one lands inside the slice.
func (a *Assembler) digest(text string) string {
	limit := a.digestTokens * 4 // inverse of the heuristic token estimate
	if len(text) <= limit {
		return text
	}
	cut := text[:limit]
	if i := strings.LastIndexAny(cut, ".!?"); i > limit/2 {
		return cut[:i+1]
	}
	return cut
}
