// Package extract mines session transcripts for decision and convention
// language at session boundaries.
package extract

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/memkeep/memkeep/internal/dedup"
	"github.com/memkeep/memkeep/internal/embedding"
	"github.com/memkeep/memkeep/internal/models"
	"github.com/memkeep/memkeep/internal/tokenizer"
)

// Extractor scans assistant text sentence-by-sentence against an ordered
// pattern list. The first pattern matching a sentence wins; sentences
// matching nothing are skipped, which is the common case and not an error.
// Every candidate routes through the deduplicator, which is what makes
// reprocessing a session idempotent.
type Extractor struct {
	patterns []Pattern
	dedup    *dedup.Deduplicator
	tokens   *tokenizer.Tokenizer
	logger   *slog.Logger
}

func New(patterns []Pattern, d *dedup.Deduplicator, tokens *tokenizer.Tokenizer, logger *slog.Logger) *Extractor {
	return &Extractor{
		patterns: patterns,
		dedup:    d,
		tokens:   tokens,
		logger:   logger,
	}
}

// Candidate is one extracted knowledge fact before persistence.
type Candidate struct {
	Kind      models.Kind
	Content   string
	Rationale string
}

// Scan extracts candidates from free text without persisting anything.
func (e *Extractor) Scan(text string) []Candidate {
	var out []Candidate
	for _, sentence := range splitSentences(text) {
		for _, p := range e.patterns {
			m := p.Re.FindStringSubmatch(sentence)
			if m == nil {
				continue
			}
			c := Candidate{Kind: p.Kind, Content: strings.TrimSpace(m[1])}
			if len(m) > 2 {
				c.Rationale = strings.TrimSpace(m[2])
			}
			if c.Content != "" {
				out = append(out, c)
			}
			break // first matching pattern wins for this sentence
		}
	}
	return out
}

// Result summarizes one extraction run.
type Result struct {
	Extracted  int
	Suppressed int
	Merged     int
}

// ProcessTranscript scans the assistant text of a session and persists the
// extracted knowledge through the deduplicator.
func (e *Extractor) ProcessTranscript(ctx context.Context, sessionID string, assistantTexts []string) (*Result, error) {
	res := &Result{}
	now := time.Now().Unix()
	for _, text := range assistantTexts {
		for _, c := range e.Scan(text) {
			r := &models.Record{
				ID:             uuid.New().String(),
				Kind:           c.Kind,
				SessionID:      sessionID,
				Content:        c.Content,
				ContentHash:    embedding.ContentHash(c.Content),
				Confidence:     extractedConfidence,
				SourceSessions: []string{sessionID},
				TokenCount:     e.tokens.CountTokens(c.Content),
				CreatedAt:      now,
			}
			if c.Kind == models.KindDecision && c.Rationale != "" {
				if err := r.EncodePayload(models.DecisionPayload{Rationale: c.Rationale}); err != nil {
					return nil, err
				}
			}
			out, err := e.dedup.Insert(ctx, r)
			if err != nil {
				return nil, err
			}
			switch {
			case out.Suppressed:
				res.Suppressed++
			case out.Merged:
				res.Merged++
			default:
				res.Extracted++
			}
		}
	}
	e.logger.Info("session extraction complete",
		"session_id", sessionID,
		"extracted", res.Extracted,
		"suppressed", res.Suppressed,
		"merged", res.Merged,
	)
	return res, nil
}

// extractedConfidence is the starting confidence for pattern-mined facts,
// below explicitly recorded knowledge and subject to the same decay.
const extractedConfidence = 0.7

// splitSentences breaks text on sentence punctuation and newlines. Trailing
// punctuation is stripped so end-anchored patterns see clean sentences.
func splitSentences(text string) []string {
	var (
		sentences []string
		start     int
	)
	flush := func(end int) {
		s := strings.TrimSpace(text[start:end])
		s = strings.TrimRight(s, ".!?")
		if s != "" {
			sentences = append(sentences, s)
		}
	}
	for i, r := range text {
		switch r {
		case '.', '!', '?', '\n':
			flush(i + 1)
			start = i + 1
		}
	}
	flush(len(text))
	return sentences
}
