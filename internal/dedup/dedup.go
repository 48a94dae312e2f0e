// Package dedup keeps the store free of redundant records. Exact duplicates
// (same kind, same normalized-content hash) are suppressed; near-duplicate
// knowledge records are merged into the existing record instead of stored
// twice.
package dedup

import (
	"context"
	"errors"
	"log/slog"

	"github.com/memkeep/memkeep/internal/index"
	"github.com/memkeep/memkeep/internal/models"
	"github.com/memkeep/memkeep/internal/store"
)

// DefaultNearDupThreshold is the cosine similarity at or above which two
// knowledge records are considered the same fact.
const DefaultNearDupThreshold = 0.85

// Outcome describes what happened to an incoming record.
type Outcome struct {
	// ID of the surviving record: the new record's own id, or the
	// existing record it was folded into.
	ID         string
	Suppressed bool
	Merged     bool
	// Similarity to the merge target, set only when Merged.
	Similarity float64
}

// Deduplicator sits on the write path in front of the record store.
type Deduplicator struct {
	records   *store.RecordStore
	counters  *store.CounterStore
	index     *index.VectorIndex
	threshold float64
	logger    *slog.Logger
}

func New(records *store.RecordStore, counters *store.CounterStore, idx *index.VectorIndex, threshold float64, logger *slog.Logger) *Deduplicator {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultNearDupThreshold
	}
	return &Deduplicator{
		records:   records,
		counters:  counters,
		index:     idx,
		threshold: threshold,
		logger:    logger,
	}
}

// Insert stores r unless it duplicates existing content. The whole
// check-then-insert cycle runs under the kind's write lock so concurrent
// identical adds cannot both pass the hash check.
//
// Exact duplicates of any kind are suppressed. Near-duplicates apply to the
// knowledge family only and fold into the existing record: confidence takes
// the max, topics union, source sessions extend, existing content wins. A
// degraded vector index silently skips the near-duplicate pass; exact
// suppression still works from the hash alone.
func (d *Deduplicator) Insert(ctx context.Context, r *models.Record) (*Outcome, error) {
	var out *Outcome
	err := d.records.WithLock(r.Kind, func() error {
		existing, err := d.records.FindByContentHash(r.Kind, r.ContentHash)
		if err != nil {
			return err
		}
		if existing != nil {
			if cerr := d.counters.Increment(store.CounterSuppressed); cerr != nil {
				d.logger.Warn("suppression counter not recorded", "error", cerr)
			}
			out = &Outcome{ID: existing.ID, Suppressed: true}
			return nil
		}

		if r.Kind.Family() == models.FamilyKnowledge {
			target, sim, err := d.nearest(ctx, r)
			if err != nil && !errors.Is(err, models.ErrIndexUnavailable) {
				return err
			}
			if target != nil && sim >= d.threshold {
				if err := d.records.MergeKnowledge(target, r.Confidence, r.Topics, r.SourceSessions); err != nil {
					return err
				}
				if cerr := d.counters.Increment(store.CounterMerged); cerr != nil {
					d.logger.Warn("merge counter not recorded", "error", cerr)
				}
				out = &Outcome{ID: target.ID, Merged: true, Similarity: sim}
				return nil
			}
		}

		if err := d.records.Add(r); err != nil {
			return err
		}
		if err := d.index.Add(ctx, r); err != nil && !errors.Is(err, models.ErrIndexUnavailable) {
			d.logger.Warn("record not indexed, rebuild will pick it up", "id", r.ID, "error", err)
		}
		out = &Outcome{ID: r.ID}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// nearest finds the closest indexed record of the same kind.
func (d *Deduplicator) nearest(ctx context.Context, r *models.Record) (*models.Record, float64, error) {
	hits, err := d.index.TopK(ctx, r.Content, 10)
	if err != nil {
		return nil, 0, err
	}
	for _, h := range hits {
		if h.Kind != r.Kind {
			continue
		}
		target, err := d.records.GetByID(h.ID)
		if errors.Is(err, models.ErrNotFound) {
			continue // stale index entry
		}
		if err != nil {
			return nil, 0, err
		}
		return target, h.Similarity, nil
	}
	return nil, 0, nil
}
