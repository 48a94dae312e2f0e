package dedup

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/memkeep/memkeep/internal/embedding"
	"github.com/memkeep/memkeep/internal/index"
	"github.com/memkeep/memkeep/internal/models"
	"github.com/memkeep/memkeep/internal/store"
)

type harness struct {
	records  *store.RecordStore
	counters *store.CounterStore
	index    *index.VectorIndex
	dedup    *Deduplicator
}

func setup(t *testing.T) *harness {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	records := store.NewRecordStore(db)
	counters := store.NewCounterStore(db)
	idx := index.Open("", embedding.NewLocal(128), logger)
	return &harness{
		records:  records,
		counters: counters,
		index:    idx,
		dedup:    New(records, counters, idx, DefaultNearDupThreshold, logger),
	}
}

func userMessage(content string) *models.Record {
	return &models.Record{
		ID:          uuid.New().String(),
		Kind:        models.KindUserMessage,
		SessionID:   "s1",
		Turn:        1,
		Content:     content,
		ContentHash: embedding.ContentHash(content),
		CreatedAt:   time.Now().Unix(),
	}
}

func learning(content string, confidence float64, topics []string, sources []string) *models.Record {
	return &models.Record{
		ID:             uuid.New().String(),
		Kind:           models.KindLearning,
		SessionID:      sources[0],
		Content:        content,
		ContentHash:    embedding.ContentHash(content),
		Confidence:     confidence,
		Topics:         topics,
		SourceSessions: sources,
		CreatedAt:      time.Now().Unix(),
	}
}

func TestExactDuplicateSuppression(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	first, err := h.dedup.Insert(ctx, userMessage("how do I configure the linter?"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Suppressed {
		t.Fatal("first insert must not be suppressed")
	}

	// Same content twice more, differing only in whitespace and case.
	for _, text := range []string{
		"How do I configure   the linter?",
		"HOW DO I CONFIGURE THE LINTER?",
	} {
		out, err := h.dedup.Insert(ctx, userMessage(text))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !out.Suppressed {
			t.Fatalf("expected suppression for %q", text)
		}
		if out.ID != first.ID {
			t.Fatalf("suppressed insert must point at the original, got %s", out.ID)
		}
	}

	count, err := h.records.CountsByKind()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count[models.KindUserMessage] != 1 {
		t.Fatalf("expected 1 stored record, got %d", count[models.KindUserMessage])
	}
	suppressed, _ := h.counters.Get(store.CounterSuppressed)
	if suppressed != 2 {
		t.Fatalf("expected suppression count 2, got %d", suppressed)
	}
}

func TestNearDuplicateKnowledgeMerge(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	first, err := h.dedup.Insert(ctx, learning(
		"integration tests need a real sqlite file",
		0.6, []string{"testing"}, []string{"sess-1"},
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Identical content hashes identically, so force a near (not exact)
	// duplicate by registering under a different hash but the same text.
	dup := learning(
		"integration tests need a real sqlite file",
		0.9, []string{"testing", "sqlite"}, []string{"sess-2"},
	)
	dup.ContentHash = "different-hash"

	out, err := h.dedup.Insert(ctx, dup)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Merged {
		t.Fatal("expected near-duplicate merge")
	}
	if out.ID != first.ID {
		t.Fatalf("merge must target the existing record, got %s", out.ID)
	}
	if out.Similarity < DefaultNearDupThreshold {
		t.Fatalf("merge similarity %v below threshold", out.Similarity)
	}

	merged, err := h.records.GetByID(first.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if merged.Confidence != 0.9 {
		t.Fatalf("expected max confidence 0.9, got %v", merged.Confidence)
	}
	if len(merged.Topics) != 2 {
		t.Fatalf("expected topic union, got %v", merged.Topics)
	}
	if len(merged.SourceSessions) != 2 {
		t.Fatalf("expected extended source sessions, got %v", merged.SourceSessions)
	}

	mergedCount, _ := h.counters.Get(store.CounterMerged)
	if mergedCount != 1 {
		t.Fatalf("expected merge count 1, got %d", mergedCount)
	}
}

func TestConversationRecordsNeverMerge(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	if _, err := h.dedup.Insert(ctx, userMessage("please fix the login bug")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	similar := userMessage("please fix the login bug")
	similar.ContentHash = "different-hash"
	out, err := h.dedup.Insert(ctx, similar)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Merged || out.Suppressed {
		t.Fatal("conversation records only dedup on exact hash")
	}

	count, _ := h.records.CountsByKind()
	if count[models.KindUserMessage] != 2 {
		t.Fatalf("expected both messages stored, got %d", count[models.KindUserMessage])
	}
}

func TestDegradedIndexSkipsNearDup(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	records := store.NewRecordStore(db)
	counters := store.NewCounterStore(db)
	broken := &index.VectorIndex{} // never opened, always unavailable
	d := New(records, counters, broken, DefaultNearDupThreshold, logger)
	ctx := context.Background()

	if _, err := d.Insert(ctx, learning("offline insight", 0.5, []string{"x"}, []string{"s"})); err != nil {
		t.Fatalf("insert must succeed without the index: %v", err)
	}

	// Exact suppression still works from the hash alone.
	out, err := d.Insert(ctx, learning("offline insight", 0.5, []string{"x"}, []string{"s"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Suppressed {
		t.Fatal("exact dedup must survive index loss")
	}
}
