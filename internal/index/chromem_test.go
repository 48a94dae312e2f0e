package index

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/memkeep/memkeep/internal/embedding"
	"github.com/memkeep/memkeep/internal/models"
)

func testIndex(t *testing.T) *VectorIndex {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return Open("", embedding.NewLocal(128), logger)
}

func record(kind models.Kind, content string, topics ...string) *models.Record {
	return &models.Record{
		ID:        uuid.New().String(),
		Kind:      kind,
		SessionID: "s1",
		Content:   content,
		Topics:    topics,
		CreatedAt: time.Now().Unix(),
	}
}

type sliceSource []*models.Record

func (s sliceSource) All() ([]*models.Record, error) { return s, nil }

func TestVectorIndexTopK(t *testing.T) {
	ctx := context.Background()
	idx := testIndex(t)

	records := []*models.Record{
		record(models.KindDecision, "use postgres for the primary datastore", "storage"),
		record(models.KindDecision, "use redis for caching hot paths", "caching"),
		record(models.KindConvention, "all handlers return wrapped errors", "errors"),
	}
	for _, r := range records {
		if err := idx.Add(ctx, r); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	t.Run("identical text ranks first", func(t *testing.T) {
		hits, err := idx.TopK(ctx, "use postgres for the primary datastore", 3)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(hits) == 0 {
			t.Fatal("expected hits")
		}
		if hits[0].ID != records[0].ID {
			t.Fatalf("expected exact-text record first, got %s", hits[0].ID)
		}
		if hits[0].Similarity < 0.99 {
			t.Fatalf("expected near-1 similarity for identical text, got %v", hits[0].Similarity)
		}
		if hits[0].Kind != models.KindDecision {
			t.Fatalf("expected kind metadata, got %s", hits[0].Kind)
		}
	})

	t.Run("k clamped to collection size", func(t *testing.T) {
		hits, err := idx.TopK(ctx, "anything", 50)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(hits) != len(records) {
			t.Fatalf("expected %d hits, got %d", len(records), len(hits))
		}
	})

	t.Run("empty collection yields no hits", func(t *testing.T) {
		empty := testIndex(t)
		hits, err := empty.TopK(ctx, "anything", 5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if hits != nil {
			t.Fatalf("expected nil hits, got %v", hits)
		}
	})
}

func TestVectorIndexRemove(t *testing.T) {
	ctx := context.Background()
	idx := testIndex(t)

	r := record(models.KindUserMessage, "transient chatter")
	if err := idx.Add(ctx, r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx.Count() != 1 {
		t.Fatalf("expected count 1, got %d", idx.Count())
	}
	if err := idx.Remove(ctx, []string{r.ID}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx.Count() != 0 {
		t.Fatalf("expected count 0 after remove, got %d", idx.Count())
	}
}

func TestVectorIndexRebuild(t *testing.T) {
	ctx := context.Background()
	idx := testIndex(t)

	// Stale entry that the source of truth no longer contains.
	stale := record(models.KindUserMessage, "deleted long ago")
	if err := idx.Add(ctx, stale); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	src := sliceSource{
		record(models.KindDecision, "keep the monolith for now", "architecture"),
		record(models.KindLearning, "integration tests need real sqlite", "testing"),
	}
	n, err := idx.Rebuild(ctx, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 records indexed, got %d", n)
	}
	if idx.Count() != 2 {
		t.Fatalf("expected stale entry dropped, count=%d", idx.Count())
	}

	hits, err := idx.TopK(ctx, "keep the monolith for now", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != src[0].ID {
		t.Fatal("expected rebuilt index to serve the new records")
	}
}

func TestVectorIndexUnavailable(t *testing.T) {
	ctx := context.Background()
	idx := &VectorIndex{} // never opened

	if idx.Available() {
		t.Fatal("expected unavailable")
	}
	if _, err := idx.TopK(ctx, "anything", 5); err != models.ErrIndexUnavailable {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}
	if err := idx.Add(ctx, record(models.KindDecision, "x")); err != models.ErrIndexUnavailable {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}
	if idx.Count() != 0 {
		t.Fatal("unavailable index reports zero vectors")
	}
}
