package index

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/memkeep/memkeep/internal/embedding"
	"github.com/memkeep/memkeep/internal/models"
)

const collectionName = "records"

// Hit is a similarity match from the vector index.
type Hit struct {
	ID         string
	Similarity float64
	Kind       models.Kind
	Topics     []string
}

// VectorIndex wraps chromem-go as a derived, rebuildable similarity cache.
// The record store is the source of truth; every id and vector here can be
// regenerated from it. Any failure degrades to models.ErrIndexUnavailable
// rather than taking the service down.
type VectorIndex struct {
	mu        sync.RWMutex
	db        *chromem.DB
	col       *chromem.Collection
	embedder  embedding.Embedder
	logger    *slog.Logger
	available bool
}

// Open creates or loads the persistent index at dir. An empty dir keeps the
// index in memory, which tests use. A load failure returns a usable index
// that reports unavailable until the next Rebuild.
func Open(dir string, embedder embedding.Embedder, logger *slog.Logger) *VectorIndex {
	idx := &VectorIndex{embedder: embedder, logger: logger}

	var db *chromem.DB
	var err error
	if dir == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(dir, false)
		if err != nil {
			logger.Warn("vector index unavailable, search degrades to keyword", "error", err)
			return idx
		}
	}

	col, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		logger.Warn("vector index collection unavailable", "error", err)
		return idx
	}

	idx.db = db
	idx.col = col
	idx.available = true
	return idx
}

// Available reports whether similarity search is currently usable.
func (i *VectorIndex) Available() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.available
}

// Add embeds and indexes a record. Failure is non-fatal for the caller's
// write path: the record is already durable in the store.
func (i *VectorIndex) Add(ctx context.Context, r *models.Record) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.available {
		return models.ErrIndexUnavailable
	}
	vec, err := i.embedder.Embed(r.Content)
	if err != nil {
		return fmt.Errorf("embed record: %w", err)
	}
	doc := chromem.Document{
		ID:        r.ID,
		Content:   r.Content,
		Embedding: vec,
		Metadata: map[string]string{
			"kind":       string(r.Kind),
			"family":     string(r.Kind.Family()),
			"topics":     strings.Join(r.Topics, ","),
			"created_at": strconv.FormatInt(r.CreatedAt, 10),
		},
	}
	if err := i.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("index record: %w", err)
	}
	return nil
}

// Remove evicts ids after a prune. Missing ids are ignored.
func (i *VectorIndex) Remove(ctx context.Context, ids []string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.available {
		return models.ErrIndexUnavailable
	}
	if len(ids) == 0 {
		return nil
	}
	if err := i.col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("evict from index: %w", err)
	}
	return nil
}

// TopK returns the k nearest records to the query text. k is clamped to the
// collection size; an empty collection returns no hits.
func (i *VectorIndex) TopK(ctx context.Context, query string, k int) ([]Hit, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if !i.available {
		return nil, models.ErrIndexUnavailable
	}
	count := i.col.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}
	if k <= 0 {
		k = 1
	}
	vec, err := i.embedder.Embed(query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results, err := i.col.QueryEmbedding(ctx, vec, k, nil, nil)
	if err != nil {
		return nil, models.ErrIndexUnavailable
	}
	hits := make([]Hit, 0, len(results))
	for _, res := range results {
		var topics []string
		if raw := res.Metadata["topics"]; raw != "" {
			topics = strings.Split(raw, ",")
		}
		hits = append(hits, Hit{
			ID:         res.ID,
			Similarity: float64(res.Similarity),
			Kind:       models.Kind(res.Metadata["kind"]),
			Topics:     topics,
		})
	}
	return hits, nil
}

// RecordSource provides the records to reindex. Satisfied by the store.
type RecordSource interface {
	All() ([]*models.Record, error)
}

// Rebuild drops the collection and reindexes every record from the source
// of truth, recovering from a deleted or corrupt index directory.
func (i *VectorIndex) Rebuild(ctx context.Context, src RecordSource) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.db == nil {
		return 0, models.ErrIndexUnavailable
	}
	if err := i.db.DeleteCollection(collectionName); err != nil {
		return 0, models.ErrIndexUnavailable
	}
	col, err := i.db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		i.available = false
		return 0, models.ErrIndexUnavailable
	}
	i.col = col
	i.available = true

	records, err := src.All()
	if err != nil {
		return 0, err
	}
	indexed := 0
	for _, r := range records {
		vec, err := i.embedder.Embed(r.Content)
		if err != nil {
			i.logger.Warn("skipping record during rebuild", "id", r.ID, "error", err)
			continue
		}
		doc := chromem.Document{
			ID:        r.ID,
			Content:   r.Content,
			Embedding: vec,
			Metadata: map[string]string{
				"kind":       string(r.Kind),
				"family":     string(r.Kind.Family()),
				"topics":     strings.Join(r.Topics, ","),
				"created_at": strconv.FormatInt(r.CreatedAt, 10),
			},
		}
		if err := i.col.AddDocument(ctx, doc); err != nil {
			i.logger.Warn("skipping record during rebuild", "id", r.ID, "error", err)
			continue
		}
		indexed++
	}
	return indexed, nil
}

// Count returns the number of indexed vectors.
func (i *VectorIndex) Count() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if !i.available {
		return 0
	}
	return i.col.Count()
}
