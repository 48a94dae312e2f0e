// Package embedding converts record text to fixed-size vectors and provides
// the normalized content hashing used for exact deduplication.
package embedding

import (
	"crypto/sha256"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
)

// Embedder converts text to a vector. Implementations: LocalEmbedder
// (deterministic, offline), OllamaClient (real semantic model), and
// CachedEmbedder wrapping either.
type Embedder interface {
	Embed(text string) ([]float32, error)
	Dimensions() int
}

// LocalEmbedder generates deterministic embeddings from a text hash. It has
// no semantic power but keeps the full pipeline (index, dedup, assembly)
// functional and reproducible without an external model.
type LocalEmbedder struct {
	dim int
}

// NewLocal creates a local embedder with the given dimensionality.
func NewLocal(dim int) *LocalEmbedder {
	if dim <= 0 {
		dim = 256
	}
	return &LocalEmbedder{dim: dim}
}

// Embed produces a unit vector seeded by the FNV hash of the text.
func (e *LocalEmbedder) Embed(text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, e.dim)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalize(vec), nil
}

func (e *LocalEmbedder) Dimensions() int { return e.dim }

func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

// NormalizeContent collapses whitespace and lowercases text so that
// formatting-only differences hash identically.
func NormalizeContent(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// ContentHash computes the stable SHA-256 hash of normalized content.
func ContentHash(text string) string {
	h := sha256.Sum256([]byte(NormalizeContent(text)))
	return fmt.Sprintf("%x", h)
}
