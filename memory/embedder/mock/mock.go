// Package mock provides a deterministic embedder for tests and offline use.
package mock

import (
	"context"
	"hash/fnv"
	"math"
	"sync/atomic"
)

// DefaultDimensions matches all-MiniLM-L6-v2.
const DefaultDimensions = 384

// HashEmbedder generates deterministic embeddings from a hash of the text.
// Identical texts always map to identical unit vectors; different texts map
// to unrelated ones, so only exact-match recall is meaningful.
type HashEmbedder struct {
	dimensions int
	calls      atomic.Int64

	// Err, when set, is returned from every Embed call.
	Err error
}

// New creates a hash embedder with DefaultDimensions.
func New() *HashEmbedder {
	return NewWithDimensions(DefaultDimensions)
}

// NewWithDimensions creates a hash embedder producing dims-sized vectors.
func NewWithDimensions(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &HashEmbedder{dimensions: dims}
}

// Embed creates a deterministic embedding from text.
func (m *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls.Add(1)
	if m.Err != nil {
		return nil, m.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	embedding := make([]float32, m.dimensions)
	for i := range embedding {
		// LCG step, mapped to [-1, 1]
		seed = seed*6364136223846793005 + 1442695040888963407
		embedding[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}

	return normalize(embedding), nil
}

// Dimensions returns the embedding size.
func (m *HashEmbedder) Dimensions() int {
	return m.dimensions
}

// Calls returns how many times Embed was invoked.
func (m *HashEmbedder) Calls() int64 {
	return m.calls.Load()
}

// normalize converts embedding to unit vector.
func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}

	norm = math.Sqrt(norm)
	for i, v := range vec {
		vec[i] = float32(float64(v) / norm)
	}
	return vec
}
