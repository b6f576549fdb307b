// Package cache memoizes embeddings in a bounded ristretto cache.
//
// Ingest and retrieve often embed the same text (a user repeating a
// question, or a memory being re-asked verbatim), and remote embedders
// charge per call.
package cache

import (
	"context"
	"fmt"
	"log"

	"github.com/dgraph-io/ristretto"

	"github.com/becomeliminal/recall/memory"
)

// Config sizes the cache.
type Config struct {
	// MaxEntries bounds how many embeddings are kept. Default: 10000.
	MaxEntries int64
}

// Embedder wraps another embedder with a cache keyed by exact text.
type Embedder struct {
	next  memory.Embedder
	cache *ristretto.Cache
}

var _ memory.Embedder = (*Embedder)(nil)

// New wraps next.
func New(next memory.Embedder, cfg Config) (*Embedder, error) {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10000
	}

	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.MaxEntries * 10,
		MaxCost:     cfg.MaxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}

	log.Printf("[CACHE] Embedding cache enabled (max_entries=%d)", cfg.MaxEntries)
	return &Embedder{next: next, cache: c}, nil
}

// Embed returns the cached vector for text, embedding it on a miss.
// Failures are never cached.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.cache.Get(text); ok {
		if vec, ok := v.([]float32); ok {
			return clone(vec), nil
		}
	}

	vec, err := e.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	e.cache.Set(text, clone(vec), 1)
	return vec, nil
}

// Dimensions delegates to the wrapped embedder.
func (e *Embedder) Dimensions() int {
	return e.next.Dimensions()
}

// Wait blocks until pending writes are visible to Get.
func (e *Embedder) Wait() {
	e.cache.Wait()
}

// Close releases the cache.
func (e *Embedder) Close() error {
	e.cache.Close()
	return nil
}

func clone(vec []float32) []float32 {
	out := make([]float32, len(vec))
	copy(out, vec)
	return out
}
