package memory

import (
	"context"

	"github.com/becomeliminal/recall/core"
)

// Store is the vector storage backend interface.
// Implementations: chromem (local, persistent), sqlitevec, postgres (pgvector).
//
// Concurrent Store and Query calls from different sessions must be safe;
// Pipeline performs no locking of its own.
type Store interface {
	// Store saves a record with its embedding as a single insert.
	// Record must have its embedding set before calling Store.
	Store(ctx context.Context, rec *Record) error

	// Query retrieves at most limit records by vector similarity,
	// most similar first. An empty store yields no records and no error.
	Query(ctx context.Context, embedding []float32, limit int) ([]*Record, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// Close releases resources.
	Close() error
}

// Embedder converts text to vector embeddings.
// All records in a store must come from the same embedder.
type Embedder interface {
	// Embed converts a single text to embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns embedding vector size.
	Dimensions() int
}

// LanguageModel produces a completion for role-tagged messages.
type LanguageModel interface {
	Generate(ctx context.Context, messages []core.Message) (string, error)
}
