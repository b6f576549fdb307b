package chromem

import (
	"context"
	"fmt"
	"log"

	chromem "github.com/philippgille/chromem-go"

	"github.com/becomeliminal/recall/memory"
)

// DefaultCollection is the collection every memory is written to.
const DefaultCollection = "user_memories"

// Config configures the chromem store.
type Config struct {
	// Path is the directory the database persists to.
	// Empty keeps everything in memory (lost on exit).
	Path string

	// Collection names the collection. Default: DefaultCollection.
	Collection string

	// Compress gzips persisted documents.
	Compress bool
}

// ChromemStore wraps chromem-go for vector storage.
// chromem-go is a pure Go, embedded vector database.
type ChromemStore struct {
	db  *chromem.DB
	col *chromem.Collection
}

var _ memory.Store = (*ChromemStore)(nil)

// New creates a new chromem-based store, loading any previously persisted
// memories from cfg.Path.
func New(cfg Config) (*ChromemStore, error) {
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}

	var db *chromem.DB
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("open chromem db at %s: %w", cfg.Path, err)
		}
	}

	col, err := db.GetOrCreateCollection(
		cfg.Collection,
		nil, // No collection metadata
		nil, // No embedding func (we provide embeddings)
	)
	if err != nil {
		return nil, fmt.Errorf("get or create collection %s: %w", cfg.Collection, err)
	}

	log.Printf("[CHROMEM] Opened collection %q (path=%q, documents=%d)", cfg.Collection, cfg.Path, col.Count())

	return &ChromemStore{db: db, col: col}, nil
}

// Store saves a record with its embedding.
func (s *ChromemStore) Store(ctx context.Context, rec *memory.Record) error {
	if len(rec.Embedding) == 0 {
		return fmt.Errorf("record %s has no embedding", rec.ID)
	}

	log.Printf("[CHROMEM] Storing memory: id=%s, turn=%d", rec.ID, rec.Turn)

	doc := chromem.Document{
		ID:        rec.ID,
		Content:   rec.Document,
		Embedding: rec.Embedding,
		Metadata:  rec.Metadata(),
	}

	if err := s.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

// Query retrieves records by cosine similarity, most similar first.
func (s *ChromemStore) Query(ctx context.Context, embedding []float32, limit int) ([]*memory.Record, error) {
	// chromem-go requires 0 < nResults <= collection size.
	// The collection only grows, so clamping here cannot race into an error.
	n := min(limit, s.col.Count())
	if n <= 0 {
		log.Printf("[CHROMEM] Collection is empty")
		return nil, nil
	}

	results, err := s.col.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	records := make([]*memory.Record, 0, len(results))
	for _, result := range results {
		rec := memory.RecordFromStorage(result.ID, result.Content, result.Embedding, result.Metadata)
		rec.Similarity = result.Similarity
		records = append(records, rec)
	}

	return records, nil
}

// Count returns the number of stored documents.
func (s *ChromemStore) Count(_ context.Context) (int, error) {
	return s.col.Count(), nil
}

// Close releases resources.
func (s *ChromemStore) Close() error {
	// Persistent DBs write through on every add; nothing to flush.
	return nil
}
