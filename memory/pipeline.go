package memory

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/becomeliminal/recall/core"
)

// TopK is the number of memories recalled per query.
const TopK = 2

// Config holds Pipeline configuration.
type Config struct {
	// Timeout bounds each external call (embed, store, generate).
	// Zero disables the per-call deadline.
	// Default: 30s.
	Timeout time.Duration

	// Policy decides which turns Ingest writes.
	// Default: StoreAll.
	Policy IngestPolicy

	// Hits, when set, is told how many memories each Retrieve recalled.
	Hits HitRecorder
}

// HitRecorder receives the number of records recalled per query.
type HitRecorder interface {
	ObserveHits(n int)
}

// DefaultConfig returns sensible defaults.
var DefaultConfig = &Config{
	Timeout: 30 * time.Second,
	Policy:  StoreAll{},
}

// Pipeline composes an embedder, a vector store and a language model into
// the two memory operations, Retrieve and Ingest.
//
// A Pipeline is safe for concurrent use as long as its collaborators are.
type Pipeline struct {
	store    Store
	embedder Embedder
	model    LanguageModel
	config   *Config
}

// NewPipeline creates a new Pipeline.
func NewPipeline(store Store, embedder Embedder, model LanguageModel, config *Config) *Pipeline {
	if config == nil {
		config = DefaultConfig
	}
	cfg := *config
	if cfg.Policy == nil {
		cfg.Policy = StoreAll{}
	}
	return &Pipeline{
		store:    store,
		embedder: embedder,
		model:    model,
		config:   &cfg,
	}
}

// Retrieve recalls the nearest memories for query and asks the language
// model to answer with them. It returns the answer and the recalled
// context (documents joined by newlines, "" when nothing was recalled).
//
// Errors are classified as embedding, storage or generation failures. On a
// generation failure the recalled context is still returned.
func (p *Pipeline) Retrieve(ctx context.Context, query string) (answer string, memoryContext string, err error) {
	if strings.TrimSpace(query) == "" {
		return "", "", core.Errorf(core.KindInvalidInput, "retrieve", "query must not be empty")
	}

	// Embed query
	embedding, err := p.embed(ctx, query)
	if err != nil {
		return "", "", core.NewError(core.KindEmbedding, "embed query", err)
	}

	// Query store for the nearest memories
	records, err := p.query(ctx, embedding)
	if err != nil {
		return "", "", core.NewError(core.KindStorage, "query memories", err)
	}

	log.Printf("[MEMORY] Retrieved %d memories for query: %q", len(records), truncateLog(query, 50))
	if p.config.Hits != nil {
		p.config.Hits.ObserveHits(len(records))
	}
	memoryContext = JoinDocuments(records)

	// Generate
	answer, err = p.generate(ctx, BuildMessages(memoryContext, query))
	if err != nil {
		return "", memoryContext, core.NewError(core.KindGeneration, "generate answer", err,
			"recalled", len(records))
	}

	return answer, memoryContext, nil
}

// Ingest embeds text and stores it as one new record for the given turn.
// It returns the stored record, or nil when the ingest policy skipped it.
//
// Embedding and store failures are both reported as storage errors; the
// call is never retried.
func (p *Pipeline) Ingest(ctx context.Context, text string, turn int) (*Record, error) {
	if strings.TrimSpace(text) == "" {
		return nil, core.Errorf(core.KindInvalidInput, "ingest", "text must not be empty")
	}

	if !p.config.Policy.ShouldStore(text) {
		log.Printf("[MEMORY] Turn %d not worth storing (policy=%s)", turn, p.config.Policy.Name())
		return nil, nil
	}

	embedding, err := p.embed(ctx, text)
	if err != nil {
		return nil, core.NewError(core.KindStorage, "embed memory", err, "turn", turn)
	}

	rec := NewRecord(text, turn)
	rec.Embedding = embedding

	storeCtx, cancel := p.withTimeout(ctx)
	defer cancel()
	if err := p.store.Store(storeCtx, rec); err != nil {
		return nil, core.NewError(core.KindStorage, "store memory", err, "turn", turn)
	}

	log.Printf("[MEMORY] Saved turn %d: id=%s", turn, rec.ID)
	return rec, nil
}

// Count returns how many memories are stored.
func (p *Pipeline) Count(ctx context.Context) (int, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	n, err := p.store.Count(ctx)
	if err != nil {
		return 0, core.NewError(core.KindStorage, "count memories", err)
	}
	return n, nil
}

// Close releases the store.
func (p *Pipeline) Close() error {
	return p.store.Close()
}

func (p *Pipeline) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	embedding, err := p.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if want := p.embedder.Dimensions(); want > 0 && len(embedding) != want {
		return nil, fmt.Errorf("embedding has %d dimensions, want %d", len(embedding), want)
	}
	return embedding, nil
}

func (p *Pipeline) query(ctx context.Context, embedding []float32) ([]*Record, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	records, err := p.store.Query(ctx, embedding, TopK)
	if err != nil {
		return nil, err
	}
	if len(records) > TopK {
		records = records[:TopK]
	}
	return records, nil
}

func (p *Pipeline) generate(ctx context.Context, messages []core.Message) (string, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	answer, err := p.model.Generate(ctx, messages)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(answer) == "" {
		return "", fmt.Errorf("language model returned an empty completion")
	}
	return answer, nil
}

func (p *Pipeline) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.config.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.config.Timeout)
}

// truncateLog shortens s to at most maxLen runes for logging.
func truncateLog(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen]) + "..."
}
