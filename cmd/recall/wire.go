package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/becomeliminal/recall/config"
	"github.com/becomeliminal/recall/core"
	"github.com/becomeliminal/recall/llm/anthropic"
	"github.com/becomeliminal/recall/llm/google"
	"github.com/becomeliminal/recall/llm/openai"
	"github.com/becomeliminal/recall/memory"
	"github.com/becomeliminal/recall/memory/embedder/cache"
	googleemb "github.com/becomeliminal/recall/memory/embedder/google"
	"github.com/becomeliminal/recall/memory/embedder/mock"
	openaiemb "github.com/becomeliminal/recall/memory/embedder/openai"
	"github.com/becomeliminal/recall/memory/store/chromem"
	"github.com/becomeliminal/recall/memory/store/postgres"
	"github.com/becomeliminal/recall/memory/store/sqlitevec"
)

// openAIBaseURL is the hosted OpenAI endpoint; the chat client defaults to Groq.
const openAIBaseURL = "https://api.openai.com/v1/"

// closer is anything holding resources that must be released on exit.
type closer interface {
	Close() error
}

// stack is a fully wired memory pipeline plus everything it owns.
type stack struct {
	pipeline *memory.Pipeline
	closers  []closer
}

// Close releases resources in reverse construction order.
func (s *stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// buildStack constructs the language model, embedder, store and pipeline
// described by cfg. Configuration problems come back as configuration
// errors; anything else (a store that cannot open, a missing model file)
// is returned as is so callers can decide to start degraded. hits may be nil.
func buildStack(ctx context.Context, cfg *config.Config, hits memory.HitRecorder) (*stack, error) {
	s := &stack{}

	model, err := buildLLM(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}

	emb, err := buildEmbedder(ctx, cfg.Embedder)
	if err != nil {
		return nil, err
	}
	if c, ok := emb.(closer); ok {
		s.closers = append(s.closers, c)
	}

	if cfg.Embedder.CacheSize > 0 {
		cached, err := cache.New(emb, cache.Config{MaxEntries: cfg.Embedder.CacheSize})
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("embedding cache: %w", err)
		}
		s.closers = append(s.closers, cached)
		emb = cached
	}

	store, err := buildStore(ctx, cfg.Store, storeDimensions(cfg.Embedder, emb))
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	policy, err := memory.PolicyByName(cfg.Memory.IngestPolicy)
	if err != nil {
		_ = s.Close()
		_ = store.Close()
		return nil, core.NewError(core.KindConfiguration, "ingest policy", err)
	}

	// The pipeline owns the store; its Close closes it.
	s.pipeline = memory.NewPipeline(store, emb, model, &memory.Config{
		Timeout: cfg.Memory.Timeout,
		Policy:  policy,
		Hits:    hits,
	})
	s.closers = append(s.closers, s.pipeline)

	log.Printf("[WIRE] llm=%s embedder=%s store=%s policy=%s",
		cfg.LLM.Provider, cfg.Embedder.Provider, cfg.Store.Backend, policy.Name())
	return s, nil
}

// SDK clients are built with MaxRetries 0: a failed call surfaces once.
func buildLLM(ctx context.Context, cfg config.LLMConfig) (memory.LanguageModel, error) {
	switch cfg.Provider {
	case "groq":
		return openai.New(openai.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			MaxRetries:  0,
		})
	case "openai":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = openAIBaseURL
		}
		model := cfg.Model
		if model == "" {
			model = "gpt-4o-mini"
		}
		return openai.New(openai.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     baseURL,
			Model:       model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			MaxRetries:  0,
		})
	case "anthropic":
		return anthropic.New(anthropic.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			MaxTokens:  cfg.MaxTokens,
			MaxRetries: 0,
		})
	case "google":
		return google.New(ctx, google.Config{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxTokens: int32(cfg.MaxTokens),
		})
	default:
		return nil, core.Errorf(core.KindConfiguration, "build llm", "unknown provider %q", cfg.Provider)
	}
}

func buildEmbedder(ctx context.Context, cfg config.EmbedderConfig) (memory.Embedder, error) {
	switch cfg.Provider {
	case "auto":
		return autoEmbedder(cfg)
	case "hash":
		return mock.NewWithDimensions(cfg.Dimensions), nil
	case "onnx":
		return onnxEmbedder(cfg)
	case "openai":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = openAIBaseURL
		}
		return openaiemb.New(openaiemb.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    baseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			MaxRetries: 0,
		})
	case "google":
		return googleemb.New(ctx, googleemb.Config{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
	default:
		return nil, core.Errorf(core.KindConfiguration, "build embedder", "unknown provider %q", cfg.Provider)
	}
}

// storeDimensions picks the vector width for stores with a fixed schema.
func storeDimensions(cfg config.EmbedderConfig, emb memory.Embedder) int {
	if cfg.Dimensions > 0 {
		return cfg.Dimensions
	}
	return emb.Dimensions()
}

func buildStore(ctx context.Context, cfg config.StoreConfig, dims int) (memory.Store, error) {
	switch cfg.Backend {
	case "chromem":
		return chromem.New(chromem.Config{
			Path:       cfg.Path,
			Collection: cfg.Collection,
			Compress:   cfg.Compress,
		})
	case "sqlitevec":
		if dims <= 0 {
			return nil, core.Errorf(core.KindConfiguration, "build store", "embedder.dimensions is required for the sqlitevec store")
		}
		return sqlitevec.Open(sqlitevec.Config{
			Path:       cfg.Path,
			Table:      cfg.Collection,
			Dimensions: dims,
		})
	case "postgres":
		if dims <= 0 {
			return nil, core.Errorf(core.KindConfiguration, "build store", "embedder.dimensions is required for the postgres store")
		}
		return postgres.New(ctx, postgres.Config{
			DatabaseURL: cfg.DatabaseURL,
			Table:       cfg.Collection,
			Dimensions:  dims,
		})
	default:
		return nil, core.Errorf(core.KindConfiguration, "build store", "unknown backend %q", cfg.Backend)
	}
}
