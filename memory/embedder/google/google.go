// Package google embeds text with the Gemini embedding API.
package google

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "text-embedding-004"

// Config holds Google embedder configuration.
type Config struct {
	APIKey string
	Model  string

	// Dimensions truncates output vectors when set.
	Dimensions int
}

// Embedder implements memory.Embedder using the Gemini API.
type Embedder struct {
	client *genai.Client
	model  string
	dims   int
}

// New creates a new Google embedder. Returns an error if the API key is missing.
func New(ctx context.Context, cfg Config) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("google embedder: missing api key")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("google embedder: creating client: %w", err)
	}

	return &Embedder{client: client, model: cfg.Model, dims: cfg.Dimensions}, nil
}

// Embed returns the embedding for text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var config *genai.EmbedContentConfig
	if e.dims > 0 {
		d := int32(e.dims)
		config = &genai.EmbedContentConfig{OutputDimensionality: &d}
	}

	resp, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), config)
	if err != nil {
		return nil, fmt.Errorf("google embed content: %w", err)
	}
	if len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, fmt.Errorf("google embed content: empty response")
	}
	return resp.Embeddings[0].Values, nil
}

// Dimensions returns the configured vector size, or 0 when unknown.
func (e *Embedder) Dimensions() int {
	return e.dims
}
