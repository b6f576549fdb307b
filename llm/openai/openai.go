// Package openai answers with any OpenAI-compatible chat completions API.
package openai

import (
	"context"
	"fmt"
	"log"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/becomeliminal/recall/core"
)

const (
	// DefaultBaseURL is Groq's OpenAI-compatible endpoint.
	DefaultBaseURL = "https://api.groq.com/openai/v1/"
	// DefaultModel is served by Groq.
	DefaultModel = "llama-3.3-70b-versatile"
)

// Config configures the chat client.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int64

	// Temperature is sent only when non-nil.
	Temperature *float64

	// MaxRetries is handed to the SDK. Negative keeps the SDK default.
	MaxRetries int
}

// Model implements memory.LanguageModel.
type Model struct {
	client openai.Client
	cfg    Config
}

// New creates a chat client. The API key is required.
func New(cfg Config) (*Model, error) {
	if cfg.APIKey == "" {
		return nil, core.Errorf(core.KindConfiguration, "openai client", "missing api key")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
	}
	if cfg.MaxRetries >= 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}

	log.Printf("[LLM] openai-compatible client: base_url=%s model=%s", cfg.BaseURL, cfg.Model)
	return &Model{client: openai.NewClient(opts...), cfg: cfg}, nil
}

// Generate sends messages as one chat completion and returns the first
// choice's content.
func (m *Model) Generate(ctx context.Context, messages []core.Message) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(m.cfg.Model),
		Messages: convertMessages(messages),
	}
	if m.cfg.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(m.cfg.MaxTokens)
	}
	if m.cfg.Temperature != nil {
		params.Temperature = openai.Float(*m.cfg.Temperature)
	}

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

func convertMessages(messages []core.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case core.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case core.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}
