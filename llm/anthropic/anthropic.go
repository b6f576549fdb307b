// Package anthropic answers with the Claude Messages API.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/becomeliminal/recall/core"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "claude-sonnet-4-20250514"

// Config configures the Claude client.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int64

	// MaxRetries is handed to the SDK. Negative keeps the SDK default.
	MaxRetries int
}

// Model implements memory.LanguageModel.
type Model struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// New creates a Claude client. The API key is required.
func New(cfg Config) (*Model, error) {
	if cfg.APIKey == "" {
		return nil, core.Errorf(core.KindConfiguration, "anthropic client", "missing api key")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxRetries >= 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}

	return &Model{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}, nil
}

// Generate sends the conversation to Claude. System messages are lifted into
// the request's system prompt.
func (m *Model) Generate(ctx context.Context, messages []core.Message) (string, error) {
	var system []anthropic.TextBlockParam
	var convo []anthropic.MessageParam
	for _, msg := range messages {
		switch msg.Role {
		case core.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: msg.Content})
		case core.RoleAssistant:
			convo = append(convo, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			convo = append(convo, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	resp, err := m.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(m.model),
		MaxTokens: m.maxTokens,
		Messages:  convo,
		System:    system,
	})
	if err != nil {
		return "", fmt.Errorf("claude api error: %w", err)
	}

	// Extract text response
	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return text.String(), nil
}
