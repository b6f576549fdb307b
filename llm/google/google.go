// Package google answers with the Gemini API.
package google

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/becomeliminal/recall/core"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gemini-2.5-flash"

// Config holds Google provider configuration.
type Config struct {
	APIKey    string
	Model     string
	MaxTokens int32
}

// Model implements memory.LanguageModel using the Gemini API.
type Model struct {
	client    *genai.Client
	model     string
	maxTokens int32
}

// New creates a new Gemini client. Returns an error if the API key is missing.
func New(ctx context.Context, cfg Config) (*Model, error) {
	if cfg.APIKey == "" {
		return nil, core.Errorf(core.KindConfiguration, "google client", "missing api key")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, core.NewError(core.KindConfiguration, "google client", err)
	}

	return &Model{client: client, model: cfg.Model, maxTokens: cfg.MaxTokens}, nil
}

// Generate sends the conversation to Gemini.
func (m *Model) Generate(ctx context.Context, messages []core.Message) (string, error) {
	system, contents := convertMessages(messages)

	config := &genai.GenerateContentConfig{}
	if system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}
	if m.maxTokens > 0 {
		config.MaxOutputTokens = m.maxTokens
	}

	resp, err := m.client.Models.GenerateContent(ctx, m.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	return responseText(resp), nil
}

// convertMessages joins system messages into one instruction and maps the
// rest onto Gemini's user/model roles.
func convertMessages(messages []core.Message) (string, []*genai.Content) {
	var system []string
	var contents []*genai.Content
	for _, msg := range messages {
		switch msg.Role {
		case core.RoleSystem:
			system = append(system, msg.Content)
		case core.RoleAssistant:
			contents = append(contents, &genai.Content{
				Role:  "model",
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		default:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		}
	}
	return strings.Join(system, "\n\n"), contents
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && !part.Thought {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}
