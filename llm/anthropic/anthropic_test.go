package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/recall/core"
)

func TestNew_MissingKeyIsConfigurationError(t *testing.T) {
	_, err := New(Config{})
	assert.True(t, core.IsConfiguration(err))
}

func TestGenerate_LiftsSystemPrompt(t *testing.T) {
	var got struct {
		Model  string `json:"model"`
		System []struct {
			Text string `json:"text"`
		} `json:"system"`
		Messages []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/v1/messages"), r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant",
			"model":"claude-sonnet-4-20250514","stop_reason":"end_turn",
			"content":[{"type":"text","text":"Blue."}],
			"usage":{"input_tokens":10,"output_tokens":2}}`))
	}))
	defer srv.Close()

	m, err := New(Config{APIKey: "sk-ant-test", BaseURL: srv.URL, MaxRetries: 0})
	require.NoError(t, err)

	answer, err := m.Generate(context.Background(), []core.Message{
		core.SystemMessage("You are a helpful assistant."),
		core.UserMessage("What is my favorite color?"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Blue.", answer)

	assert.Equal(t, DefaultModel, got.Model)
	require.Len(t, got.System, 1)
	assert.Equal(t, "You are a helpful assistant.", got.System[0].Text)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
}
