package google

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/becomeliminal/recall/core"
)

func TestNew_MissingKeyIsConfigurationError(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.True(t, core.IsConfiguration(err))
}

func TestConvertMessages(t *testing.T) {
	system, contents := convertMessages([]core.Message{
		core.SystemMessage("You are a helpful assistant."),
		core.UserMessage("hi"),
		{Role: core.RoleAssistant, Content: "hello"},
	})

	assert.Equal(t, "You are a helpful assistant.", system)
	require.Len(t, contents, 2)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "hi", contents[0].Parts[0].Text)
	assert.Equal(t, "model", contents[1].Role)
}

func TestResponseText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "thinking...", Thought: true},
				{Text: "Blue."},
			}},
		}},
	}
	assert.Equal(t, "Blue.", responseText(resp))
	assert.Empty(t, responseText(nil))
	assert.Empty(t, responseText(&genai.GenerateContentResponse{}))
}
