package core_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/recall/core"
)

func TestNewError_KindAndOp(t *testing.T) {
	cause := errors.New("connection refused")
	err := core.NewError(core.KindGeneration, "generate answer", cause, "model", "llama")

	require.Error(t, err)
	assert.True(t, core.IsGeneration(err))
	assert.False(t, core.IsStorage(err))
	assert.Equal(t, "generate answer", core.OpOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestNewError_NilCause(t *testing.T) {
	assert.NoError(t, core.NewError(core.KindStorage, "store record", nil))
}

func TestKindOf_SurvivesFmtWrapping(t *testing.T) {
	inner := core.NewError(core.KindEmbedding, "embed query", errors.New("model unavailable"))
	outer := fmt.Errorf("turn 3: %w", inner)

	assert.Equal(t, core.KindEmbedding, core.KindOf(outer))
	assert.True(t, core.IsRecoverable(outer))
}

func TestKindOf_Unclassified(t *testing.T) {
	assert.Equal(t, core.Kind(""), core.KindOf(errors.New("plain")))
	assert.Equal(t, core.Kind(""), core.KindOf(nil))
	assert.False(t, core.IsRecoverable(errors.New("plain")))
}

func TestErrorf(t *testing.T) {
	err := core.Errorf(core.KindConfiguration, "load config", "missing %s", "GROQ_API_KEY")
	assert.True(t, core.IsConfiguration(err))
	assert.False(t, core.IsRecoverable(err))
	assert.Contains(t, err.Error(), "GROQ_API_KEY")
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"invalid input", core.Errorf(core.KindInvalidInput, "chat", "empty"), http.StatusBadRequest},
		{"generation", core.NewError(core.KindGeneration, "generate", errors.New("boom")), http.StatusBadGateway},
		{"generation timeout", core.NewError(core.KindGeneration, "generate", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"storage", core.NewError(core.KindStorage, "query", errors.New("locked")), http.StatusBadGateway},
		{"configuration", core.Errorf(core.KindConfiguration, "load", "bad"), http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, core.HTTPStatus(tt.err))
		})
	}
}
