package chromem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/recall/memory"
	"github.com/becomeliminal/recall/memory/embedder/mock"
)

func embedded(t *testing.T, doc string, turn int) *memory.Record {
	t.Helper()
	vec, err := mock.New().Embed(context.Background(), doc)
	require.NoError(t, err)
	rec := memory.NewRecord(doc, turn)
	rec.Embedding = vec
	return rec
}

func TestChromemStore_EmptyQuery(t *testing.T) {
	s, err := New(Config{})
	require.NoError(t, err)

	results, err := s.Query(context.Background(), embedded(t, "q", 0).Embedding, 2)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestChromemStore_QueryClampsToCount(t *testing.T) {
	ctx := context.Background()
	s, err := New(Config{})
	require.NoError(t, err)

	rec := embedded(t, "My favorite color is blue", 1)
	require.NoError(t, s.Store(ctx, rec))

	results, err := s.Query(ctx, rec.Embedding, 2)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, rec.ID, results[0].ID)
	assert.Equal(t, 1, results[0].Turn)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-4)
}

func TestChromemStore_RejectsMissingEmbedding(t *testing.T) {
	s, err := New(Config{})
	require.NoError(t, err)
	assert.Error(t, s.Store(context.Background(), memory.NewRecord("x", 1)))
}

func TestChromemStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := New(Config{Path: dir})
	require.NoError(t, err)
	rec := embedded(t, "I live in Lisbon", 3)
	require.NoError(t, s.Store(ctx, rec))
	require.NoError(t, s.Close())

	reopened, err := New(Config{Path: dir})
	require.NoError(t, err)

	n, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	results, err := reopened.Query(ctx, rec.Embedding, 2)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "I live in Lisbon", results[0].Document)
	assert.Equal(t, 3, results[0].Turn)
}
