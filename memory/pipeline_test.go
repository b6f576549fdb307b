package memory_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/recall/core"
	"github.com/becomeliminal/recall/memory"
	"github.com/becomeliminal/recall/memory/embedder/mock"
	"github.com/becomeliminal/recall/memory/store/chromem"
)

// fakeModel records every prompt it is given.
type fakeModel struct {
	mu     sync.Mutex
	calls  [][]core.Message
	answer string
	err    error
}

func (m *fakeModel) Generate(_ context.Context, messages []core.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, messages)
	if m.err != nil {
		return "", m.err
	}
	if m.answer == "" {
		return "ok", nil
	}
	return m.answer, nil
}

func (m *fakeModel) last() []core.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	return m.calls[len(m.calls)-1]
}

// failingStore fails every call with err.
type failingStore struct{ err error }

func (s failingStore) Store(context.Context, *memory.Record) error { return s.err }
func (s failingStore) Query(context.Context, []float32, int) ([]*memory.Record, error) {
	return nil, s.err
}
func (s failingStore) Count(context.Context) (int, error) { return 0, s.err }
func (s failingStore) Close() error                        { return nil }

type fixture struct {
	pipeline *memory.Pipeline
	store    *chromem.ChromemStore
	embedder *mock.HashEmbedder
	model    *fakeModel
}

func newFixture(t *testing.T, cfg *memory.Config) *fixture {
	t.Helper()
	store, err := chromem.New(chromem.Config{})
	require.NoError(t, err)
	f := &fixture{store: store, embedder: mock.New(), model: &fakeModel{}}
	f.pipeline = memory.NewPipeline(f.store, f.embedder, f.model, cfg)
	return f
}

func (f *fixture) count(t *testing.T) int {
	t.Helper()
	n, err := f.pipeline.Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestRetrieve_EmptyStore(t *testing.T) {
	f := newFixture(t, nil)

	answer, memCtx, err := f.pipeline.Retrieve(context.Background(), "Hello there")
	require.NoError(t, err)
	assert.Equal(t, "ok", answer)
	assert.Empty(t, memCtx)

	msgs := f.model.last()
	require.Len(t, msgs, 2)
	assert.Equal(t, core.SystemMessage(memory.GenericInstruction), msgs[0])
	assert.Equal(t, core.UserMessage("Hello there"), msgs[1])
}

func TestRetrieve_ExactMatchIsRankedFirst(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for i, text := range []string{"I live in Lisbon", "My favorite color is blue", "I work as a nurse", "I have two cats"} {
		_, err := f.pipeline.Ingest(ctx, text, i+1)
		require.NoError(t, err)
	}

	_, memCtx, err := f.pipeline.Retrieve(ctx, "My favorite color is blue")
	require.NoError(t, err)

	lines := strings.Split(memCtx, "\n")
	assert.Equal(t, "My favorite color is blue", lines[0])
}

func TestRetrieve_RecallsAtMostTopK(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		_, err := f.pipeline.Ingest(ctx, strings.Repeat("fact ", i), i)
		require.NoError(t, err)
	}

	_, memCtx, err := f.pipeline.Retrieve(ctx, "anything")
	require.NoError(t, err)
	assert.Len(t, strings.Split(memCtx, "\n"), memory.TopK)
}

func TestRetrieve_FavoriteColorScenario(t *testing.T) {
	f := newFixture(t, nil)
	f.model.answer = "Your favorite color is blue."
	ctx := context.Background()

	_, memCtx, err := f.pipeline.Retrieve(ctx, "My favorite color is blue")
	require.NoError(t, err)
	assert.Empty(t, memCtx)
	_, err = f.pipeline.Ingest(ctx, "My favorite color is blue", 1)
	require.NoError(t, err)

	answer, memCtx, err := f.pipeline.Retrieve(ctx, "What is my favorite color?")
	require.NoError(t, err)
	assert.Equal(t, "My favorite color is blue", memCtx)
	assert.Equal(t, "Your favorite color is blue.", answer)

	system := f.model.last()[0]
	assert.Equal(t, core.RoleSystem, system.Role)
	assert.Contains(t, system.Content, "RELEVANT MEMORIES:\nMy favorite color is blue\n")
}

func TestRetrieve_EmptyQuery(t *testing.T) {
	f := newFixture(t, nil)
	_, _, err := f.pipeline.Retrieve(context.Background(), "   ")
	assert.True(t, core.IsInvalidInput(err))
	assert.Nil(t, f.model.last())
}

func TestRetrieve_EmbeddingFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.embedder.Err = errors.New("model unavailable")

	_, _, err := f.pipeline.Retrieve(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, core.IsEmbedding(err))
	assert.Nil(t, f.model.last())
}

func TestRetrieve_StorageFailure(t *testing.T) {
	model := &fakeModel{}
	p := memory.NewPipeline(failingStore{err: errors.New("disk full")}, mock.New(), model, nil)

	_, _, err := p.Retrieve(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, core.IsStorage(err))
	assert.Nil(t, model.last())
}

func TestRetrieve_GenerationFailureKeepsContext(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.pipeline.Ingest(ctx, "My name is Ada", 1)
	require.NoError(t, err)

	f.model.err = context.DeadlineExceeded
	answer, memCtx, err := f.pipeline.Retrieve(ctx, "What is my name?")
	require.Error(t, err)
	assert.True(t, core.IsGeneration(err))
	assert.True(t, core.IsTimeout(err))
	assert.Empty(t, answer)
	assert.Equal(t, "My name is Ada", memCtx)
}

func TestRetrieve_EmptyCompletionIsGenerationError(t *testing.T) {
	f := newFixture(t, nil)
	f.model.answer = "   "

	_, _, err := f.pipeline.Retrieve(context.Background(), "hello")
	assert.True(t, core.IsGeneration(err))
}

// stalledModel and stalledEmbedder block until their context ends.
type stalledModel struct{}

func (stalledModel) Generate(ctx context.Context, _ []core.Message) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

type stalledEmbedder struct{}

func (stalledEmbedder) Embed(ctx context.Context, _ string) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (stalledEmbedder) Dimensions() int { return mock.DefaultDimensions }

func TestRetrieve_GenerationTimeout(t *testing.T) {
	store, err := chromem.New(chromem.Config{})
	require.NoError(t, err)
	p := memory.NewPipeline(store, mock.New(), stalledModel{}, &memory.Config{Timeout: 20 * time.Millisecond})

	start := time.Now()
	_, _, err = p.Retrieve(context.Background(), "What is my favorite color?")
	require.Error(t, err)
	assert.True(t, core.IsGeneration(err))
	assert.True(t, core.IsTimeout(err))
	assert.Less(t, time.Since(start), 5*time.Second)

	n, err := p.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRetrieve_EmbeddingTimeout(t *testing.T) {
	store, err := chromem.New(chromem.Config{})
	require.NoError(t, err)
	model := &fakeModel{}
	p := memory.NewPipeline(store, stalledEmbedder{}, model, &memory.Config{Timeout: 20 * time.Millisecond})

	_, _, err = p.Retrieve(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, core.IsEmbedding(err))
	assert.True(t, core.IsTimeout(err))
	assert.Nil(t, model.last())

	n, err := p.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIngest_EmbeddingTimeoutWritesNothing(t *testing.T) {
	store, err := chromem.New(chromem.Config{})
	require.NoError(t, err)
	p := memory.NewPipeline(store, stalledEmbedder{}, &fakeModel{}, &memory.Config{Timeout: 20 * time.Millisecond})

	rec, err := p.Ingest(context.Background(), "My favorite color is blue", 1)
	require.Error(t, err)
	assert.Nil(t, rec)
	assert.True(t, core.IsStorage(err))
	assert.True(t, core.IsTimeout(err))

	n, err := p.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIngest_IsNotIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.pipeline.Ingest(ctx, "I like tea", 1)
	require.NoError(t, err)
	second, err := f.pipeline.Ingest(ctx, "I like tea", 2)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 2, f.count(t))
}

func TestIngest_RecordsTurn(t *testing.T) {
	f := newFixture(t, nil)
	rec, err := f.pipeline.Ingest(context.Background(), "I live in Lisbon", 7)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 7, rec.Turn)
	assert.Equal(t, "I live in Lisbon", rec.Document)
	assert.Len(t, rec.Embedding, mock.DefaultDimensions)
}

func TestIngest_EmbeddingFailureIsStorageError(t *testing.T) {
	f := newFixture(t, nil)
	f.embedder.Err = errors.New("model unavailable")

	_, err := f.pipeline.Ingest(context.Background(), "I live in Lisbon", 1)
	require.Error(t, err)
	assert.True(t, core.IsStorage(err))
	assert.Equal(t, 0, f.count(t))
}

func TestIngest_StoreFailure(t *testing.T) {
	p := memory.NewPipeline(failingStore{err: errors.New("locked")}, mock.New(), &fakeModel{}, nil)
	_, err := p.Ingest(context.Background(), "I live in Lisbon", 1)
	assert.True(t, core.IsStorage(err))
}

func TestIngest_EmptyText(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.pipeline.Ingest(context.Background(), "", 1)
	assert.True(t, core.IsInvalidInput(err))
}

func TestIngest_KeywordPolicySkips(t *testing.T) {
	f := newFixture(t, &memory.Config{Policy: memory.NewKeywordPolicy()})
	ctx := context.Background()

	rec, err := f.pipeline.Ingest(ctx, "What time is it?", 1)
	require.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = f.pipeline.Ingest(ctx, "My favorite color is blue", 2)
	require.NoError(t, err)
	assert.NotNil(t, rec)
	assert.Equal(t, 1, f.count(t))
}

func TestNewPipeline_DoesNotMutateConfig(t *testing.T) {
	cfg := &memory.Config{}
	memory.NewPipeline(failingStore{}, mock.New(), &fakeModel{}, cfg)
	assert.Nil(t, cfg.Policy)
}

type hitLog struct {
	mu   sync.Mutex
	hits []int
}

func (h *hitLog) ObserveHits(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hits = append(h.hits, n)
}

func TestRetrieve_ReportsRecordCountNotLines(t *testing.T) {
	hits := &hitLog{}
	f := newFixture(t, &memory.Config{Hits: hits})
	ctx := context.Background()

	_, _, err := f.pipeline.Retrieve(ctx, "anything stored?")
	require.NoError(t, err)

	for i, doc := range []string{"groceries:\nmilk\neggs\nbread", "My favorite color is blue", "I live in Lisbon"} {
		_, err := f.pipeline.Ingest(ctx, doc, i+1)
		require.NoError(t, err)
	}

	_, memCtx, err := f.pipeline.Retrieve(ctx, "groceries:\nmilk\neggs\nbread")
	require.NoError(t, err)
	assert.Greater(t, strings.Count(memCtx, "\n")+1, memory.TopK)

	hits.mu.Lock()
	defer hits.mu.Unlock()
	assert.Equal(t, []int{0, memory.TopK}, hits.hits)
}
