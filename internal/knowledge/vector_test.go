package knowledge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickAIautomation/quickvetpro/internal/cache"
	"github.com/quickAIautomation/quickvetpro/internal/log"
)

// mockEmbedder implements ai.Embedder with a fixed vector and an
// optional per-text failure.
type mockEmbedder struct {
	calls   atomic.Int64
	failFor string
}

func (m *mockEmbedder) Name() string { return "mock-embedder" }

func (m *mockEmbedder) Register(_ api.Registry) {}

func (m *mockEmbedder) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	m.calls.Add(1)
	if m.failFor != "" && len(req.Input) > 0 && req.Input[0].Content[0].Text == m.failFor {
		return nil, errors.New("provider down")
	}
	return &ai.EmbedResponse{
		Embeddings: []*ai.Embedding{{Embedding: []float32{0.1, 0.2, 0.3}}},
	}, nil
}

// fakeSearcher implements ChunkSearcher in memory.
type fakeSearcher struct {
	mu      sync.Mutex
	matches []ChunkMatch
	err     error
	total   int64
	topK    int32 // last topK received

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	delay       time.Duration
}

func (f *fakeSearcher) SearchChunks(ctx context.Context, embedding []float32, topK int32) ([]ChunkMatch, error) {
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		max := f.maxInFlight.Load()
		if cur <= max || f.maxInFlight.CompareAndSwap(max, cur) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.topK = topK
	if f.err != nil {
		return nil, f.err
	}
	out := make([]ChunkMatch, len(f.matches))
	copy(out, f.matches)
	return out, nil
}

func (f *fakeSearcher) CountChunks(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total, nil
}

func match(id int64, ordinal int32, content string, similarity float32) ChunkMatch {
	return ChunkMatch{
		Chunk:      Chunk{ID: id, DocumentID: 1, Ordinal: ordinal, Content: content},
		Similarity: similarity,
	}
}

func newTestEngine(searcher ChunkSearcher, embedder ai.Embedder, c *cache.Cache, opts ...func(*Engine)) *Engine {
	if c == nil {
		c = cache.NewDisabled(log.NewNop())
	}
	return NewEngine(searcher, embedder, c, "mock-embedder", 5, 0.35, 3, log.NewNop())
}

func TestEngineSearch_OrdersAndFilters(t *testing.T) {
	searcher := &fakeSearcher{
		matches: []ChunkMatch{
			match(3, 7, "antibióticos", 0.50),
			match(1, 2, "anestesia", 0.92),
			match(4, 1, "fluidoterapia", 0.92),
			match(2, 5, "vacinas", 0.20), // below the floor
		},
		total: 4,
	}
	engine := newTestEngine(searcher, &mockEmbedder{}, nil)

	got, err := engine.Search(context.Background(), "protocolos de emergência")
	require.NoError(t, err)

	require.Len(t, got, 3)
	// Highest similarity first, ordinal breaking the tie.
	assert.Equal(t, int64(4), got[0].Chunk.ID)
	assert.Equal(t, int64(1), got[1].Chunk.ID)
	assert.Equal(t, int64(3), got[2].Chunk.ID)
}

func TestEngineSearch_Options(t *testing.T) {
	searcher := &fakeSearcher{
		matches: []ChunkMatch{match(1, 0, "conteúdo", 0.40)},
		total:   1,
	}
	engine := newTestEngine(searcher, &mockEmbedder{}, nil)

	got, err := engine.Search(context.Background(), "pergunta",
		WithTopK(12), WithMinSimilarity(0.6))
	require.NoError(t, err)

	assert.Equal(t, int32(12), searcher.topK)
	assert.Empty(t, got, "0.40 is below the raised floor")
}

func TestEngineSearch_EmptyCorpus(t *testing.T) {
	engine := newTestEngine(&fakeSearcher{total: 0}, &mockEmbedder{}, nil)

	_, err := engine.Search(context.Background(), "qualquer coisa")
	require.ErrorIs(t, err, ErrEmptyCorpus)
}

func TestEngineSearch_NoMatchesNonEmptyCorpus(t *testing.T) {
	engine := newTestEngine(&fakeSearcher{total: 100}, &mockEmbedder{}, nil)

	got, err := engine.Search(context.Background(), "assunto fora do corpus")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEngineSearch_ProviderError(t *testing.T) {
	embedder := &mockEmbedder{failFor: "pergunta"}
	engine := newTestEngine(&fakeSearcher{total: 1}, embedder, nil)

	_, err := engine.Search(context.Background(), "pergunta")
	require.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestEngineSearch_StoreError(t *testing.T) {
	searcher := &fakeSearcher{
		err: fmt.Errorf("%w: search chunks: connection refused", ErrStoreUnavailable),
	}
	engine := newTestEngine(searcher, &mockEmbedder{}, nil)

	_, err := engine.Search(context.Background(), "pergunta")
	require.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestEngineEmbed_CachesVector(t *testing.T) {
	c, err := cache.Open(t.TempDir(), cache.DefaultTTLs(), log.NewNop())
	require.NoError(t, err)
	defer c.Close()

	embedder := &mockEmbedder{}
	engine := NewEngine(&fakeSearcher{total: 1}, embedder, c, "mock-embedder", 5, 0.35, 3, log.NewNop())

	first, err := engine.Embed(context.Background(), "dose de cetamina")
	require.NoError(t, err)
	second, err := engine.Embed(context.Background(), "Dose  de CETAMINA") // normalizes to the same key
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), embedder.calls.Load(), "second call must be served from cache")
}

func TestEngineSearchBatch_IndependentFailures(t *testing.T) {
	embedder := &mockEmbedder{failFor: "quebrada"}
	searcher := &fakeSearcher{
		matches: []ChunkMatch{match(1, 0, "conteúdo", 0.80)},
		total:   1,
	}
	engine := newTestEngine(searcher, embedder, nil)

	queries := []string{"primeira", "quebrada", "terceira"}
	results := engine.SearchBatch(context.Background(), queries)

	require.Len(t, results, 3)
	for i, q := range queries {
		assert.Equal(t, q, results[i].Query, "input order must be preserved")
	}

	assert.NoError(t, results[0].Err)
	assert.Len(t, results[0].Matches, 1)

	require.Error(t, results[1].Err)
	assert.ErrorIs(t, results[1].Err, ErrProviderUnavailable)

	assert.NoError(t, results[2].Err, "one failing query must not poison its siblings")
}

func TestEngineSearchBatch_BoundedConcurrency(t *testing.T) {
	searcher := &fakeSearcher{
		matches: []ChunkMatch{match(1, 0, "conteúdo", 0.80)},
		total:   1,
		delay:   20 * time.Millisecond,
	}
	engine := NewEngine(searcher, &mockEmbedder{}, cache.NewDisabled(log.NewNop()),
		"mock-embedder", 5, 0.35, 2, log.NewNop())

	queries := make([]string, 8)
	for i := range queries {
		queries[i] = fmt.Sprintf("pergunta %d", i)
	}
	results := engine.SearchBatch(context.Background(), queries)

	require.Len(t, results, 8)
	assert.LessOrEqual(t, searcher.maxInFlight.Load(), int32(2))
}
