package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/firebase/genkit/go/ai"
	"golang.org/x/sync/errgroup"

	"github.com/quickAIautomation/quickvetpro/internal/cache"
)

// ChunkSearcher is the store surface the vector engine needs.
// Interfaces are defined by the consumer, so tests can mock this
// without a database.
type ChunkSearcher interface {
	SearchChunks(ctx context.Context, embedding []float32, topK int32) ([]ChunkMatch, error)
	CountChunks(ctx context.Context) (int64, error)
}

// SearchOption configures a single search using the functional options
// pattern.
type SearchOption func(*searchConfig)

type searchConfig struct {
	topK          int32
	minSimilarity float32
}

// WithTopK overrides the number of results to return.
func WithTopK(k int32) SearchOption {
	return func(c *searchConfig) {
		if k > 0 {
			c.topK = k
		}
	}
}

// WithMinSimilarity overrides the similarity floor below which matches
// are discarded.
func WithMinSimilarity(min float32) SearchOption {
	return func(c *searchConfig) {
		c.minSimilarity = min
	}
}

// Engine performs semantic search over the chunk corpus: it embeds the
// query, runs ANN cosine search, filters by a similarity floor, and
// orders the survivors deterministically. Query embeddings are cached
// so repeated queries skip the provider round trip.
//
// Engine is safe for concurrent use by multiple goroutines.
type Engine struct {
	searcher      ChunkSearcher
	embedder      ai.Embedder
	cache         *cache.Cache
	model         string // embedder model name, salts embedding cache keys
	topK          int32
	minSimilarity float32
	batchWidth    int
	logger        *slog.Logger
}

// NewEngine creates a vector search engine. batchWidth bounds how many
// queries of a batch run concurrently; values below 1 collapse to 1.
func NewEngine(searcher ChunkSearcher, embedder ai.Embedder, c *cache.Cache,
	model string, topK int32, minSimilarity float32, batchWidth int, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if topK <= 0 {
		topK = 5
	}
	if batchWidth < 1 {
		batchWidth = 1
	}
	return &Engine{
		searcher:      searcher,
		embedder:      embedder,
		cache:         c,
		model:         model,
		topK:          topK,
		minSimilarity: minSimilarity,
		batchWidth:    batchWidth,
		logger:        logger,
	}
}

// Search returns the chunks most similar to query, ordered by
// descending similarity with document ordinal breaking ties.
func (e *Engine) Search(ctx context.Context, query string, opts ...SearchOption) ([]ChunkMatch, error) {
	cfg := &searchConfig{topK: e.topK, minSimilarity: e.minSimilarity}
	for _, opt := range opts {
		opt(cfg)
	}

	embedding, err := e.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	matches, err := e.searcher.SearchChunks(ctx, embedding, cfg.topK)
	if err != nil {
		return nil, err
	}

	if len(matches) == 0 {
		total, countErr := e.searcher.CountChunks(ctx)
		if countErr != nil {
			return nil, countErr
		}
		if total == 0 {
			return nil, ErrEmptyCorpus
		}
		return nil, nil
	}

	filtered := matches[:0]
	for _, m := range matches {
		if m.Similarity >= cfg.minSimilarity {
			filtered = append(filtered, m)
		}
	}
	sortMatches(filtered)

	e.logger.Debug("vector search",
		"query_length", len(query), "matched", len(filtered), "top_k", cfg.topK)
	return filtered, nil
}

// SearchBatch runs Search for every query with bounded concurrency.
// Results keep the input order and each slot fails independently; a
// provider outage on one query does not poison its siblings.
func (e *Engine) SearchBatch(ctx context.Context, queries []string, opts ...SearchOption) []BatchResult {
	results := make([]BatchResult, len(queries))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.batchWidth)
	for i, q := range queries {
		g.Go(func() error {
			matches, err := e.Search(ctx, q, opts...)
			results[i] = BatchResult{Query: q, Matches: matches, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Embed returns the embedding vector for text, consulting the cache
// first. Cached vectors are keyed by model and normalized text.
func (e *Engine) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cache.Key(cache.ClassEmbedding, text, e.model)

	raw, _, err := e.cache.GetOrCompute(key, cache.ClassEmbedding, func() ([]byte, error) {
		vec, err := e.embed(ctx, text)
		if err != nil {
			return nil, err
		}
		return json.Marshal(vec)
	})
	if err != nil {
		return nil, err
	}

	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, fmt.Errorf("decode cached embedding: %w", err)
	}
	return vec, nil
}

func (e *Engine) embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{
			{Content: []*ai.Part{ai.NewTextPart(text)}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", ErrProviderUnavailable, err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding returned", ErrProviderUnavailable)
	}
	return resp.Embeddings[0].Embedding, nil
}

func sortMatches(matches []ChunkMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		if matches[i].Chunk.Ordinal != matches[j].Chunk.Ordinal {
			return matches[i].Chunk.Ordinal < matches[j].Chunk.Ordinal
		}
		return matches[i].Chunk.ID < matches[j].Chunk.ID
	})
}
