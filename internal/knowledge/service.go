package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/quickAIautomation/quickvetpro/internal/cache"
)

// StatsReader is the store surface behind Service.Stats.
type StatsReader interface {
	CountChunks(ctx context.Context) (int64, error)
	CountDocuments(ctx context.Context) (int64, error)
	CountNodes(ctx context.Context) (int64, error)
}

// Service is the single entry point for knowledge retrieval. The agent,
// the MCP server, and the REST API all go through it, so caching,
// single-flight deduplication, and failure classification happen in
// exactly one place.
//
// Service is safe for concurrent use by multiple goroutines.
type Service struct {
	router    *Router
	engine    *Engine
	navigator *Navigator
	cache     *cache.Cache
	stats     StatsReader
	logger    *slog.Logger
}

// NewService wires the facade from its parts.
func NewService(router *Router, engine *Engine, navigator *Navigator,
	c *cache.Cache, stats StatsReader, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		router:    router,
		engine:    engine,
		navigator: navigator,
		cache:     c,
		stats:     stats,
		logger:    logger,
	}
}

// Query answers a knowledge question in the requested mode. Failures
// are reported in-band: the returned QueryResult always describes what
// happened, and no error from the retrieval pipeline escapes as a Go
// error. Successful results are cached by mode and normalized query
// text; failures never are.
func (s *Service) Query(ctx context.Context, query string, mode Mode) QueryResult {
	start := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		return failure(query, mode, fmt.Errorf("empty query"), start)
	}

	resolved, err := s.router.Resolve(query, mode)
	if err != nil {
		return failure(query, mode, err, start)
	}

	key := cache.Key(classFor(resolved), query, resolved)

	// The compute closure records rich failures (like a partial
	// navigation path) that the error alone cannot carry back.
	var failed *QueryResult

	raw, hit, err := s.cache.GetOrCompute(key, classFor(resolved), func() ([]byte, error) {
		result, err := s.compute(ctx, query, resolved, start)
		if err != nil {
			failed = &result
			return nil, err
		}
		return json.Marshal(result)
	})
	if err != nil {
		if failed != nil {
			return *failed
		}
		return failure(query, resolved, err, start)
	}

	var result QueryResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return failure(query, resolved, fmt.Errorf("decode cached result: %w", err), start)
	}
	result.Cached = hit

	s.logger.Info("knowledge query",
		"mode", resolved, "cached", hit, "success", result.Success,
		"elapsed_ms", time.Since(start).Milliseconds())
	return result
}

func (s *Service) compute(ctx context.Context, query string, mode Mode, start time.Time) (QueryResult, error) {
	switch mode {
	case ModeVector:
		return s.vectorQuery(ctx, query, start)
	case ModeStructural:
		return s.structuralQuery(ctx, query, start)
	case ModeHybrid:
		return s.hybridQuery(ctx, query, start)
	default:
		return QueryResult{}, ErrInvalidMode
	}
}

func (s *Service) vectorQuery(ctx context.Context, query string, start time.Time) (QueryResult, error) {
	matches, err := s.engine.Search(ctx, query)
	if err != nil {
		return failure(query, ModeVector, err, start), err
	}
	return QueryResult{
		Query:     query,
		Mode:      ModeVector,
		Content:   joinMatches(matches),
		Success:   true,
		Matches:   matches,
		ElapsedMS: time.Since(start).Milliseconds(),
	}, nil
}

func (s *Service) structuralQuery(ctx context.Context, query string, start time.Time) (QueryResult, error) {
	nav, err := s.navigator.Navigate(ctx, query)
	if err != nil {
		result := failure(query, ModeStructural, err, start)
		if nav != nil {
			result.Path = nav.Path
		}
		return result, err
	}
	return QueryResult{
		Query:     query,
		Mode:      ModeStructural,
		Content:   nav.Content,
		Success:   true,
		Path:      nav.Path,
		ElapsedMS: time.Since(start).Milliseconds(),
	}, nil
}

// hybridQuery merges both strategies, vector results first. It succeeds
// when either leg does. Deduplication compares section bodies: a
// structural section whose content already arrived as a vector chunk is
// dropped, heading and all.
func (s *Service) hybridQuery(ctx context.Context, query string, start time.Time) (QueryResult, error) {
	matches, vecErr := s.engine.Search(ctx, query)
	nav, navErr := s.navigator.Navigate(ctx, query)

	if vecErr != nil && navErr != nil {
		result := failure(query, ModeHybrid, vecErr, start)
		if nav != nil {
			result.Path = nav.Path
		}
		return result, vecErr
	}

	result := QueryResult{
		Query:     query,
		Mode:      ModeHybrid,
		Success:   true,
		ElapsedMS: time.Since(start).Milliseconds(),
	}

	sections := make([]string, 0, len(matches)+1)
	seen := make(map[string]bool)
	if vecErr == nil {
		result.Matches = matches
		for _, m := range matches {
			if !seen[m.Chunk.Content] {
				seen[m.Chunk.Content] = true
				sections = append(sections, m.Chunk.Content)
			}
		}
	}
	if navErr == nil {
		result.Path = nav.Path
		for _, sec := range nav.Sections {
			if sec.Content == "" || seen[sec.Content] {
				continue
			}
			seen[sec.Content] = true
			sections = append(sections, renderSection(sec))
		}
	} else if nav != nil {
		result.Path = nav.Path
	}

	result.Content = strings.Join(sections, sectionSeparator)
	return result, nil
}

// SearchBatch runs a bounded-concurrency vector search for every query.
// It bypasses result caching but still shares cached embeddings.
func (s *Service) SearchBatch(ctx context.Context, queries []string) []BatchResult {
	return s.engine.SearchBatch(ctx, queries)
}

// Stats reports corpus size and cache health.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	chunks, err := s.stats.CountChunks(ctx)
	if err != nil {
		return Stats{}, err
	}
	docs, err := s.stats.CountDocuments(ctx)
	if err != nil {
		return Stats{}, err
	}
	nodes, err := s.stats.CountNodes(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Chunks:       chunks,
		Documents:    docs,
		Nodes:        nodes,
		CacheEntries: s.cache.Len(),
		CacheHitRate: s.cache.HitRate(),
	}, nil
}

// InvalidateDocument drops cached material derived from a document.
// Call it after reingesting a document so stale results stop serving.
func (s *Service) InvalidateDocument(documentID int64) (int, error) {
	return s.cache.InvalidateDocument(documentID)
}

// WarmUp primes the cache by running the given queries in auto mode.
// Failures are logged and skipped; warmup never blocks startup on a
// degraded provider.
func (s *Service) WarmUp(ctx context.Context, queries []string) int {
	warmed := 0
	for _, q := range queries {
		if ctx.Err() != nil {
			break
		}
		result := s.Query(ctx, q, ModeAuto)
		if result.Success {
			warmed++
		} else {
			s.logger.Warn("warmup query failed", "query", q, "kind", result.FailureKind)
		}
	}
	s.logger.Info("cache warmup finished", "warmed", warmed, "total", len(queries))
	return warmed
}

const sectionSeparator = "\n\n---\n\n"

func joinMatches(matches []ChunkMatch) string {
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		parts = append(parts, m.Chunk.Content)
	}
	return strings.Join(parts, sectionSeparator)
}

func classFor(mode Mode) cache.Class {
	if mode == ModeStructural {
		return cache.ClassNavigation
	}
	return cache.ClassVectorResult
}

func failure(query string, mode Mode, err error, start time.Time) QueryResult {
	return QueryResult{
		Query:       query,
		Mode:        mode,
		Success:     false,
		FailureKind: Classify(err),
		Error:       err.Error(),
		ElapsedMS:   time.Since(start).Milliseconds(),
	}
}
