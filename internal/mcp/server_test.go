package mcp

import (
	"context"
	"fmt"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickAIautomation/quickvetpro/internal/knowledge"
)

// fakeKnowledge scripts the facade: tests set the canned outputs and
// inspect what the handlers asked for.
type fakeKnowledge struct {
	result   knowledge.QueryResult
	batch    []knowledge.BatchResult
	stats    knowledge.Stats
	statsErr error

	lastQuery string
	lastMode  knowledge.Mode
}

func (f *fakeKnowledge) Query(ctx context.Context, query string, mode knowledge.Mode) knowledge.QueryResult {
	f.lastQuery = query
	f.lastMode = mode
	return f.result
}

func (f *fakeKnowledge) SearchBatch(ctx context.Context, queries []string) []knowledge.BatchResult {
	return f.batch
}

func (f *fakeKnowledge) Stats(ctx context.Context) (knowledge.Stats, error) {
	return f.stats, f.statsErr
}

func newTestServer(t *testing.T, k Knowledge) *Server {
	t.Helper()
	srv, err := NewServer(Config{Name: "quickvetpro", Version: "test", Knowledge: k})
	require.NoError(t, err)
	return srv
}

func textOf(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, result.Content, 1)
	tc, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", result.Content[0])
	return tc.Text
}

func TestNewServer(t *testing.T) {
	srv := newTestServer(t, &fakeKnowledge{})
	require.NotNil(t, srv)
}

func TestNewServer_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "missing name", cfg: Config{Version: "test", Knowledge: &fakeKnowledge{}}},
		{name: "missing version", cfg: Config{Name: "quickvetpro", Knowledge: &fakeKnowledge{}}},
		{name: "missing knowledge", cfg: Config{Name: "quickvetpro", Version: "test"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewServer(tt.cfg)
			require.Error(t, err)
		})
	}
}

func TestHandleSearchKnowledge(t *testing.T) {
	k := &fakeKnowledge{
		result: knowledge.QueryResult{
			Mode:    knowledge.ModeVector,
			Content: "Amoxicilina: 10 mg/kg BID.",
			Success: true,
		},
	}
	srv := newTestServer(t, k)

	result, _, err := srv.handleSearchKnowledge(context.Background(), nil,
		SearchKnowledgeInput{Query: "dose de amoxicilina"})
	require.NoError(t, err)

	assert.False(t, result.IsError)
	text := textOf(t, result)
	assert.Contains(t, text, "Mode: vector")
	assert.Contains(t, text, "Amoxicilina: 10 mg/kg BID.")

	assert.Equal(t, "dose de amoxicilina", k.lastQuery)
	assert.Equal(t, knowledge.ModeAuto, k.lastMode, "empty mode means auto")
}

func TestHandleSearchKnowledge_InvalidMode(t *testing.T) {
	k := &fakeKnowledge{}
	srv := newTestServer(t, k)

	result, _, err := srv.handleSearchKnowledge(context.Background(), nil,
		SearchKnowledgeInput{Query: "pergunta", Mode: "semantic"})
	require.NoError(t, err)

	assert.True(t, result.IsError)
	assert.Contains(t, textOf(t, result), "invalid_mode")
	assert.Empty(t, k.lastQuery, "invalid modes never reach the facade")
}

func TestHandleSearchKnowledge_FailureResult(t *testing.T) {
	k := &fakeKnowledge{
		result: knowledge.QueryResult{
			Mode:        knowledge.ModeVector,
			Success:     false,
			FailureKind: knowledge.FailProviderUnavailable,
			Error:       "embedding provider timed out",
		},
	}
	srv := newTestServer(t, k)

	result, _, err := srv.handleSearchKnowledge(context.Background(), nil,
		SearchKnowledgeInput{Query: "pergunta", Mode: "vector"})
	require.NoError(t, err)

	assert.True(t, result.IsError)
	text := textOf(t, result)
	assert.Contains(t, text, string(knowledge.FailProviderUnavailable))
	assert.Contains(t, text, "embedding provider timed out")
}

func TestHandleBatchSearch(t *testing.T) {
	k := &fakeKnowledge{
		batch: []knowledge.BatchResult{
			{
				Query: "dose de amoxicilina",
				Matches: []knowledge.ChunkMatch{
					{Chunk: knowledge.Chunk{ID: 1, Content: "Amoxicilina: 10 mg/kg BID."}, Similarity: 0.85},
				},
			},
			{Query: "pergunta quebrada", Err: fmt.Errorf("embed failed")},
			{Query: "pergunta sem resultado"},
		},
	}
	srv := newTestServer(t, k)

	result, _, err := srv.handleBatchSearch(context.Background(), nil,
		BatchSearchInput{Queries: []string{"dose de amoxicilina", "pergunta quebrada", "pergunta sem resultado"}})
	require.NoError(t, err)

	assert.False(t, result.IsError)
	text := textOf(t, result)
	assert.Contains(t, text, "### Query 1: dose de amoxicilina")
	assert.Contains(t, text, "(0.85) Amoxicilina: 10 mg/kg BID.")
	assert.Contains(t, text, "FAILED: embed failed")
	assert.Contains(t, text, "No matches above the similarity floor.")
}

func TestHandleBatchSearch_EmptyQueries(t *testing.T) {
	srv := newTestServer(t, &fakeKnowledge{})

	result, _, err := srv.handleBatchSearch(context.Background(), nil, BatchSearchInput{})
	require.NoError(t, err)

	assert.True(t, result.IsError)
	assert.Contains(t, textOf(t, result), "queries must not be empty")
}

func TestHandleStats(t *testing.T) {
	k := &fakeKnowledge{
		stats: knowledge.Stats{
			Chunks: 120, Documents: 3, Nodes: 45,
			CacheEntries: 7, CacheHitRate: 0.5,
		},
	}
	srv := newTestServer(t, k)

	result, _, err := srv.handleStats(context.Background(), nil, StatsInput{})
	require.NoError(t, err)

	assert.False(t, result.IsError)
	text := textOf(t, result)
	assert.Contains(t, text, "Chunks: 120")
	assert.Contains(t, text, "Cache hit rate: 50.0%")
}

func TestHandleStats_Error(t *testing.T) {
	srv := newTestServer(t, &fakeKnowledge{statsErr: fmt.Errorf("connection refused")})

	result, _, err := srv.handleStats(context.Background(), nil, StatsInput{})
	require.NoError(t, err)

	assert.True(t, result.IsError)
	assert.Contains(t, textOf(t, result), "connection refused")
}

func TestRenderResult(t *testing.T) {
	result := knowledge.QueryResult{
		Mode:    knowledge.ModeStructural,
		Content: "Meloxicam: 0,1 mg/kg SID.",
		Success: true,
		Cached:  true,
		Path: []knowledge.NavigationStep{
			{NodeID: 10, Title: "Farmacologia"},
			{NodeID: 11, Title: "Anti-inflamatórios"},
		},
	}

	text := renderResult(result)
	assert.Contains(t, text, "Mode: structural (cached)")
	assert.Contains(t, text, "- Farmacologia")
	assert.Contains(t, text, "Meloxicam: 0,1 mg/kg SID.")
}

func TestRenderResult_EmptyContent(t *testing.T) {
	text := renderResult(knowledge.QueryResult{Mode: knowledge.ModeVector, Success: true})
	assert.Contains(t, text, "No relevant material found.")
}
