package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickAIautomation/quickvetpro/internal/knowledge"
	"github.com/quickAIautomation/quickvetpro/internal/log"
)

// fakeKnowledge implements the Knowledge interface with canned answers.
type fakeKnowledge struct {
	result      knowledge.QueryResult
	batch       []knowledge.BatchResult
	stats       knowledge.Stats
	statsErr    error
	invalidated int64
	removed     int
}

func (f *fakeKnowledge) Query(ctx context.Context, query string, mode knowledge.Mode) knowledge.QueryResult {
	return f.result
}

func (f *fakeKnowledge) SearchBatch(ctx context.Context, queries []string) []knowledge.BatchResult {
	return f.batch
}

func (f *fakeKnowledge) Stats(ctx context.Context) (knowledge.Stats, error) {
	return f.stats, f.statsErr
}

func (f *fakeKnowledge) InvalidateDocument(documentID int64) (int, error) {
	f.invalidated = documentID
	return f.removed, nil
}

func newTestMux(svc Knowledge) *http.ServeMux {
	mux := http.NewServeMux()
	NewKnowledgeHandler(svc, log.NewNop()).RegisterRoutes(mux)
	return mux
}

func TestQueryEndpoint(t *testing.T) {
	svc := &fakeKnowledge{
		result: knowledge.QueryResult{
			Query:   "dose de meloxicam",
			Mode:    knowledge.ModeStructural,
			Content: "Meloxicam: 0,1 mg/kg SID.",
			Success: true,
		},
	}
	mux := newTestMux(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/query",
		strings.NewReader(`{"query": "dose de meloxicam", "mode": "structural"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got knowledge.QueryResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Success)
	assert.Equal(t, knowledge.ModeStructural, got.Mode)
	assert.Equal(t, "Meloxicam: 0,1 mg/kg SID.", got.Content)
}

func TestQueryEndpoint_FailureStaysHTTP200(t *testing.T) {
	svc := &fakeKnowledge{
		result: knowledge.QueryResult{
			Query:       "pergunta",
			Mode:        knowledge.ModeVector,
			Success:     false,
			FailureKind: knowledge.FailProviderUnavailable,
			Error:       "knowledge: provider unavailable",
		},
	}
	mux := newTestMux(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/query",
		strings.NewReader(`{"query": "pergunta"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	// Retrieval failures ride in the body; HTTP errors are reserved
	// for malformed requests.
	require.Equal(t, http.StatusOK, rec.Code)

	var got knowledge.QueryResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.False(t, got.Success)
	assert.Equal(t, knowledge.FailProviderUnavailable, got.FailureKind)
}

func TestQueryEndpoint_BadRequests(t *testing.T) {
	mux := newTestMux(&fakeKnowledge{})

	tests := []struct {
		name string
		body string
	}{
		{name: "invalid json", body: `{`},
		{name: "empty query", body: `{"query": ""}`},
		{name: "unknown mode", body: `{"query": "pergunta", "mode": "semantic"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestBatchEndpoint(t *testing.T) {
	svc := &fakeKnowledge{
		batch: []knowledge.BatchResult{
			{Query: "primeira", Matches: []knowledge.ChunkMatch{{Similarity: 0.9}}},
			{Query: "segunda", Err: errors.New("provider down")},
		},
	}
	mux := newTestMux(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/batch",
		strings.NewReader(`{"queries": ["primeira", "segunda"]}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Results []BatchItem `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Results, 2)
	assert.True(t, got.Results[0].Success)
	assert.False(t, got.Results[1].Success)
	assert.Equal(t, "provider down", got.Results[1].Error)
}

func TestBatchEndpoint_Limits(t *testing.T) {
	mux := newTestMux(&fakeKnowledge{})

	req := httptest.NewRequest(http.MethodPost, "/api/batch", strings.NewReader(`{"queries": []}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	queries := make([]string, maxBatchQueries+1)
	for i := range queries {
		queries[i] = "pergunta"
	}
	body, err := json.Marshal(map[string]any{"queries": queries})
	require.NoError(t, err)

	req = httptest.NewRequest(http.MethodPost, "/api/batch", strings.NewReader(string(body)))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatsEndpoint(t *testing.T) {
	svc := &fakeKnowledge{
		stats: knowledge.Stats{Chunks: 120, Documents: 3, Nodes: 450, CacheEntries: 12, CacheHitRate: 0.75},
	}
	mux := newTestMux(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got knowledge.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(120), got.Chunks)
	assert.InDelta(t, 0.75, got.CacheHitRate, 0.001)
}

func TestStatsEndpoint_StoreDown(t *testing.T) {
	svc := &fakeKnowledge{statsErr: errors.New("connection refused")}
	mux := newTestMux(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestInvalidateEndpoint(t *testing.T) {
	svc := &fakeKnowledge{removed: 7}
	mux := newTestMux(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/documents/42/invalidate", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(42), svc.invalidated)

	var got map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 7, got["removed"])
}

func TestInvalidateEndpoint_BadID(t *testing.T) {
	mux := newTestMux(&fakeKnowledge{})

	req := httptest.NewRequest(http.MethodPost, "/api/documents/abc/invalidate", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
