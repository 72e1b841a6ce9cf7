package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/quickAIautomation/quickvetpro/internal/knowledge"
	"github.com/quickAIautomation/quickvetpro/internal/log"
)

// maxBatchQueries caps one batch request. The engine bounds concurrency
// internally; this bounds total work per request.
const maxBatchQueries = 20

// Knowledge is the facade surface the HTTP handlers consume.
type Knowledge interface {
	Query(ctx context.Context, query string, mode knowledge.Mode) knowledge.QueryResult
	SearchBatch(ctx context.Context, queries []string) []knowledge.BatchResult
	Stats(ctx context.Context) (knowledge.Stats, error)
	InvalidateDocument(documentID int64) (int, error)
}

// KnowledgeHandler handles retrieval endpoints.
type KnowledgeHandler struct {
	svc    Knowledge
	logger log.Logger
}

// NewKnowledgeHandler creates a new knowledge handler.
func NewKnowledgeHandler(svc Knowledge, logger log.Logger) *KnowledgeHandler {
	return &KnowledgeHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers knowledge routes on the given mux.
func (h *KnowledgeHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/query", h.query)
	mux.HandleFunc("POST /api/batch", h.batch)
	mux.HandleFunc("GET /api/stats", h.stats)
	mux.HandleFunc("POST /api/documents/{id}/invalidate", h.invalidate)
}

// QueryRequest is the body of POST /api/query.
type QueryRequest struct {
	Query string `json:"query"`
	Mode  string `json:"mode,omitempty"` // vector, structural, hybrid, auto (default)
}

// query runs a single knowledge query. Retrieval failures are part of
// the QueryResult body, not HTTP errors: only malformed requests get a
// 4xx here.
func (h *KnowledgeHandler) query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be JSON")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "missing_query", "query must not be empty")
		return
	}

	mode, err := knowledge.ParseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_mode",
			"mode must be one of: vector, structural, hybrid, auto")
		return
	}

	result := h.svc.Query(r.Context(), req.Query, mode)
	writeJSON(w, http.StatusOK, result)
}

// BatchRequest is the body of POST /api/batch.
type BatchRequest struct {
	Queries []string `json:"queries"`
}

// BatchItem is one slot of a batch response.
type BatchItem struct {
	Query   string                 `json:"query"`
	Success bool                   `json:"success"`
	Error   string                 `json:"error,omitempty"`
	Matches []knowledge.ChunkMatch `json:"matches,omitempty"`
}

func (h *KnowledgeHandler) batch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be JSON")
		return
	}
	if len(req.Queries) == 0 {
		writeError(w, http.StatusBadRequest, "missing_queries", "queries must not be empty")
		return
	}
	if len(req.Queries) > maxBatchQueries {
		writeError(w, http.StatusBadRequest, "too_many_queries",
			"at most "+strconv.Itoa(maxBatchQueries)+" queries per batch")
		return
	}

	results := h.svc.SearchBatch(r.Context(), req.Queries)

	items := make([]BatchItem, len(results))
	for i, res := range results {
		items[i] = BatchItem{Query: res.Query, Success: res.Err == nil, Matches: res.Matches}
		if res.Err != nil {
			items[i].Error = res.Err.Error()
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": items})
}

func (h *KnowledgeHandler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		h.logger.Error("stats query failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "could not read corpus statistics")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// invalidate drops cached results derived from a document, typically
// after reingesting a new version.
func (h *KnowledgeHandler) invalidate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "invalid_document_id", "document id must be a positive integer")
		return
	}

	removed, err := h.svc.InvalidateDocument(id)
	if err != nil {
		h.logger.Error("cache invalidation failed", "document_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "invalidate_failed", "could not invalidate cache")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}
