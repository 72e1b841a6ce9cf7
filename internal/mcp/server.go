// Package mcp exposes the knowledge facade over the Model Context
// Protocol so external assistants can query the veterinary corpus.
package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/quickAIautomation/quickvetpro/internal/knowledge"
)

// Knowledge is the facade surface the MCP tools consume.
type Knowledge interface {
	Query(ctx context.Context, query string, mode knowledge.Mode) knowledge.QueryResult
	SearchBatch(ctx context.Context, queries []string) []knowledge.BatchResult
	Stats(ctx context.Context) (knowledge.Stats, error)
}

// Server wraps the MCP SDK server around the knowledge facade.
type Server struct {
	mcpServer *mcp.Server
	knowledge Knowledge
	name      string
	version   string
}

// Config holds MCP server configuration.
type Config struct {
	Name      string
	Version   string
	Knowledge Knowledge
}

// NewServer creates a new MCP server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("server name is required")
	}
	if cfg.Version == "" {
		return nil, fmt.Errorf("server version is required")
	}
	if cfg.Knowledge == nil {
		return nil, fmt.Errorf("knowledge service is required")
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		mcpServer: mcpServer,
		knowledge: cfg.Knowledge,
		name:      cfg.Name,
		version:   cfg.Version,
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return s, nil
}

// Run starts the MCP server on the given transport.
// This is a blocking call that handles all MCP protocol communication.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.mcpServer.Run(ctx, transport)
}

func (s *Server) registerTools() error {
	if err := s.registerSearchKnowledge(); err != nil {
		return fmt.Errorf("failed to register search_knowledge: %w", err)
	}
	if err := s.registerBatchSearch(); err != nil {
		return fmt.Errorf("failed to register batch_search: %w", err)
	}
	if err := s.registerStats(); err != nil {
		return fmt.Errorf("failed to register get_knowledge_stats: %w", err)
	}
	return nil
}

// SearchKnowledgeInput defines the input schema for search_knowledge.
type SearchKnowledgeInput struct {
	Query string `json:"query" jsonschema:"The question to answer from the veterinary reference corpus"`
	Mode  string `json:"mode,omitempty" jsonschema:"Retrieval mode: vector, structural, hybrid, or auto (default)"`
}

func (s *Server) registerSearchKnowledge() error {
	inputSchema, err := jsonschema.For[SearchKnowledgeInput](nil)
	if err != nil {
		return fmt.Errorf("failed to create input schema: %w", err)
	}

	tool := &mcp.Tool{
		Name: "search_knowledge",
		Description: "Search the veterinary reference corpus. Uses semantic vector search for " +
			"conceptual questions and model-guided outline navigation for tables, annexes, and " +
			"dosage protocols. Auto mode picks the strategy from the query.",
		InputSchema: inputSchema,
	}

	mcp.AddTool(s.mcpServer, tool, s.handleSearchKnowledge)

	return nil
}

func (s *Server) handleSearchKnowledge(ctx context.Context, req *mcp.CallToolRequest, in SearchKnowledgeInput) (*mcp.CallToolResult, any, error) {
	mode, err := knowledge.ParseMode(in.Mode)
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Error [invalid_mode]: unknown mode %q", in.Mode)}},
			IsError: true,
		}, nil, nil
	}

	result := s.knowledge.Query(ctx, in.Query, mode)
	if !result.Success {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Error [%s]: %s", result.FailureKind, result.Error)}},
			IsError: true,
		}, nil, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: renderResult(result)}},
	}, nil, nil
}

// BatchSearchInput defines the input schema for batch_search.
type BatchSearchInput struct {
	Queries []string `json:"queries" jsonschema:"Questions to search concurrently via vector search"`
}

func (s *Server) registerBatchSearch() error {
	inputSchema, err := jsonschema.For[BatchSearchInput](nil)
	if err != nil {
		return fmt.Errorf("failed to create input schema: %w", err)
	}

	tool := &mcp.Tool{
		Name: "batch_search",
		Description: "Run several vector searches concurrently. Each query succeeds or fails " +
			"independently; results keep the input order.",
		InputSchema: inputSchema,
	}

	mcp.AddTool(s.mcpServer, tool, s.handleBatchSearch)

	return nil
}

func (s *Server) handleBatchSearch(ctx context.Context, req *mcp.CallToolRequest, in BatchSearchInput) (*mcp.CallToolResult, any, error) {
	if len(in.Queries) == 0 {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: "Error: queries must not be empty"}},
			IsError: true,
		}, nil, nil
	}

	results := s.knowledge.SearchBatch(ctx, in.Queries)

	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "### Query %d: %s\n\n", i+1, r.Query)
		switch {
		case r.Err != nil:
			fmt.Fprintf(&b, "FAILED: %v\n\n", r.Err)
		case len(r.Matches) == 0:
			b.WriteString("No matches above the similarity floor.\n\n")
		default:
			for _, m := range r.Matches {
				fmt.Fprintf(&b, "- (%.2f) %s\n", m.Similarity, m.Chunk.Content)
			}
			b.WriteString("\n")
		}
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: b.String()}},
	}, nil, nil
}

// StatsInput defines the (empty) input schema for get_knowledge_stats.
type StatsInput struct{}

func (s *Server) registerStats() error {
	inputSchema, err := jsonschema.For[StatsInput](nil)
	if err != nil {
		return fmt.Errorf("failed to create input schema: %w", err)
	}

	tool := &mcp.Tool{
		Name:        "get_knowledge_stats",
		Description: "Report corpus size (chunks, documents, outline nodes) and cache health.",
		InputSchema: inputSchema,
	}

	mcp.AddTool(s.mcpServer, tool, s.handleStats)

	return nil
}

func (s *Server) handleStats(ctx context.Context, req *mcp.CallToolRequest, in StatsInput) (*mcp.CallToolResult, any, error) {
	stats, err := s.knowledge.Stats(ctx)
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Error: %v", err)}},
			IsError: true,
		}, nil, nil
	}

	text := fmt.Sprintf(
		"Chunks: %d\nDocuments: %d\nOutline nodes: %d\nCache entries: %d\nCache hit rate: %.1f%%",
		stats.Chunks, stats.Documents, stats.Nodes, stats.CacheEntries, stats.CacheHitRate*100)

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

func renderResult(r knowledge.QueryResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Mode: %s", r.Mode)
	if r.Cached {
		b.WriteString(" (cached)")
	}
	b.WriteString("\n\n")

	if len(r.Path) > 0 {
		b.WriteString("Navigation path:\n")
		for _, step := range r.Path {
			fmt.Fprintf(&b, "- %s\n", step.Title)
		}
		b.WriteString("\n")
	}

	if r.Content == "" {
		b.WriteString("No relevant material found.")
	} else {
		b.WriteString(r.Content)
	}

	return b.String()
}
