package knowledge

import "time"

// Mode selects the retrieval strategy for a knowledge query.
type Mode string

const (
	// ModeVector retrieves semantically similar chunks via ANN search.
	ModeVector Mode = "vector"

	// ModeStructural walks a document's outline tree guided by the model.
	ModeStructural Mode = "structural"

	// ModeHybrid runs both strategies and merges their results.
	ModeHybrid Mode = "hybrid"

	// ModeAuto lets the router pick vector or structural from the query text.
	ModeAuto Mode = "auto"
)

// Chunk is a flat fragment of corpus text with a precomputed embedding.
type Chunk struct {
	ID         int64     `json:"id"`
	DocumentID int64     `json:"document_id"`
	Ordinal    int32     `json:"ordinal"` // position within the source document
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// ChunkMatch pairs a chunk with its cosine similarity to the query.
type ChunkMatch struct {
	Chunk      Chunk   `json:"chunk"`
	Similarity float32 `json:"similarity"` // 1 - cosine distance, in [0, 1]
}

// Document is a structured corpus document whose sections form a tree.
type Document struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// Node is one section of a structured document. Nodes with children act
// as navigation waypoints; leaf nodes carry the retrievable content.
type Node struct {
	ID         int64   `json:"id"`
	DocumentID int64   `json:"document_id"`
	ParentID   *int64  `json:"parent_id,omitempty"` // nil for roots
	Level      int32   `json:"level"`               // depth in the tree, roots are 0
	Ordinal    int32   `json:"ordinal"`             // position among siblings
	Title      string  `json:"title"`
	Content    string  `json:"content,omitempty"`
	Refs       []int64 `json:"refs,omitempty"` // cross-references to related nodes
}

// Leaf reports whether the node carries content rather than structure.
func (n Node) Leaf() bool { return n.Content != "" }

// NavigationStep records one decision made during a structural walk.
type NavigationStep struct {
	NodeID int64  `json:"node_id"`
	Title  string `json:"title"`
	Reason string `json:"reason,omitempty"`
}

// QueryResult is the uniform answer shape returned by the Service facade.
// Failures never escape the facade as errors; they are reported in-band
// with Success=false and FailureKind set, so every caller (agent, MCP,
// REST) detects them the same way.
type QueryResult struct {
	Query       string           `json:"query"`
	Mode        Mode             `json:"mode_used"`
	Content     string           `json:"content"`
	Success     bool             `json:"success"`
	FailureKind FailureKind      `json:"failure_kind,omitempty"`
	Error       string           `json:"error,omitempty"`
	Matches     []ChunkMatch     `json:"matches,omitempty"` // vector and hybrid modes
	Path        []NavigationStep `json:"path,omitempty"`    // structural and hybrid modes
	Cached      bool             `json:"cached"`
	ElapsedMS   int64            `json:"elapsed_ms"`
}

// BatchResult holds the outcome for one query of a batch search.
// Each slot succeeds or fails independently of its siblings.
type BatchResult struct {
	Query   string       `json:"query"`
	Matches []ChunkMatch `json:"matches,omitempty"`
	Err     error        `json:"-"`
}

// Stats summarizes corpus size and cache health for operators.
type Stats struct {
	Chunks       int64   `json:"chunks"`
	Documents    int64   `json:"documents"`
	Nodes        int64   `json:"nodes"`
	CacheEntries int64   `json:"cache_entries"`
	CacheHitRate float64 `json:"cache_hit_rate"`
}

// ParseMode validates a caller-supplied mode string. Empty input means
// the caller has no preference and resolves to ModeAuto.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeVector, ModeStructural, ModeHybrid, ModeAuto:
		return Mode(s), nil
	case "":
		return ModeAuto, nil
	default:
		return "", ErrInvalidMode
	}
}
