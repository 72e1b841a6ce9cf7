package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// DB is the subset of pgxpool.Pool the store needs. Defined here so
// tests can substitute a lighter implementation.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

var _ DB = (*pgxpool.Pool)(nil)

const searchChunksSQL = `
SELECT c.id, c.document_id, c.ordinal, c.content, c.created_at,
       1 - (c.embedding <=> $1) AS similarity
FROM knowledge_chunks c
ORDER BY c.embedding <=> $1, c.ordinal ASC, c.id ASC
LIMIT $2`

const nodeColumns = `id, document_id, parent_id, level, ordinal, title, COALESCE(content, ''), COALESCE(refs, '{}')`

// Store reads the knowledge corpus from PostgreSQL. Chunk search uses
// the pgvector cosine operator over an HNSW index; ef_search is raised
// per transaction so recall can be tuned without a reindex.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db       DB
	efSearch int32
	logger   *slog.Logger
}

// NewStore creates a Store on top of an existing connection pool.
// efSearch values below the pgvector default of 40 are ignored.
func NewStore(db DB, efSearch int32, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if efSearch < 40 {
		efSearch = 40
	}
	return &Store{db: db, efSearch: efSearch, logger: logger}
}

// SearchChunks returns the topK chunks nearest to the query embedding,
// ordered by descending similarity with document ordinal breaking ties.
func (s *Store) SearchChunks(ctx context.Context, embedding []float32, topK int32) ([]ChunkMatch, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: begin search: %w", ErrStoreUnavailable, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// SET LOCAL scopes the recall knob to this transaction.
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", s.efSearch)); err != nil {
		return nil, fmt.Errorf("%w: set ef_search: %w", ErrStoreUnavailable, err)
	}

	rows, err := tx.Query(ctx, searchChunksSQL, pgvector.NewVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("%w: search chunks: %w", ErrStoreUnavailable, err)
	}
	matches, err := scanMatches(rows)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: commit search: %w", ErrStoreUnavailable, err)
	}

	s.logger.Debug("chunk search", "top_k", topK, "returned", len(matches))
	return matches, nil
}

func scanMatches(rows pgx.Rows) ([]ChunkMatch, error) {
	defer rows.Close()

	var matches []ChunkMatch
	for rows.Next() {
		var (
			m         ChunkMatch
			createdAt time.Time
		)
		if err := rows.Scan(&m.Chunk.ID, &m.Chunk.DocumentID, &m.Chunk.Ordinal,
			&m.Chunk.Content, &createdAt, &m.Similarity); err != nil {
			return nil, fmt.Errorf("%w: scan chunk: %w", ErrStoreUnavailable, err)
		}
		m.Chunk.CreatedAt = createdAt
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read chunks: %w", ErrStoreUnavailable, err)
	}
	return matches, nil
}

// Documents lists all structured documents in the corpus.
func (s *Store) Documents(ctx context.Context) ([]Document, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, title, source, created_at FROM structural_documents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: list documents: %w", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Title, &d.Source, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan document: %w", ErrStoreUnavailable, err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read documents: %w", ErrStoreUnavailable, err)
	}
	return docs, nil
}

// Node fetches a single node by id.
func (s *Store) Node(ctx context.Context, id int64) (Node, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+nodeColumns+` FROM structural_nodes WHERE id = $1`, id)
	n, err := scanNode(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Node{}, fmt.Errorf("node %d: %w", id, ErrNavigationExhausted)
	}
	return n, err
}

// Roots returns the top-level nodes of a document in outline order.
func (s *Store) Roots(ctx context.Context, documentID int64) ([]Node, error) {
	return s.queryNodes(ctx,
		`SELECT `+nodeColumns+` FROM structural_nodes
		 WHERE document_id = $1 AND parent_id IS NULL
		 ORDER BY ordinal, id`, documentID)
}

// Children returns the direct children of a node in outline order.
func (s *Store) Children(ctx context.Context, parentID int64) ([]Node, error) {
	return s.queryNodes(ctx,
		`SELECT `+nodeColumns+` FROM structural_nodes
		 WHERE parent_id = $1
		 ORDER BY ordinal, id`, parentID)
}

// NodesByID fetches the given nodes, preserving outline order rather
// than input order. Missing ids are silently dropped.
func (s *Store) NodesByID(ctx context.Context, ids []int64) ([]Node, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.queryNodes(ctx,
		`SELECT `+nodeColumns+` FROM structural_nodes
		 WHERE id = ANY($1)
		 ORDER BY level, ordinal, id`, ids)
}

// Outline returns every node of a document ordered depth-first by
// (level, ordinal). The navigator renders this as the table of contents
// shown to the model.
func (s *Store) Outline(ctx context.Context, documentID int64) ([]Node, error) {
	return s.queryNodes(ctx,
		`SELECT `+nodeColumns+` FROM structural_nodes
		 WHERE document_id = $1
		 ORDER BY level, ordinal, id`, documentID)
}

func (s *Store) queryNodes(ctx context.Context, sql string, args ...any) ([]Node, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query nodes: %w", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var nodes []Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read nodes: %w", ErrStoreUnavailable, err)
	}
	return nodes, nil
}

func scanNode(row pgx.Row) (Node, error) {
	var n Node
	if err := row.Scan(&n.ID, &n.DocumentID, &n.ParentID, &n.Level, &n.Ordinal,
		&n.Title, &n.Content, &n.Refs); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Node{}, err
		}
		return Node{}, fmt.Errorf("%w: scan node: %w", ErrStoreUnavailable, err)
	}
	return n, nil
}

// CountChunks returns the number of embedded chunks in the corpus.
func (s *Store) CountChunks(ctx context.Context) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM knowledge_chunks`)
}

// CountDocuments returns the number of structured documents.
func (s *Store) CountDocuments(ctx context.Context) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM structural_documents`)
}

// CountNodes returns the number of structural nodes.
func (s *Store) CountNodes(ctx context.Context) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM structural_nodes`)
}

func (s *Store) count(ctx context.Context, sql string) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, sql).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count: %w", ErrStoreUnavailable, err)
	}
	return n, nil
}

// Ping verifies database connectivity for health checks.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("%w: ping: %w", ErrStoreUnavailable, err)
	}
	return nil
}
