package knowledge

import (
	"context"
	"testing"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickAIautomation/quickvetpro/internal/log"
	"github.com/quickAIautomation/quickvetpro/internal/testutil"
)

// unitVec returns a 768-dim vector with a 1 at the given axis, so
// cosine similarity between distinct axes is exactly 0 and between
// equal axes exactly 1.
func unitVec(axis int) []float32 {
	v := make([]float32, 768)
	v[axis] = 1
	return v
}

func seedCorpus(t *testing.T, ctx context.Context, db *testutil.TestDBContainer) (docID int64) {
	t.Helper()

	err := db.Pool.QueryRow(ctx,
		`INSERT INTO structural_documents (title, source) VALUES ($1, $2) RETURNING id`,
		"Manual de Pequenos Animais", "manual.pdf").Scan(&docID)
	require.NoError(t, err)

	var rootID int64
	err = db.Pool.QueryRow(ctx,
		`INSERT INTO structural_nodes (document_id, level, ordinal, title)
		 VALUES ($1, 0, 0, 'Farmacologia') RETURNING id`, docID).Scan(&rootID)
	require.NoError(t, err)

	var leafID int64
	err = db.Pool.QueryRow(ctx,
		`INSERT INTO structural_nodes (document_id, parent_id, level, ordinal, title, content)
		 VALUES ($1, $2, 1, 0, 'Anti-inflamatórios', 'Meloxicam: 0,1 mg/kg SID.') RETURNING id`,
		docID, rootID).Scan(&leafID)
	require.NoError(t, err)

	_, err = db.Pool.Exec(ctx,
		`INSERT INTO structural_nodes (document_id, parent_id, level, ordinal, title, content, refs)
		 VALUES ($1, $2, 1, 1, 'Antibióticos', 'Amoxicilina: 10 mg/kg BID.', $3)`,
		docID, rootID, []int64{leafID})
	require.NoError(t, err)

	for i, content := range []string{
		"Sinais clínicos de cinomose em cães.",
		"Protocolo de fluidoterapia para choque.",
		"Vacinação de filhotes a partir de 45 dias.",
	} {
		_, err = db.Pool.Exec(ctx,
			`INSERT INTO knowledge_chunks (document_id, ordinal, content, embedding)
			 VALUES ($1, $2, $3, $4)`,
			docID, i, content, pgvector.NewVector(unitVec(i)))
		require.NoError(t, err)
	}

	return docID
}

func TestStore_SearchChunks_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	seedCorpus(t, ctx, db)
	store := NewStore(db.Pool, 80, log.NewNop())

	matches, err := store.SearchChunks(ctx, unitVec(1), 3)
	require.NoError(t, err)
	require.Len(t, matches, 3)

	// The query embedding coincides with the fluidoterapia chunk.
	assert.Equal(t, "Protocolo de fluidoterapia para choque.", matches[0].Chunk.Content)
	assert.InDelta(t, 1.0, matches[0].Similarity, 0.001)
	assert.InDelta(t, 0.0, matches[1].Similarity, 0.001)
}

func TestStore_Nodes_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	docID := seedCorpus(t, ctx, db)
	store := NewStore(db.Pool, 80, log.NewNop())

	docs, err := store.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Manual de Pequenos Animais", docs[0].Title)

	roots, err := store.Roots(ctx, docID)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, "Farmacologia", roots[0].Title)
	assert.False(t, roots[0].Leaf())

	children, err := store.Children(ctx, roots[0].ID)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "Anti-inflamatórios", children[0].Title)
	assert.Equal(t, "Antibióticos", children[1].Title)
	assert.True(t, children[0].Leaf())

	// The second child cross-references the first.
	require.Len(t, children[1].Refs, 1)
	refs, err := store.NodesByID(ctx, children[1].Refs)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, children[0].ID, refs[0].ID)

	outline, err := store.Outline(ctx, docID)
	require.NoError(t, err)
	require.Len(t, outline, 3)
	assert.Equal(t, int32(0), outline[0].Level)

	_, err = store.Node(ctx, 999999)
	require.ErrorIs(t, err, ErrNavigationExhausted)
}

func TestStore_Counts_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	seedCorpus(t, ctx, db)
	store := NewStore(db.Pool, 80, log.NewNop())

	chunks, err := store.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), chunks)

	docs, err := store.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), docs)

	nodes, err := store.CountNodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), nodes)

	require.NoError(t, store.Ping(ctx))
}
