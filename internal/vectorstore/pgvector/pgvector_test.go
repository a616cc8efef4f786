package pgvector

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfchat/internal/domain"
)

func TestToFloat32(t *testing.T) {
	assert.Equal(t, []float32{1, 0.5, -2}, toFloat32([]float64{1, 0.5, -2}))
}

func TestStorageAgainstPostgres(t *testing.T) {
	dsn := os.Getenv("PDFCHAT_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("Skipping integration test: PDFCHAT_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := Open(ctx, dsn)
	require.NoError(t, err)
	defer db.Close()

	store, err := db.Factory()(ctx, "test-doc")
	require.NoError(t, err)
	require.NoError(t, store.Init(ctx, 2))
	require.NoError(t, store.Clear(ctx))
	defer store.Clear(ctx)

	chunks := []domain.Chunk{
		{DocumentID: "test-doc", ChunkID: "test-doc:0", Index: 0, Page: 1, Text: "alpha"},
		{DocumentID: "test-doc", ChunkID: "test-doc:1", Index: 1, Page: 2, Text: "beta"},
	}
	require.NoError(t, store.Upsert(ctx, chunks, [][]float64{{1, 0}, {0, 1}}))

	res, err := store.Search(ctx, []float64{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, chunks[1], res[0].Chunk)
	assert.InDelta(t, 1.0, res[0].Score, 1e-6)

	// A second store for the same document has its own rows.
	other, err := db.Factory()(ctx, "test-doc-2")
	require.NoError(t, err)
	require.NoError(t, other.Init(ctx, 2))
	require.NoError(t, other.Upsert(ctx, chunks, [][]float64{{1, 0}, {0, 1}}))
	require.NoError(t, other.Clear(ctx))

	res, err = store.Search(ctx, []float64{0, 1}, 2)
	require.NoError(t, err)
	assert.Len(t, res, 2)
}
