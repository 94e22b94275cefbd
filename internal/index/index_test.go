package index

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")
	ix, err := Open(path, "local-bow-v1")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ix.Close() })
	return ix
}

func TestUpsertQueryRoundTrip(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, ix.Upsert(ctx, UpsertInput{
		ID: "block-1", NamespaceID: "public", Type: "task", Tags: []string{"urgent"},
		Text: "write the quarterly report",
	}))
	require.NoError(t, ix.Upsert(ctx, UpsertInput{
		ID: "block-2", NamespaceID: "public", Type: "task", Tags: []string{"later"},
		Text: "plan the holiday party",
	}))

	results, err := ix.Query(ctx, QueryParams{Text: "write the quarterly report", K: 5})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "block-1", results[0].ID)
}

func TestRemoveDropsEntry(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, ix.Upsert(ctx, UpsertInput{ID: "block-1", Text: "hello"}))
	present, err := ix.Has("block-1")
	require.NoError(t, err)
	assert.True(t, present)

	require.NoError(t, ix.Remove(ctx, "block-1"))
	present, err = ix.Has("block-1")
	require.NoError(t, err)
	assert.False(t, present)
}

func TestFiltersMatch(t *testing.T) {
	e := Entry{NamespaceID: "public", Type: "task", Tags: []string{"a", "b"}}

	assert.True(t, (Filters{NamespaceID: "public"}).Match(e))
	assert.False(t, (Filters{NamespaceID: "other"}).Match(e))
	assert.True(t, (Filters{Tags: []string{"a"}}).Match(e))
	assert.False(t, (Filters{Tags: []string{"c"}}).Match(e))
}

func TestCosineSimilarityIdenticalVectorsIsOne(t *testing.T) {
	v := []float32{1, 2, 3}
	assert.InDelta(t, 1.0, cosineSimilarity(v, v), 1e-9)
}

func TestCosineSimilarityMismatchedLengthIsZero(t *testing.T) {
	assert.Equal(t, 0.0, cosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}))
}
