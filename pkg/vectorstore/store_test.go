package vectorstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pratap1297/rag-new-sub000/pkg/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	dir := t.TempDir()
	idx, err := newHNSWIndex(&config.VectorDBConfig{}, 4)
	require.NoError(t, err)

	store, err := New(idx, 4, filepath.Join(dir, "index.hnsw"), filepath.Join(dir, "sidecar.json"))
	require.NoError(t, err)
	return store
}

func TestAddVectorsAssignsSequentialIDs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ids, err := store.AddVectors(ctx,
		[][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}},
		[]map[string]any{
			{MetaText: "first", MetaDocPath: "/a"},
			{MetaText: "second", MetaDocPath: "/a"},
		})
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 1}, ids)

	meta, ok := store.GetMetadata(0)
	require.True(t, ok)
	assert.Equal(t, "first", meta[MetaText])
	assert.Equal(t, false, meta[MetaDeleted])
	assert.NotEmpty(t, meta[MetaAddedAt])
}

func TestAddVectorsRejectsDimensionMismatch(t *testing.T) {
	store := newTestStore(t)

	_, err := store.AddVectors(context.Background(),
		[][]float32{{1, 0, 0, 0}, {1, 0}},
		[]map[string]any{{MetaText: "ok"}, {MetaText: "bad"}})
	require.Error(t, err)

	// All-or-nothing: nothing from the batch landed.
	stats := store.GetStats()
	assert.Equal(t, 0, stats.TotalVectors)
}

func TestSearchOrdersBySimilarity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.AddVectors(ctx,
		[][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}, {0.9, 0.1, 0, 0}},
		[]map[string]any{
			{MetaText: "exact"},
			{MetaText: "orthogonal"},
			{MetaText: "close"},
		})
	require.NoError(t, err)

	results, err := store.SearchWithMetadata(ctx, []float32{1, 0, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "exact", results[0].Text)
	assert.Equal(t, "close", results[1].Text)
	assert.Equal(t, "orthogonal", results[2].Text)
	assert.InDelta(t, 1.0, float64(results[0].Score), 1e-5)
}

func TestDeleteVectorsHidesFromSearch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ids, err := store.AddVectors(ctx,
		[][]float32{{1, 0, 0, 0}, {0.9, 0.1, 0, 0}},
		[]map[string]any{{MetaText: "a"}, {MetaText: "b"}})
	require.NoError(t, err)

	deleted, err := store.DeleteVectors(ctx, []uint64{ids[0]})
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	// Idempotent.
	deleted, err = store.DeleteVectors(ctx, []uint64{ids[0]})
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)

	results, err := store.SearchWithMetadata(ctx, []float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, ids[0], r.ID)
	}

	stats := store.GetStats()
	assert.Equal(t, 2, stats.TotalVectors)
	assert.Equal(t, 1, stats.ActiveVectors)
}

func TestIDsNotReusedAfterDeletion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ids, err := store.AddVectors(ctx, [][]float32{{1, 0, 0, 0}}, []map[string]any{{MetaText: "a"}})
	require.NoError(t, err)

	_, err = store.DeleteVectors(ctx, ids)
	require.NoError(t, err)

	more, err := store.AddVectors(ctx, [][]float32{{0, 1, 0, 0}}, []map[string]any{{MetaText: "b"}})
	require.NoError(t, err)
	assert.Greater(t, more[0], ids[0])
}

func TestRestoreVectorsMakesSearchableAgain(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ids, err := store.AddVectors(ctx, [][]float32{{1, 0, 0, 0}}, []map[string]any{{MetaText: "a"}})
	require.NoError(t, err)

	_, err = store.DeleteVectors(ctx, ids)
	require.NoError(t, err)

	results, err := store.SearchWithMetadata(ctx, []float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	restored := store.RestoreVectors(ctx, ids)
	assert.Equal(t, 1, restored)

	results, err = store.SearchWithMetadata(ctx, []float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, ids[0], results[0].ID)
	assert.Equal(t, 1, store.GetStats().ActiveVectors)
}

func TestCompactReclaimsSoftDeleted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ids, err := store.AddVectors(ctx,
		[][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}},
		[]map[string]any{{MetaText: "keep"}, {MetaText: "drop"}})
	require.NoError(t, err)

	_, err = store.DeleteVectors(ctx, []uint64{ids[1]})
	require.NoError(t, err)

	reclaimed, err := store.Compact(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reclaimed)

	stats := store.GetStats()
	assert.Equal(t, 1, stats.TotalVectors)
	assert.Equal(t, 1, stats.ActiveVectors)

	// Compacted records are gone for good.
	_, ok := store.GetMetadata(ids[1])
	assert.False(t, ok)
	assert.Equal(t, 0, store.RestoreVectors(ctx, []uint64{ids[1]}))

	results, err := store.SearchWithMetadata(ctx, []float32{0, 1, 0, 0}, 5)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, ids[1], r.ID)
	}

	// Ids continue past compacted ones.
	more, err := store.AddVectors(ctx, [][]float32{{0, 0, 1, 0}}, []map[string]any{{MetaText: "c"}})
	require.NoError(t, err)
	assert.Equal(t, ids[1]+1, more[0])

	reclaimed, err = store.Compact(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, reclaimed)
}

func TestUpdateMetadataCannotUndelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ids, err := store.AddVectors(ctx, [][]float32{{1, 0, 0, 0}}, []map[string]any{{MetaText: "a"}})
	require.NoError(t, err)

	_, err = store.DeleteVectors(ctx, ids)
	require.NoError(t, err)

	err = store.UpdateMetadata(ctx, ids[0], map[string]any{MetaDeleted: false, "topic": "geo"})
	require.NoError(t, err)

	meta, ok := store.GetMetadata(ids[0])
	require.True(t, ok)
	assert.Equal(t, true, meta[MetaDeleted])
	assert.Equal(t, "geo", meta["topic"])
}

func TestClearIndexEmptiesEverything(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.AddVectors(ctx,
		[][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}},
		[]map[string]any{{MetaText: "a"}, {MetaText: "b"}})
	require.NoError(t, err)

	removed, err := store.ClearIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	results, err := store.SearchWithMetadata(ctx, []float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	stats := store.GetStats()
	assert.Equal(t, 0, stats.TotalVectors)
	assert.Equal(t, 0, stats.ActiveVectors)
}

func TestPersistAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	indexPath := filepath.Join(dir, "index.hnsw")
	sidecarPath := filepath.Join(dir, "sidecar.json")
	ctx := context.Background()

	idx, err := newHNSWIndex(&config.VectorDBConfig{}, 4)
	require.NoError(t, err)
	store, err := New(idx, 4, indexPath, sidecarPath)
	require.NoError(t, err)

	ids, err := store.AddVectors(ctx,
		[][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}},
		[]map[string]any{{MetaText: "a", MetaDocPath: "/x"}, {MetaText: "b", MetaDocPath: "/y"}})
	require.NoError(t, err)
	_, err = store.DeleteVectors(ctx, []uint64{ids[1]})
	require.NoError(t, err)
	require.NoError(t, store.Persist())

	idx2, err := newHNSWIndex(&config.VectorDBConfig{}, 4)
	require.NoError(t, err)
	reloaded, err := New(idx2, 4, indexPath, sidecarPath)
	require.NoError(t, err)

	stats := reloaded.GetStats()
	assert.Equal(t, 2, stats.TotalVectors)
	assert.Equal(t, 1, stats.ActiveVectors)

	meta, ok := reloaded.GetMetadata(ids[0])
	require.True(t, ok)
	assert.Equal(t, "a", meta[MetaText])

	results, err := reloaded.SearchWithMetadata(ctx, []float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, ids[0], results[0].ID)

	// Fresh ids continue past the persisted ones.
	more, err := reloaded.AddVectors(ctx, [][]float32{{0, 0, 1, 0}}, []map[string]any{{MetaText: "c"}})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), more[0])
}

func TestLoadRejectsMissingIndexFile(t *testing.T) {
	dir := t.TempDir()
	indexPath := filepath.Join(dir, "index.hnsw")
	sidecarPath := filepath.Join(dir, "sidecar.json")

	idx, err := newHNSWIndex(&config.VectorDBConfig{}, 4)
	require.NoError(t, err)
	store, err := New(idx, 4, indexPath, sidecarPath)
	require.NoError(t, err)

	_, err = store.AddVectors(context.Background(), [][]float32{{1, 0, 0, 0}}, []map[string]any{{MetaText: "a"}})
	require.NoError(t, err)
	require.NoError(t, store.Persist())

	require.NoError(t, os.Remove(indexPath))

	idx2, err := newHNSWIndex(&config.VectorDBConfig{}, 4)
	require.NoError(t, err)
	_, err = New(idx2, 4, indexPath, sidecarPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index holds none")
}

func TestLoadRejectsDimensionMismatch(t *testing.T) {
	dir := t.TempDir()
	indexPath := filepath.Join(dir, "index.hnsw")
	sidecarPath := filepath.Join(dir, "sidecar.json")

	idx, err := newHNSWIndex(&config.VectorDBConfig{}, 4)
	require.NoError(t, err)
	store, err := New(idx, 4, indexPath, sidecarPath)
	require.NoError(t, err)

	_, err = store.AddVectors(context.Background(), [][]float32{{1, 0, 0, 0}}, []map[string]any{{MetaText: "a"}})
	require.NoError(t, err)
	require.NoError(t, store.Persist())

	idx2, err := newHNSWIndex(&config.VectorDBConfig{}, 8)
	require.NoError(t, err)
	_, err = New(idx2, 8, indexPath, sidecarPath)
	require.Error(t, err)
}

func TestFlattenLiftsNestedMetadata(t *testing.T) {
	flat := Flatten(map[string]any{
		"doc_path": "/a",
		"metadata": map[string]any{
			"author":   "kim",
			"doc_path": "/nested-loses",
			"metadata": map[string]any{"depth": 2},
		},
	})

	assert.Equal(t, "/a", flat["doc_path"])
	assert.Equal(t, "kim", flat["author"])
	assert.Equal(t, 2, flat["depth"])
	assert.NotContains(t, flat, "metadata")
}
