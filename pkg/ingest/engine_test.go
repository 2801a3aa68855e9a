package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pratap1297/rag-new-sub000/pkg/chunking"
	"github.com/pratap1297/rag-new-sub000/pkg/config"
	"github.com/pratap1297/rag-new-sub000/pkg/metastore"
	"github.com/pratap1297/rag-new-sub000/pkg/processors"
	"github.com/pratap1297/rag-new-sub000/pkg/vectorstore"
)

// fakeEmbedder returns deterministic vectors derived from text length.
type fakeEmbedder struct{}

func (f *fakeEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	v := make([]float32, 4)
	for i, r := range text {
		v[i%4] += float32(r) / 1000
	}
	return v, nil
}

func (f *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, _ := f.EmbedText(ctx, t)
		out[i] = vec
	}
	return out, nil
}

func (f *fakeEmbedder) GetDimension() int     { return 4 }
func (f *fakeEmbedder) GetModelName() string  { return "fake" }
func (f *fakeEmbedder) Close() error          { return nil }

func newTestEngine(t *testing.T) (*Engine, *vectorstore.Store, *metastore.Store) {
	t.Helper()
	dir := t.TempDir()

	index, err := vectorstore.NewIndexFromConfig(&config.VectorDBConfig{Backend: "hnsw"}, 4)
	require.NoError(t, err)
	store, err := vectorstore.New(index, 4,
		filepath.Join(dir, "index.hnsw"), filepath.Join(dir, "sidecar.json"))
	require.NoError(t, err)

	meta, err := metastore.New(filepath.Join(dir, "files.json"))
	require.NoError(t, err)

	engine := New(store, meta, &fakeEmbedder{},
		chunking.NewSizeChunker(1000, 200), processors.NewRegistry(),
		&config.IngestionConfig{MaxFileSizeMB: 10, MaxConcurrent: 2})
	return engine, store, meta
}

func TestIngestTextCreatesVectorsAndRecord(t *testing.T) {
	engine, store, meta := newTestEngine(t)
	ctx := context.Background()

	result, err := engine.IngestText(ctx, "Paris is the capital of France.",
		map[string]any{"doc_path": "/geo/paris"})
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, result.Status)
	assert.NotEmpty(t, result.FileID)
	assert.False(t, result.IsUpdate)
	assert.Equal(t, 0, result.OldVectorsDeleted)
	assert.Equal(t, result.ChunksCreated, result.VectorsStored)

	stats := store.GetStats()
	assert.Equal(t, result.ChunksCreated, stats.ActiveVectors)
	assert.Equal(t, 1, meta.Count())

	// Chunk metadata carries identity and flat structure.
	for id, m := range store.Active() {
		assert.Equal(t, "/geo/paris", m["doc_path"])
		assert.Equal(t, "geo_paris", m[vectorstore.MetaDocID])
		assert.NotContains(t, m, "metadata")
		chunkID, _ := m["chunk_id"].(string)
		assert.True(t, strings.HasPrefix(chunkID, "geo_paris#"), chunkID)
		_ = id
	}
}

func TestReplaceOnUpdateSoftDeletesOldVectors(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	first, err := engine.IngestText(ctx, "Paris is the capital of France.",
		map[string]any{"doc_path": "/geo/paris"})
	require.NoError(t, err)

	second, err := engine.IngestText(ctx, "Paris is a city in France.",
		map[string]any{"doc_path": "/geo/paris"})
	require.NoError(t, err)

	assert.True(t, second.IsUpdate)
	assert.GreaterOrEqual(t, second.OldVectorsDeleted, 1)
	assert.Equal(t, first.ChunksCreated, second.OldVectorsDeleted)

	// Active count equals exactly the second ingest's chunk count.
	stats := store.GetStats()
	assert.Equal(t, second.ChunksCreated, stats.ActiveVectors)
	assert.Equal(t, first.ChunksCreated+second.ChunksCreated, stats.TotalVectors)
}

func TestIngestTextSkipsEmpty(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	result, err := engine.IngestText(context.Background(), "   ", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, result.Status)
	assert.Equal(t, "no_content", result.Reason)
}

func TestIngestFileFromDisk(t *testing.T) {
	engine, _, meta := newTestEngine(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("The quick brown fox jumps over the lazy dog."), 0644))

	result, err := engine.IngestFile(context.Background(), path, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)

	record, ok := meta.GetByPath(path)
	require.True(t, ok)
	assert.Equal(t, "txt", record.FileType)
	assert.Equal(t, result.ChunksCreated, record.ChunkCount)
}

func TestIngestFileMissing(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, err := engine.IngestFile(context.Background(), "/does/not/exist.txt", nil)
	require.Error(t, err)
}

func TestDeleteFileRemovesVectors(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.IngestText(ctx, "Some content about databases.",
		map[string]any{"doc_path": "/db/intro"})
	require.NoError(t, err)

	deleted, err := engine.DeleteFile(ctx, "/db/intro")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, deleted, 1)
	assert.Equal(t, 0, store.GetStats().ActiveVectors)

	// Deleting an unknown identity succeeds with zero.
	deleted, err = engine.DeleteFile(ctx, "/nope")
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
}

func TestClearWipesEverything(t *testing.T) {
	engine, store, meta := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.IngestText(ctx, "Doc one.", map[string]any{"doc_path": "/a"})
	require.NoError(t, err)
	_, err = engine.IngestText(ctx, "Doc two.", map[string]any{"doc_path": "/b"})
	require.NoError(t, err)

	result, err := engine.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.DocumentsDeleted)
	assert.Equal(t, result.VectorsDeleted, result.ChunksDeleted)
	assert.Equal(t, 0, store.GetStats().TotalVectors)
	assert.Equal(t, 0, meta.Count())
}

func TestIngestDirectory(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("Alpha content."), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("Beta content."), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.bin"), []byte{0x00, 0x01}, 0644))

	results, err := engine.IngestDirectory(context.Background(), dir, []string{"*.txt"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		require.NotNil(t, r.Result, r.Path)
		assert.Equal(t, StatusSuccess, r.Result.Status)
	}
}
