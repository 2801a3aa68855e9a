package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pratap1297/rag-new-sub000/pkg/config"
	"github.com/pratap1297/rag-new-sub000/pkg/ingest"
)

type recordingIngestor struct {
	mu       sync.Mutex
	ingested []string
	deleted  []string
}

func (r *recordingIngestor) IngestFile(ctx context.Context, path string, userMetadata map[string]any) (*ingest.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ingested = append(r.ingested, path)
	return &ingest.Result{Status: ingest.StatusSuccess, ChunksCreated: 1}, nil
}

func (r *recordingIngestor) DeleteFile(ctx context.Context, path string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, path)
	return 1, nil
}

func (r *recordingIngestor) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ingested), len(r.deleted)
}

func newTestMonitor(t *testing.T) (*Monitor, *recordingIngestor, string) {
	t.Helper()
	dir := t.TempDir()
	ingestor := &recordingIngestor{}
	monitor := New(ingestor, &config.MonitoringConfig{
		CheckInterval: 3600,
		Recursive:     true,
	}, []string{"txt"})
	t.Cleanup(func() { monitor.Close() })

	added, err := monitor.AddFolder(dir)
	require.NoError(t, err)
	require.True(t, added)
	return monitor, ingestor, dir
}

func TestAddFolderIdempotent(t *testing.T) {
	monitor, _, dir := newTestMonitor(t)

	added, err := monitor.AddFolder(dir)
	require.NoError(t, err)
	assert.False(t, added)
	assert.Len(t, monitor.ListFolders(), 1)
}

func TestAddFolderRejectsMissingPath(t *testing.T) {
	monitor, _, _ := newTestMonitor(t)
	_, err := monitor.AddFolder("/does/not/exist")
	require.Error(t, err)
}

func TestScanClassifiesNewModifiedDeleted(t *testing.T) {
	monitor, ingestor, dir := newTestMonitor(t)
	ctx := context.Background()
	path := filepath.Join(dir, "a.txt")

	// New file.
	require.NoError(t, os.WriteFile(path, []byte("first"), 0644))
	monitor.ForceScan(ctx)
	ingested, deleted := ingestor.counts()
	assert.Equal(t, 1, ingested)
	assert.Equal(t, 0, deleted)

	// Unchanged file is not re-ingested.
	monitor.ForceScan(ctx)
	ingested, _ = ingestor.counts()
	assert.Equal(t, 1, ingested)

	// Modified file (size change forces reclassification even with a
	// coarse mtime clock).
	require.NoError(t, os.WriteFile(path, []byte("second, longer"), 0644))
	monitor.ForceScan(ctx)
	ingested, _ = ingestor.counts()
	assert.Equal(t, 2, ingested)

	// Deleted file.
	require.NoError(t, os.Remove(path))
	monitor.ForceScan(ctx)
	_, deleted = ingestor.counts()
	assert.Equal(t, 1, deleted)
	assert.Equal(t, path, ingestor.deleted[0])
}

func TestScanIgnoresUnsupportedExtensions(t *testing.T) {
	monitor, ingestor, dir := newTestMonitor(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.bin"), []byte{0x1}, 0644))
	monitor.ForceScan(context.Background())

	ingested, _ := ingestor.counts()
	assert.Equal(t, 0, ingested)
	assert.Empty(t, monitor.ListFiles())
}

func TestStatusAndListFiles(t *testing.T) {
	monitor, _, dir := newTestMonitor(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0644))

	status := monitor.ForceScan(context.Background())
	assert.Equal(t, 1, status.TrackedFiles)
	assert.Equal(t, 1, status.ScanCount)
	assert.False(t, status.LastScan.IsZero())

	files := monitor.ListFiles()
	require.Len(t, files, 1)
	assert.True(t, files[0].Ingested)
}

func TestRemoveFolderDropsTracking(t *testing.T) {
	monitor, _, dir := newTestMonitor(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0644))
	monitor.ForceScan(context.Background())

	removed, err := monitor.RemoveFolder(dir)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Empty(t, monitor.ListFolders())
	assert.Empty(t, monitor.ListFiles())

	removed, err = monitor.RemoveFolder(dir)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestStartStopIdempotentAndJoins(t *testing.T) {
	monitor, ingestor, dir := newTestMonitor(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0644))

	monitor.Start()
	monitor.Start()

	// The baseline scan picks up the existing file.
	require.Eventually(t, func() bool {
		ingested, _ := ingestor.counts()
		return ingested == 1
	}, 5*time.Second, 10*time.Millisecond)

	monitor.Stop()
	monitor.Stop()
	assert.False(t, monitor.GetStatus().Running)
}
