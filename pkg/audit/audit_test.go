package audit

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "events.json")

	log, err := Open(path)
	require.NoError(t, err)
	defer log.Close()

	require.NoError(t, log.Record("ingest", map[string]any{"path": "/a.txt"}))
	require.NoError(t, log.Record("query", map[string]any{"query": "capital of France"}))
	require.NoError(t, log.Record("clear", nil))

	events, err := Read(path, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "ingest", events[0].Action)
	assert.Equal(t, "/a.txt", events[0].Details["path"])
	assert.False(t, events[0].Timestamp.IsZero())

	recent, err := Read(path, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "query", recent[0].Action)
	assert.Equal(t, "clear", recent[1].Action)
}

func TestReadMissingFile(t *testing.T) {
	events, err := Read(filepath.Join(t.TempDir(), "none.json"), 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestAppendSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.json")

	log, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, log.Record("first", nil))
	require.NoError(t, log.Close())

	log2, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, log2.Record("second", nil))
	require.NoError(t, log2.Close())

	events, err := Read(path, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "first", events[0].Action)
	assert.Equal(t, "second", events[1].Action)
}
