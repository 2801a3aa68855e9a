// Package metastore persists file ingestion records: the mapping from file
// identity to what was ingested (chunk count, vector ids, timestamps).
// Records live in a single JSON file under the data root and every write
// goes through write-to-temp-then-rename.
package metastore

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pratap1297/rag-new-sub000/pkg/ragerror"
)

// FileRecord is one file ingestion record.
type FileRecord struct {
	FileID     string         `json:"file_id"`
	FilePath   string         `json:"file_path"`
	FileSize   int64          `json:"file_size"`
	FileType   string         `json:"file_type"`
	IngestedAt time.Time      `json:"ingested_at"`
	ChunkCount int            `json:"chunk_count"`
	VectorIDs  []uint64       `json:"vector_ids"`
	Metadata   map[string]any `json:"metadata,omitempty"`

	// Superseded marks records replaced by a re-ingest of the same path.
	Superseded bool `json:"superseded,omitempty"`
}

// Store is the persistent metadata store.
type Store struct {
	mu      sync.RWMutex
	path    string
	records map[string]*FileRecord // file_id -> record
}

type persistedState struct {
	Records map[string]*FileRecord `json:"records"`
	SavedAt time.Time              `json:"saved_at"`
}

// New creates a store backed by the given JSON file, loading existing
// records when the file is present.
func New(path string) (*Store, error) {
	s := &Store{
		path:    path,
		records: make(map[string]*FileRecord),
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	return s, nil
}

// Save writes a new record, superseding any active record with the same
// file path, and persists the store.
func (s *Store) Save(record *FileRecord) error {
	if record == nil || record.FileID == "" {
		return ragerror.NewStorage("metastore", "save", "record with file_id is required", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.records {
		if existing.FilePath == record.FilePath && !existing.Superseded && existing.FileID != record.FileID {
			existing.Superseded = true
		}
	}
	s.records[record.FileID] = record

	return s.persistLocked()
}

// Get returns a record by file id.
func (s *Store) Get(fileID string) (*FileRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.records[fileID]
	return record, exists
}

// GetByPath returns the active (non-superseded) record for a file path.
func (s *Store) GetByPath(filePath string) (*FileRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, record := range s.records {
		if record.FilePath == filePath && !record.Superseded {
			return record, true
		}
	}
	return nil, false
}

// List returns all active records.
func (s *Store) List() []*FileRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*FileRecord, 0, len(s.records))
	for _, record := range s.records {
		if !record.Superseded {
			records = append(records, record)
		}
	}
	return records
}

// Delete removes the active record for a file path. Missing paths are not
// an error.
func (s *Store) Delete(filePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, record := range s.records {
		if record.FilePath == filePath && !record.Superseded {
			delete(s.records, id)
		}
	}

	return s.persistLocked()
}

// Clear removes every record.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]*FileRecord)
	return s.persistLocked()
}

// Count returns the number of active records.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, record := range s.records {
		if !record.Superseded {
			count++
		}
	}
	return count
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return ragerror.NewStorage("metastore", "load", "failed to read metadata file", err).
			WithDetail("path", s.path)
	}

	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		return ragerror.NewStorage("metastore", "load", "corrupt metadata file", err).
			WithDetail("path", s.path)
	}

	if state.Records != nil {
		s.records = state.Records
	}

	slog.Debug("Loaded file ingestion records", "path", s.path, "count", len(s.records))
	return nil
}

// persistLocked writes the store atomically. Caller holds s.mu.
func (s *Store) persistLocked() error {
	state := persistedState{
		Records: s.records,
		SavedAt: time.Now(),
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return ragerror.NewStorage("metastore", "persist", "failed to encode records", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return ragerror.NewStorage("metastore", "persist", "failed to create metadata directory", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return ragerror.NewStorage("metastore", "persist", "failed to write metadata file", err).
			WithDetail("path", tmpPath)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return ragerror.NewStorage("metastore", "persist", "failed to replace metadata file", err).
			WithDetail("path", s.path)
	}

	return nil
}

// String implements fmt.Stringer for diagnostics.
func (s *Store) String() string {
	return fmt.Sprintf("metastore(%s, %d records)", s.path, s.Count())
}
