// Package vectorstore maintains the dense vector index and the per-vector
// metadata sidecar. Deletion is soft: records are marked deleted and
// filtered from search results, and their ids are never reused.
package vectorstore

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/pratap1297/rag-new-sub000/pkg/config"
	"github.com/pratap1297/rag-new-sub000/pkg/ragerror"
)

// Reserved metadata keys.
const (
	MetaText       = "text"
	MetaDocID      = "doc_id"
	MetaDocPath    = "doc_path"
	MetaFilename   = "filename"
	MetaChunkIndex = "chunk_index"
	MetaSourceType = "source_type"
	MetaIngestedAt = "ingested_at"
	MetaDeleted    = "deleted"
	MetaAddedAt    = "added_at"
)

// SearchResult is one scored hit with its metadata.
type SearchResult struct {
	ID       uint64         `json:"id"`
	Score    float32        `json:"score"`
	Text     string         `json:"text"`
	DocID    string         `json:"doc_id"`
	Metadata map[string]any `json:"metadata"`
}

// Stats summarizes the store.
type Stats struct {
	TotalVectors  int    `json:"total_vectors"`
	ActiveVectors int    `json:"active_vectors"`
	Dimension     int    `json:"dimension"`
	IndexType     string `json:"index_type"`
}

// Store owns the index and the vector_id -> metadata mapping. All access
// goes through a single-writer / multi-reader lock so one search observes a
// consistent snapshot.
type Store struct {
	mu        sync.RWMutex
	index     Index
	dimension int
	metadata  map[uint64]map[string]any
	nextID    uint64

	indexPath   string
	sidecarPath string
}

type sidecarState struct {
	Dimension int                       `json:"dimension"`
	NextID    uint64                    `json:"next_id"`
	Metadata  map[uint64]map[string]any `json:"metadata"`
	SavedAt   time.Time                 `json:"saved_at"`
}

// New creates a store over the given backend. indexPath and sidecarPath
// locate the persisted state; existing state is loaded when present.
func New(index Index, dimension int, indexPath, sidecarPath string) (*Store, error) {
	if dimension <= 0 {
		return nil, ragerror.NewConfig("vectorstore", "create", "dimension must be positive", nil)
	}

	s := &Store{
		index:       index,
		dimension:   dimension,
		metadata:    make(map[uint64]map[string]any),
		indexPath:   indexPath,
		sidecarPath: sidecarPath,
	}

	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewFromConfig builds the configured backend and the store over it.
func NewFromConfig(cfg *config.Config) (*Store, error) {
	index, err := NewIndexFromConfig(&cfg.VectorDB, cfg.Embedding.Dimension)
	if err != nil {
		return nil, err
	}
	return New(index, cfg.Embedding.Dimension, cfg.Paths.IndexPath(), cfg.Paths.SidecarPath())
}

// AddVectors appends vectors with their metadata and returns the assigned
// ids. The batch is all-or-nothing: dimensions are validated up front and
// nothing is committed if the index rejects the batch.
func (s *Store) AddVectors(ctx context.Context, vectors [][]float32, metas []map[string]any) ([]uint64, error) {
	if len(vectors) != len(metas) {
		return nil, ragerror.NewStorage("vectorstore", "add_vectors", "vectors and metadata length mismatch", nil).
			WithDetail("vectors", len(vectors)).
			WithDetail("metas", len(metas))
	}
	if len(vectors) == 0 {
		return []uint64{}, nil
	}

	for i, v := range vectors {
		if len(v) != s.dimension {
			return nil, ragerror.NewStorage("vectorstore", "add_vectors", "vector dimension mismatch", nil).
				WithDetail("index", i).
				WithDetail("expected", s.dimension).
				WithDetail("got", len(v))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)
	ids := make([]uint64, len(vectors))
	records := make([]map[string]any, len(vectors))
	for i := range vectors {
		ids[i] = s.nextID + uint64(i)
		record := Flatten(metas[i])
		record[MetaDeleted] = false
		record[MetaAddedAt] = now
		records[i] = record
	}

	if err := s.index.Add(ctx, ids, vectors); err != nil {
		return nil, err
	}

	for i, id := range ids {
		s.metadata[id] = records[i]
	}
	s.nextID += uint64(len(vectors))

	slog.Debug("Added vectors", "count", len(ids), "first_id", ids[0])
	return ids, nil
}

// Search returns up to k active hits ordered by similarity descending,
// ties broken by lower id.
func (s *Store) Search(ctx context.Context, query []float32, k int) ([]Candidate, error) {
	results, err := s.SearchWithMetadata(ctx, query, k)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, len(results))
	for i, r := range results {
		candidates[i] = Candidate{ID: r.ID, Score: r.Score}
	}
	return candidates, nil
}

// SearchWithMetadata is Search plus the stored metadata for each hit.
// Deleted vectors are filtered after the index-level search, so fewer than
// k results can come back even when the store holds more.
func (s *Store) SearchWithMetadata(ctx context.Context, query []float32, k int) ([]SearchResult, error) {
	if len(query) != s.dimension {
		return nil, ragerror.NewStorage("vectorstore", "search", "query dimension mismatch", nil).
			WithDetail("expected", s.dimension).
			WithDetail("got", len(query))
	}
	if k <= 0 {
		return []SearchResult{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	// Overfetch by the number of inactive records so deleted hits do not
	// crowd out live ones.
	fetchK := k + s.inactiveCountLocked()

	candidates, err := s.index.Search(ctx, query, fetchK)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, k)
	for _, c := range candidates {
		meta, exists := s.metadata[c.ID]
		if !exists || isDeleted(meta) {
			continue
		}
		text, _ := meta[MetaText].(string)
		docID, _ := meta[MetaDocID].(string)
		results = append(results, SearchResult{
			ID:       c.ID,
			Score:    c.Score,
			Text:     text,
			DocID:    docID,
			Metadata: copyMeta(meta),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// DeleteVectors soft-deletes the given ids and returns how many were
// active before the call. Unknown and already-deleted ids are skipped.
func (s *Store) DeleteVectors(ctx context.Context, ids []uint64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for _, id := range ids {
		meta, exists := s.metadata[id]
		if !exists || isDeleted(meta) {
			continue
		}
		meta[MetaDeleted] = true
		deleted++
	}

	if deleted > 0 {
		slog.Debug("Soft-deleted vectors", "requested", len(ids), "deleted", deleted)
	}
	return deleted, nil
}

// RestoreVectors reverts soft deletion. It is an admin path; normal
// operation never undeletes.
func (s *Store) RestoreVectors(ctx context.Context, ids []uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	restored := 0
	for _, id := range ids {
		meta, exists := s.metadata[id]
		if !exists || !isDeleted(meta) {
			continue
		}
		meta[MetaDeleted] = false
		restored++
	}
	return restored
}

// Compact physically removes soft-deleted vectors from the index and
// drops their metadata. Compacted vectors are no longer restorable.
// Assigned ids stay monotonic; compaction never frees them for reuse.
func (s *Store) Compact(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []uint64
	for id, meta := range s.metadata {
		if isDeleted(meta) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if err := s.index.Remove(ctx, ids); err != nil {
		return 0, err
	}
	for _, id := range ids {
		delete(s.metadata, id)
	}

	slog.Info("Compacted vector store", "reclaimed", len(ids))
	return len(ids), nil
}

// UpdateMetadata shallow-merges patch into the record's metadata. The
// deleted flag cannot be flipped back to false through this path.
func (s *Store) UpdateMetadata(ctx context.Context, id uint64, patch map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, exists := s.metadata[id]
	if !exists {
		return ragerror.NewStorage("vectorstore", "update_metadata", "vector not found", nil).
			WithDetail("vector_id", id)
	}

	wasDeleted := isDeleted(meta)
	for key, value := range Flatten(patch) {
		meta[key] = value
	}
	if wasDeleted {
		meta[MetaDeleted] = true
	}
	return nil
}

// ClearIndex removes every vector and its metadata. Ids stay monotonic
// across a clear.
func (s *Store) ClearIndex(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := 0
	for _, meta := range s.metadata {
		if !isDeleted(meta) {
			active++
		}
	}

	if err := s.index.Clear(ctx); err != nil {
		return 0, err
	}
	s.metadata = make(map[uint64]map[string]any)

	slog.Info("Cleared vector index", "active_removed", active)
	return active, nil
}

// GetMetadata returns a copy of one record's metadata.
func (s *Store) GetMetadata(id uint64) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, exists := s.metadata[id]
	if !exists {
		return nil, false
	}
	return copyMeta(meta), true
}

// Active returns a snapshot of all non-deleted records, keyed by id. Used
// for identity matching during re-ingest and for document listings.
func (s *Store) Active() map[uint64]map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make(map[uint64]map[string]any)
	for id, meta := range s.metadata {
		if !isDeleted(meta) {
			snapshot[id] = copyMeta(meta)
		}
	}
	return snapshot
}

// GetStats returns store counters.
func (s *Store) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := 0
	for _, meta := range s.metadata {
		if !isDeleted(meta) {
			active++
		}
	}
	return Stats{
		TotalVectors:  len(s.metadata),
		ActiveVectors: active,
		Dimension:     s.dimension,
		IndexType:     s.index.Type(),
	}
}

// Dimension returns the fixed vector dimension.
func (s *Store) Dimension() int { return s.dimension }

// Persist serializes the index and the sidecar atomically.
func (s *Store) Persist() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.index.Persist(s.indexPath); err != nil {
		return err
	}

	state := sidecarState{
		Dimension: s.dimension,
		NextID:    s.nextID,
		Metadata:  s.metadata,
		SavedAt:   time.Now(),
	}
	data, err := json.Marshal(state)
	if err != nil {
		return ragerror.NewStorage("vectorstore", "persist", "failed to encode sidecar", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.sidecarPath), 0755); err != nil {
		return ragerror.NewStorage("vectorstore", "persist", "failed to create sidecar directory", err)
	}

	tmpPath := s.sidecarPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return ragerror.NewStorage("vectorstore", "persist", "failed to write sidecar", err).
			WithDetail("path", tmpPath)
	}
	if err := os.Rename(tmpPath, s.sidecarPath); err != nil {
		os.Remove(tmpPath)
		return ragerror.NewStorage("vectorstore", "persist", "failed to replace sidecar", err).
			WithDetail("path", s.sidecarPath)
	}

	slog.Debug("Persisted vector store", "vectors", len(s.metadata), "index", s.indexPath)
	return nil
}

// Load restores persisted state. A missing sidecar means a fresh store; a
// sidecar with a different dimension is rejected.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.sidecarPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return ragerror.NewStorage("vectorstore", "load", "failed to read sidecar", err).
			WithDetail("path", s.sidecarPath)
	}

	var state sidecarState
	if err := json.Unmarshal(data, &state); err != nil {
		return ragerror.NewStorage("vectorstore", "load", "corrupt sidecar file", err).
			WithDetail("path", s.sidecarPath)
	}

	if state.Dimension != s.dimension {
		return ragerror.NewStorage("vectorstore", "load", "persisted dimension does not match configuration", nil).
			WithDetail("persisted", state.Dimension).
			WithDetail("configured", s.dimension)
	}

	if err := s.index.Load(s.indexPath); err != nil {
		return err
	}

	// A sidecar describing active vectors over an empty index means the
	// index file was lost or never written; stats and search would
	// silently diverge, so refuse to start from it.
	active := 0
	for _, meta := range state.Metadata {
		if !isDeleted(meta) {
			active++
		}
	}
	if active > 0 && s.index.Len() == 0 {
		return ragerror.NewStorage("vectorstore", "load", "sidecar lists active vectors but the index holds none", nil).
			WithDetail("active", active).
			WithDetail("index_path", s.indexPath)
	}

	s.metadata = state.Metadata
	if s.metadata == nil {
		s.metadata = make(map[uint64]map[string]any)
	}
	s.nextID = state.NextID

	slog.Info("Loaded vector store", "vectors", len(s.metadata), "next_id", s.nextID)
	return nil
}

// Close releases the backend.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

func (s *Store) inactiveCountLocked() int {
	inactive := 0
	for _, meta := range s.metadata {
		if isDeleted(meta) {
			inactive++
		}
	}
	return inactive
}

func isDeleted(meta map[string]any) bool {
	deleted, _ := meta[MetaDeleted].(bool)
	return deleted
}

func copyMeta(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

// Flatten lifts the contents of any nested "metadata" key to the top level
// and returns a flat copy. Historically records were written with nested
// metadata maps; flattening on write keeps reads uniform.
func Flatten(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta))
	var nested map[string]any
	for key, value := range meta {
		if key == "metadata" {
			if inner, ok := value.(map[string]any); ok {
				nested = inner
				continue
			}
		}
		out[key] = value
	}
	// Top-level keys win over nested ones.
	if nested != nil {
		for nk, nv := range Flatten(nested) {
			if _, exists := out[nk]; !exists {
				out[nk] = nv
			}
		}
	}
	return out
}
