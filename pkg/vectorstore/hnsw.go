package vectorstore

import (
	"bufio"
	"context"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	"github.com/pratap1297/rag-new-sub000/pkg/config"
	"github.com/pratap1297/rag-new-sub000/pkg/ragerror"
)

// hnswIndex is the default in-process backend, built on coder/hnsw.
// Deletion is lazy: removed nodes stay in the graph and the Store filters
// them out of results, which sidesteps graph repair on delete.
type hnswIndex struct {
	mu        sync.RWMutex
	graph     *hnsw.Graph[uint64]
	dimension int
	removed   map[uint64]struct{}
	closed    bool
}

func newHNSWIndex(cfg *config.VectorDBConfig, dimension int) (*hnswIndex, error) {
	if dimension <= 0 {
		return nil, ragerror.NewConfig("vectorstore", "create_index", "dimension must be positive", nil)
	}

	m := cfg.M
	if m == 0 {
		m = 16
	}
	efSearch := cfg.EfSearch
	if efSearch == 0 {
		efSearch = 50
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = m
	graph.EfSearch = efSearch
	graph.Ml = 0.25

	return &hnswIndex{
		graph:     graph,
		dimension: dimension,
		removed:   make(map[uint64]struct{}),
	}, nil
}

func (idx *hnswIndex) Add(ctx context.Context, ids []uint64, vectors [][]float32) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return ragerror.NewStorage("vectorstore", "add", "index is closed", nil)
	}

	for i, id := range ids {
		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeInPlace(vec)
		idx.graph.Add(hnsw.MakeNode(id, vec))
		delete(idx.removed, id)
	}
	return nil
}

func (idx *hnswIndex) Search(ctx context.Context, query []float32, k int) ([]Candidate, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return nil, ragerror.NewStorage("vectorstore", "search", "index is closed", nil)
	}
	if idx.graph.Len() == 0 {
		return []Candidate{}, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeInPlace(normalized)

	nodes := idx.graph.Search(normalized, k)

	candidates := make([]Candidate, 0, len(nodes))
	for _, node := range nodes {
		if _, gone := idx.removed[node.Key]; gone {
			continue
		}
		distance := idx.graph.Distance(normalized, node.Value)
		candidates = append(candidates, Candidate{
			ID: node.Key,
			// CosineDistance is 1 - cos, so this recovers similarity.
			Score: 1.0 - distance,
		})
	}
	return candidates, nil
}

func (idx *hnswIndex) Remove(ctx context.Context, ids []uint64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return ragerror.NewStorage("vectorstore", "remove", "index is closed", nil)
	}
	for _, id := range ids {
		idx.removed[id] = struct{}{}
	}
	return nil
}

func (idx *hnswIndex) Clear(ctx context.Context) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return ragerror.NewStorage("vectorstore", "clear", "index is closed", nil)
	}

	fresh := hnsw.NewGraph[uint64]()
	fresh.Distance = idx.graph.Distance
	fresh.M = idx.graph.M
	fresh.EfSearch = idx.graph.EfSearch
	fresh.Ml = idx.graph.Ml
	idx.graph = fresh
	idx.removed = make(map[uint64]struct{})
	return nil
}

func (idx *hnswIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return 0
	}
	return idx.graph.Len()
}

func (idx *hnswIndex) Type() string { return "hnsw" }

// Persist writes the graph with write-to-temp-then-rename.
func (idx *hnswIndex) Persist(path string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return ragerror.NewStorage("vectorstore", "persist", "index is closed", nil)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return ragerror.NewStorage("vectorstore", "persist", "failed to create index directory", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return ragerror.NewStorage("vectorstore", "persist", "failed to create index file", err).
			WithDetail("path", tmpPath)
	}

	if err := idx.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return ragerror.NewStorage("vectorstore", "persist", "failed to export index", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return ragerror.NewStorage("vectorstore", "persist", "failed to close index file", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return ragerror.NewStorage("vectorstore", "persist", "failed to replace index file", err).
			WithDetail("path", path)
	}
	return nil
}

func (idx *hnswIndex) Load(path string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return ragerror.NewStorage("vectorstore", "load", "index is closed", nil)
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return ragerror.NewStorage("vectorstore", "load", "failed to open index file", err).
			WithDetail("path", path)
	}
	defer file.Close()

	// Import needs an io.ByteReader.
	if err := idx.graph.Import(bufio.NewReader(file)); err != nil {
		return ragerror.NewStorage("vectorstore", "load", "corrupt index file", err).
			WithDetail("path", path)
	}
	return nil
}

func (idx *hnswIndex) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.closed = true
	idx.graph = nil
	return nil
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
