package vectorstore

import (
	"context"

	"github.com/pratap1297/rag-new-sub000/pkg/config"
	"github.com/pratap1297/rag-new-sub000/pkg/ragerror"
)

// Candidate is one index-level search hit. Score is cosine similarity in
// [-1, 1].
type Candidate struct {
	ID    uint64
	Score float32
}

// Index is the dense-index backend behind the Store. Implementations hold
// vectors only; all metadata, soft-delete state and id assignment live in
// the Store.
type Index interface {
	// Add inserts vectors under the given ids. Dimensions are validated by
	// the caller.
	Add(ctx context.Context, ids []uint64, vectors [][]float32) error

	// Search returns up to k nearest candidates by cosine similarity,
	// including lazily deleted entries the backend has not reclaimed.
	Search(ctx context.Context, query []float32, k int) ([]Candidate, error)

	// Remove physically drops vectors where the backend supports it.
	// Backends with lazy deletion may keep the nodes; the Store filters
	// deleted ids from results either way.
	Remove(ctx context.Context, ids []uint64) error

	// Clear drops every vector.
	Clear(ctx context.Context) error

	// Len returns the number of vectors the backend holds, lazily deleted
	// entries included.
	Len() int

	Type() string

	// Persist and Load serialize the backend at the given path. Remote
	// backends treat both as no-ops.
	Persist(path string) error
	Load(path string) error

	Close() error
}

// NewIndexFromConfig builds the configured index backend.
func NewIndexFromConfig(cfg *config.VectorDBConfig, dimension int) (Index, error) {
	if cfg == nil {
		return nil, ragerror.NewConfig("vectorstore", "create_index", "vector_db config is required", nil)
	}

	switch cfg.Backend {
	case "", "hnsw":
		return newHNSWIndex(cfg, dimension)
	case "chromem":
		return newChromemIndex(cfg, dimension)
	case "qdrant":
		return newQdrantIndex(cfg, dimension)
	default:
		return nil, ragerror.NewConfig("vectorstore", "create_index", "unsupported index backend", nil).
			WithDetail("backend", cfg.Backend)
	}
}
