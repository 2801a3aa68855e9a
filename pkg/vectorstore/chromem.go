package vectorstore

import (
	"context"
	"os"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/pratap1297/rag-new-sub000/pkg/config"
	"github.com/pratap1297/rag-new-sub000/pkg/ragerror"
)

const chromemCollection = "vectors"

// chromemIndex is an embedded alternative backend. Vectors are stored with
// precomputed embeddings, so the collection's embedding function is never
// invoked.
type chromemIndex struct {
	mu         sync.RWMutex
	db         *chromem.DB
	collection *chromem.Collection
	dimension  int
	closed     bool
}

func newChromemIndex(cfg *config.VectorDBConfig, dimension int) (*chromemIndex, error) {
	if dimension <= 0 {
		return nil, ragerror.NewConfig("vectorstore", "create_index", "dimension must be positive", nil)
	}

	db := chromem.NewDB()
	collection, err := db.GetOrCreateCollection(chromemCollection, nil, noEmbedding)
	if err != nil {
		return nil, ragerror.NewStorage("vectorstore", "create_index", "failed to create chromem collection", err)
	}

	return &chromemIndex{
		db:         db,
		collection: collection,
		dimension:  dimension,
	}, nil
}

// noEmbedding satisfies chromem's embedding hook; every document and query
// carries a precomputed embedding, so a call here is a bug.
func noEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, ragerror.NewStorage("vectorstore", "embed", "chromem backend received a document without an embedding", nil)
}

func (idx *chromemIndex) Add(ctx context.Context, ids []uint64, vectors [][]float32) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return ragerror.NewStorage("vectorstore", "add", "index is closed", nil)
	}

	docs := make([]chromem.Document, len(ids))
	for i, id := range ids {
		docs[i] = chromem.Document{
			ID:        strconv.FormatUint(id, 10),
			Content:   " ",
			Embedding: vectors[i],
		}
	}

	if err := idx.collection.AddDocuments(ctx, docs, 1); err != nil {
		return ragerror.NewStorage("vectorstore", "add", "failed to add documents to chromem", err)
	}
	return nil
}

func (idx *chromemIndex) Search(ctx context.Context, query []float32, k int) ([]Candidate, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return nil, ragerror.NewStorage("vectorstore", "search", "index is closed", nil)
	}

	count := idx.collection.Count()
	if count == 0 {
		return []Candidate{}, nil
	}
	if k > count {
		k = count
	}

	results, err := idx.collection.QueryEmbedding(ctx, query, k, nil, nil)
	if err != nil {
		return nil, ragerror.NewStorage("vectorstore", "search", "chromem query failed", err)
	}

	candidates := make([]Candidate, 0, len(results))
	for _, r := range results {
		id, err := strconv.ParseUint(r.ID, 10, 64)
		if err != nil {
			continue
		}
		candidates = append(candidates, Candidate{ID: id, Score: r.Similarity})
	}
	return candidates, nil
}

func (idx *chromemIndex) Remove(ctx context.Context, ids []uint64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return ragerror.NewStorage("vectorstore", "remove", "index is closed", nil)
	}

	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = strconv.FormatUint(id, 10)
	}
	if err := idx.collection.Delete(ctx, nil, nil, strIDs...); err != nil {
		return ragerror.NewStorage("vectorstore", "remove", "chromem delete failed", err)
	}
	return nil
}

func (idx *chromemIndex) Clear(ctx context.Context) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return ragerror.NewStorage("vectorstore", "clear", "index is closed", nil)
	}

	if err := idx.db.DeleteCollection(chromemCollection); err != nil {
		return ragerror.NewStorage("vectorstore", "clear", "failed to drop chromem collection", err)
	}
	collection, err := idx.db.GetOrCreateCollection(chromemCollection, nil, noEmbedding)
	if err != nil {
		return ragerror.NewStorage("vectorstore", "clear", "failed to recreate chromem collection", err)
	}
	idx.collection = collection
	return nil
}

func (idx *chromemIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return 0
	}
	return idx.collection.Count()
}

func (idx *chromemIndex) Type() string { return "chromem" }

func (idx *chromemIndex) Persist(path string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return ragerror.NewStorage("vectorstore", "persist", "index is closed", nil)
	}
	if err := idx.db.ExportToFile(path, false, ""); err != nil {
		return ragerror.NewStorage("vectorstore", "persist", "failed to export chromem db", err).
			WithDetail("path", path)
	}
	return nil
}

func (idx *chromemIndex) Load(path string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return ragerror.NewStorage("vectorstore", "load", "index is closed", nil)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := idx.db.ImportFromFile(path, ""); err != nil {
		return ragerror.NewStorage("vectorstore", "load", "failed to import chromem db", err).
			WithDetail("path", path)
	}
	collection := idx.db.GetCollection(chromemCollection, noEmbedding)
	if collection != nil {
		idx.collection = collection
	}
	return nil
}

func (idx *chromemIndex) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.closed = true
	return nil
}
