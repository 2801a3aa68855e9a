package vectorstore

import (
	"context"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/pratap1297/rag-new-sub000/pkg/config"
	"github.com/pratap1297/rag-new-sub000/pkg/ragerror"
)

// qdrantIndex is the remote backend, talking gRPC to a Qdrant server.
// The server owns durability, so Persist and Load are no-ops.
type qdrantIndex struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

func newQdrantIndex(cfg *config.VectorDBConfig, dimension int) (*qdrantIndex, error) {
	if dimension <= 0 {
		return nil, ragerror.NewConfig("vectorstore", "create_index", "dimension must be positive", nil)
	}

	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 6334
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "vectors"
	}

	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, ragerror.NewStorage("vectorstore", "create_index", "failed to connect to qdrant", err).
			WithDetail("host", host).
			WithDetail("port", port)
	}

	idx := &qdrantIndex{
		client:     client,
		collection: collection,
		dimension:  dimension,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := idx.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}

	return idx, nil
}

func (idx *qdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := idx.client.CollectionExists(ctx, idx.collection)
	if err != nil {
		return ragerror.NewStorage("vectorstore", "create_index", "failed to check qdrant collection", err)
	}
	if exists {
		return nil
	}

	err = idx.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: idx.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(idx.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return ragerror.NewStorage("vectorstore", "create_index", "failed to create qdrant collection", err).
			WithDetail("collection", idx.collection)
	}
	return nil
}

func (idx *qdrantIndex) Add(ctx context.Context, ids []uint64, vectors [][]float32) error {
	points := make([]*qdrant.PointStruct, len(ids))
	for i, id := range ids {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(id),
			Vectors: qdrant.NewVectors(vectors[i]...),
		}
	}

	_, err := idx.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: idx.collection,
		Points:         points,
	})
	if err != nil {
		return ragerror.NewStorage("vectorstore", "add", "qdrant upsert failed", err)
	}
	return nil
}

func (idx *qdrantIndex) Search(ctx context.Context, query []float32, k int) ([]Candidate, error) {
	points, err := idx.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: idx.collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          qdrant.PtrOf(uint64(k)),
	})
	if err != nil {
		return nil, ragerror.NewStorage("vectorstore", "search", "qdrant query failed", err)
	}

	candidates := make([]Candidate, 0, len(points))
	for _, point := range points {
		num, ok := point.Id.PointIdOptions.(*qdrant.PointId_Num)
		if !ok {
			continue
		}
		candidates = append(candidates, Candidate{ID: num.Num, Score: point.Score})
	}
	return candidates, nil
}

func (idx *qdrantIndex) Remove(ctx context.Context, ids []uint64) error {
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewIDNum(id)
	}

	_, err := idx.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: idx.collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return ragerror.NewStorage("vectorstore", "remove", "qdrant delete failed", err)
	}
	return nil
}

func (idx *qdrantIndex) Clear(ctx context.Context) error {
	if err := idx.client.DeleteCollection(ctx, idx.collection); err != nil {
		return ragerror.NewStorage("vectorstore", "clear", "failed to drop qdrant collection", err)
	}
	return idx.ensureCollection(ctx)
}

func (idx *qdrantIndex) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	count, err := idx.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: idx.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0
	}
	return int(count)
}

func (idx *qdrantIndex) Type() string { return "qdrant" }

func (idx *qdrantIndex) Persist(string) error { return nil }

func (idx *qdrantIndex) Load(string) error { return nil }

func (idx *qdrantIndex) Close() error {
	return idx.client.Close()
}
