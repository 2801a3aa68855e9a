// Package rerank reorders retrieval candidates by relevance to the
// query. Rerankers preserve every input field and attach a rerank score;
// callers treat reranking as optional and keep the original ordering when
// it fails.
package rerank

import (
	"context"
	"strings"
)

// Candidate is one retrieval result passed through reranking. Similarity
// is the retrieval score; RerankScore is filled in by the reranker.
type Candidate struct {
	ID          uint64
	Text        string
	Similarity  float64
	RerankScore float64
}

// Reranker reorders candidates for a query and returns at most topK of
// them with RerankScore set.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []Candidate, topK int) ([]Candidate, error)
	Name() string
}

// NoOpReranker passes candidates through unchanged, copying the
// similarity into the rerank score.
type NoOpReranker struct{}

func NewNoOpReranker() *NoOpReranker { return &NoOpReranker{} }

func (r *NoOpReranker) Name() string { return "noop" }

func (r *NoOpReranker) Rerank(ctx context.Context, query string, candidates []Candidate, topK int) ([]Candidate, error) {
	out := make([]Candidate, len(candidates))
	copy(out, candidates)
	for i := range out {
		out[i].RerankScore = out[i].Similarity
	}
	return truncate(out, topK), nil
}

func truncate(candidates []Candidate, topK int) []Candidate {
	if topK > 0 && len(candidates) > topK {
		return candidates[:topK]
	}
	return candidates
}

func tokenize(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, f := range strings.Fields(strings.ToLower(text)) {
		f = strings.Trim(f, ".,;:!?\"'()[]{}")
		if len(f) >= 3 {
			tokens[f] = true
		}
	}
	return tokens
}
