package rerank

import (
	"context"
	"sort"
)

// OverlapReranker scores candidates by lexical overlap with the query.
// It is cheap and deterministic and needs no model, so it serves as the
// default reranker when no LLM is configured for reranking.
type OverlapReranker struct{}

func NewOverlapReranker() *OverlapReranker { return &OverlapReranker{} }

func (r *OverlapReranker) Name() string { return "overlap" }

// Rerank computes, for each candidate, the fraction of query terms that
// appear in its text, blended with the retrieval similarity so that ties
// on overlap keep the retrieval order.
func (r *OverlapReranker) Rerank(ctx context.Context, query string, candidates []Candidate, topK int) ([]Candidate, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}

	queryTokens := tokenize(query)
	out := make([]Candidate, len(candidates))
	copy(out, candidates)

	for i := range out {
		overlap := 0.0
		if len(queryTokens) > 0 {
			docTokens := tokenize(out[i].Text)
			matched := 0
			for tok := range queryTokens {
				if docTokens[tok] {
					matched++
				}
			}
			overlap = float64(matched) / float64(len(queryTokens))
		}
		// The similarity term only breaks ties between equal overlaps.
		out[i].RerankScore = overlap + out[i].Similarity*0.001
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RerankScore > out[j].RerankScore
	})
	return truncate(out, topK), nil
}
