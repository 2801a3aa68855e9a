package rerank

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedLLM struct {
	response string
	err      error
	prompts  []string
}

func (s *scriptedLLM) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.response, s.err
}

func sampleCandidates() []Candidate {
	return []Candidate{
		{ID: 1, Text: "Paris is the capital of France.", Similarity: 0.9},
		{ID: 2, Text: "The Eiffel Tower is in Paris.", Similarity: 0.8},
		{ID: 3, Text: "Bananas are rich in potassium.", Similarity: 0.7},
	}
}

func TestNoOpRerankerCopiesSimilarity(t *testing.T) {
	out, err := NewNoOpReranker().Rerank(context.Background(), "q", sampleCandidates(), 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, uint64(1), out[0].ID)
	assert.Equal(t, 0.9, out[0].RerankScore)
}

func TestOverlapRerankerPrefersLexicalMatch(t *testing.T) {
	candidates := []Candidate{
		{ID: 1, Text: "Bananas are rich in potassium.", Similarity: 0.95},
		{ID: 2, Text: "The capital of France is Paris.", Similarity: 0.5},
	}

	out, err := NewOverlapReranker().Rerank(context.Background(),
		"capital France", candidates, 0)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, uint64(2), out[0].ID)
	assert.Greater(t, out[0].RerankScore, out[1].RerankScore)
	// Input fields survive reranking.
	assert.Equal(t, 0.5, out[0].Similarity)
	assert.Equal(t, "The capital of France is Paris.", out[0].Text)
}

func TestLLMRerankerOrdersByResponse(t *testing.T) {
	llm := &scriptedLLM{response: "[3, 1]"}
	r := NewLLMReranker(llm, 10)

	out, err := r.Rerank(context.Background(), "potassium", sampleCandidates(), 10)
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, uint64(3), out[0].ID)
	assert.Equal(t, 1.0, out[0].RerankScore)
	assert.Equal(t, uint64(1), out[1].ID)
	assert.Equal(t, 0.95, out[1].RerankScore)
	// Omitted candidate trails with a floor score.
	assert.Equal(t, uint64(2), out[2].ID)
	assert.Equal(t, 0.05, out[2].RerankScore)
}

func TestLLMRerankerHandlesQuotedIDs(t *testing.T) {
	llm := &scriptedLLM{response: "The ranking is: [\"2\", \"1\", \"3\"]"}
	r := NewLLMReranker(llm, 10)

	out, err := r.Rerank(context.Background(), "paris", sampleCandidates(), 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, uint64(2), out[0].ID)
	assert.Equal(t, uint64(1), out[1].ID)
}

func TestLLMRerankerFallsBackOnGarbage(t *testing.T) {
	llm := &scriptedLLM{response: "I cannot rank these results."}
	r := NewLLMReranker(llm, 10)

	out, err := r.Rerank(context.Background(), "paris", sampleCandidates(), 10)
	require.NoError(t, err)
	require.Len(t, out, 3)
	// Retrieval order preserved, similarity copied to rerank score.
	assert.Equal(t, uint64(1), out[0].ID)
	assert.Equal(t, 0.9, out[0].RerankScore)
}

func TestLLMRerankerSurfacesCallError(t *testing.T) {
	llm := &scriptedLLM{err: context.DeadlineExceeded}
	r := NewLLMReranker(llm, 10)

	_, err := r.Rerank(context.Background(), "paris", sampleCandidates(), 10)
	require.Error(t, err)
}

func TestParseRankedIDsIgnoresProse(t *testing.T) {
	ids, err := parseRankedIDs("Here you go:\n```json\n[5, 2, 9]\n```")
	require.NoError(t, err)
	assert.Equal(t, []uint64{5, 2, 9}, ids)
}
