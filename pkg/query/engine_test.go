package query

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pratap1297/rag-new-sub000/pkg/config"
	"github.com/pratap1297/rag-new-sub000/pkg/rerank"
	"github.com/pratap1297/rag-new-sub000/pkg/vectorstore"
)

type stubEmbedder struct{}

func (s *stubEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0, 0}, nil
}

type stubSearcher struct {
	results []vectorstore.SearchResult
	err     error
}

func (s *stubSearcher) SearchWithMetadata(ctx context.Context, query []float32, k int) ([]vectorstore.SearchResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.results) > k {
		return s.results[:k], nil
	}
	return s.results, nil
}

type stubLLM struct {
	answer  string
	err     error
	prompts []string
}

func (s *stubLLM) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.answer, s.err
}

func result(id uint64, score float32, text, chunkID string) vectorstore.SearchResult {
	return vectorstore.SearchResult{
		ID:    id,
		Score: score,
		Text:  text,
		DocID: "doc-1",
		Metadata: map[string]any{
			"chunk_id": chunkID,
		},
	}
}

func testConfig() *config.RetrievalConfig {
	return &config.RetrievalConfig{
		TopK:                5,
		SimilarityThreshold: 0.2,
	}
}

func TestProcessQueryReturnsGroundedAnswer(t *testing.T) {
	searcher := &stubSearcher{results: []vectorstore.SearchResult{
		result(1, 0.9, "Paris is the capital of France.", "a#0"),
		result(2, 0.7, "France is in Europe.", "a#1"),
	}}
	llm := &stubLLM{answer: "Paris."}

	engine := New(searcher, &stubEmbedder{}, llm, nil, nil, testConfig())
	resp, err := engine.ProcessQuery(context.Background(), "capital of France?", 0)
	require.NoError(t, err)

	assert.Equal(t, "Paris.", resp.Response)
	require.Len(t, resp.Sources, 2)
	assert.Equal(t, 2, resp.TotalSources)
	assert.InDelta(t, 0.9, resp.Sources[0].SimilarityScore, 1e-6)
	assert.Nil(t, resp.Sources[0].RerankScore)
	assert.False(t, resp.Timestamp.IsZero())

	require.Len(t, llm.prompts, 1)
	prompt := llm.prompts[0]
	assert.True(t, strings.HasPrefix(prompt, "Based on the following context, answer: capital of France?"))
	assert.Contains(t, prompt, "Context:\nParis is the capital of France.")
	assert.True(t, strings.HasSuffix(prompt, "Answer:"))
}

func TestProcessQueryInsufficientContext(t *testing.T) {
	searcher := &stubSearcher{results: []vectorstore.SearchResult{
		result(1, 0.05, "Unrelated text.", "a#0"),
	}}
	llm := &stubLLM{answer: "should not be called"}

	engine := New(searcher, &stubEmbedder{}, llm, nil, nil, testConfig())
	resp, err := engine.ProcessQuery(context.Background(), "capital of France?", 0)
	require.NoError(t, err)

	assert.Equal(t, insufficientContextResponse, resp.Response)
	assert.Empty(t, resp.Sources)
	assert.Empty(t, llm.prompts)
}

func TestProcessQueryEmptyQueryRejected(t *testing.T) {
	engine := New(&stubSearcher{}, &stubEmbedder{}, &stubLLM{}, nil, nil, testConfig())
	_, err := engine.ProcessQuery(context.Background(), "   ", 0)
	require.Error(t, err)
}

func TestProcessQueryLLMFailureKeepsSources(t *testing.T) {
	searcher := &stubSearcher{results: []vectorstore.SearchResult{
		result(1, 0.9, "Paris is the capital of France.", "a#0"),
	}}
	llm := &stubLLM{err: errors.New("provider down")}

	engine := New(searcher, &stubEmbedder{}, llm, nil, nil, testConfig())
	resp, err := engine.ProcessQuery(context.Background(), "capital of France?", 0)
	require.NoError(t, err)

	assert.Equal(t, llmFailureResponse, resp.Response)
	require.Len(t, resp.Sources, 1)
}

func TestProcessQueryRerankingAddsScores(t *testing.T) {
	searcher := &stubSearcher{results: []vectorstore.SearchResult{
		result(1, 0.9, "Bananas are rich in potassium.", "a#0"),
		result(2, 0.8, "The capital of France is Paris.", "a#1"),
	}}
	llm := &stubLLM{answer: "Paris."}
	cfg := testConfig()
	cfg.EnableReranking = true
	cfg.RerankTopK = 2

	engine := New(searcher, &stubEmbedder{}, llm, nil,
		rerank.NewOverlapReranker(), cfg)
	resp, err := engine.ProcessQuery(context.Background(), "capital France", 0)
	require.NoError(t, err)

	require.Len(t, resp.Sources, 2)
	// The lexically matching chunk wins despite lower similarity.
	assert.Equal(t, "The capital of France is Paris.", resp.Sources[0].Text)
	require.NotNil(t, resp.Sources[0].RerankScore)
	require.NotNil(t, resp.Sources[1].RerankScore)
	assert.Greater(t, *resp.Sources[0].RerankScore, *resp.Sources[1].RerankScore)
}

func TestProcessQuerySourcePreviewTruncated(t *testing.T) {
	long := strings.Repeat("x", 500)
	searcher := &stubSearcher{results: []vectorstore.SearchResult{
		result(1, 0.9, long, "a#0"),
	}}
	llm := &stubLLM{answer: "ok"}

	engine := New(searcher, &stubEmbedder{}, llm, nil, nil, testConfig())
	resp, err := engine.ProcessQuery(context.Background(), "anything relevant", 0)
	require.NoError(t, err)

	require.Len(t, resp.Sources, 1)
	assert.Len(t, resp.Sources[0].Text, 200)
	// The prompt still carries the full chunk text.
	assert.Contains(t, llm.prompts[0], long)
}

func TestProcessQuerySearchFailure(t *testing.T) {
	searcher := &stubSearcher{err: errors.New("index offline")}
	engine := New(searcher, &stubEmbedder{}, &stubLLM{}, nil, nil, testConfig())

	_, err := engine.ProcessQuery(context.Background(), "anything", 0)
	require.Error(t, err)
}
