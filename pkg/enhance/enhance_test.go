package enhance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnhanceClassifiesIntent(t *testing.T) {
	e := New(3)
	ctx := context.Background()

	cases := []struct {
		query  string
		intent string
	}{
		{"hello there", IntentGreeting},
		{"goodbye", IntentGoodbye},
		{"compare postgres and mysql", IntentComparison},
		{"explain how vector search works", IntentExplanation},
		{"what is the capital of France?", IntentQuestion},
		{"network outage building 3", IntentInformationSeeking},
	}

	for _, tc := range cases {
		enhanced, err := e.Enhance(ctx, tc.query)
		require.NoError(t, err, tc.query)
		assert.Equal(t, tc.intent, enhanced.Intent.Type, tc.query)
		assert.Greater(t, enhanced.Intent.Confidence, 0.0, tc.query)
	}
}

func TestExtractKeywordsDropsStopWords(t *testing.T) {
	keywords := ExtractKeywords("What is the difference between HNSW and IVF indexes?")
	assert.Contains(t, keywords, "difference")
	assert.Contains(t, keywords, "hnsw")
	assert.Contains(t, keywords, "ivf")
	assert.Contains(t, keywords, "indexes")
	assert.NotContains(t, keywords, "the")
	assert.NotContains(t, keywords, "is")
	assert.NotContains(t, keywords, "between")
}

func TestVariantsOrderedByConfidence(t *testing.T) {
	e := New(3)
	enhanced, err := e.Enhance(context.Background(), "explain vector embeddings")
	require.NoError(t, err)

	variants := e.Variants(enhanced)
	require.NotEmpty(t, variants)
	assert.Equal(t, "explain vector embeddings", variants[0].Text)
	assert.Equal(t, 1.0, variants[0].Confidence)
	for i := 1; i < len(variants); i++ {
		assert.LessOrEqual(t, variants[i].Confidence, variants[i-1].Confidence)
	}
	assert.LessOrEqual(t, len(variants), 3)
}

func TestVariantsDeduplicates(t *testing.T) {
	e := New(5)
	variants := e.Variants(&Enhanced{
		Query:               "kubernetes",
		ExpandedQueries:     []string{"kubernetes"},
		ReformulatedQueries: []string{"Kubernetes"},
	})
	require.Len(t, variants, 1)
	assert.Equal(t, "kubernetes", variants[0].Text)
}
