package embedders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pratap1297/rag-new-sub000/pkg/config"
)

func TestOpenAIEmbedderRequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIEmbedderFromConfig(&config.EmbeddingConfig{Provider: "openai"})
	require.Error(t, err)
}

func TestOpenAIEmbedTextsPreservesOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		// Answer out of order; the client must restore input order.
		resp := openAIEmbedResponse{}
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, struct {
				Embedding []float32 `json:"embedding"`
				Index     int       `json:"index"`
			}{Embedding: []float32{float32(i), 0}, Index: i})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	embedder, err := NewOpenAIEmbedderFromConfig(&config.EmbeddingConfig{
		Provider:  "openai",
		APIKey:    "test-key",
		Host:      server.URL,
		Dimension: 2,
	})
	require.NoError(t, err)

	vectors, err := embedder.EmbedTexts(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for i, v := range vectors {
		assert.Equal(t, float32(i), v[0])
	}
}

func TestOllamaEmbedText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float32{0.1, 0.2, 0.3}})
	}))
	defer server.Close()

	embedder, err := NewOllamaEmbedderFromConfig(&config.EmbeddingConfig{
		Provider:  "ollama",
		Host:      server.URL,
		Dimension: 3,
	})
	require.NoError(t, err)

	vec, err := embedder.EmbedText(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, vec, 3)
	assert.Equal(t, 3, embedder.GetDimension())
}

func TestRegistryRejectsUnknownProvider(t *testing.T) {
	registry := NewEmbedderRegistry()
	_, err := registry.CreateEmbedderFromConfig("main", &config.EmbeddingConfig{Provider: "bogus"})
	require.Error(t, err)
}

func TestRegistryCreateAndGet(t *testing.T) {
	registry := NewEmbedderRegistry()
	provider, err := registry.CreateEmbedderFromConfig("main", &config.EmbeddingConfig{
		Provider: "ollama",
	})
	require.NoError(t, err)

	got, err := registry.GetEmbedder("main")
	require.NoError(t, err)
	assert.Equal(t, provider, got)
}
