package llms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pratap1297/rag-new-sub000/pkg/config"
	"github.com/pratap1297/rag-new-sub000/pkg/ragerror"
)

func TestCreateLLMRequiresCredentials(t *testing.T) {
	registry := NewLLMRegistry()

	for _, provider := range []string{"openai", "anthropic", "gemini"} {
		_, err := registry.CreateLLMFromConfig("main", &config.LLMConfig{Provider: provider})
		require.Error(t, err, provider)
		assert.True(t, ragerror.IsKind(err, ragerror.KindConfig), provider)
	}
}

func TestCreateLLMUnknownProvider(t *testing.T) {
	registry := NewLLMRegistry()
	_, err := registry.CreateLLMFromConfig("main", &config.LLMConfig{Provider: "bogus"})
	require.Error(t, err)
}

func TestOpenAIGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openAIChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "user", req.Messages[0].Role)

		json.NewEncoder(w).Encode(openAIChatResponse{
			Choices: []struct {
				Message openAIMessage `json:"message"`
			}{{Message: openAIMessage{Role: "assistant", Content: "Paris."}}},
		})
	}))
	defer server.Close()

	provider, err := NewOpenAIProviderFromConfig(&config.LLMConfig{
		Provider: "openai",
		APIKey:   "test-key",
		Host:     server.URL,
	})
	require.NoError(t, err)

	text, err := provider.Generate(context.Background(), "capital of France?", 100, 0.2)
	require.NoError(t, err)
	assert.Equal(t, "Paris.", text)
}

func TestOllamaGenerateSurfacesProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollamaGenerateResponse{Error: "model not found"})
	}))
	defer server.Close()

	provider, err := NewOllamaProviderFromConfig(&config.LLMConfig{
		Provider: "ollama",
		Host:     server.URL,
	})
	require.NoError(t, err)

	_, err = provider.Generate(context.Background(), "hello", 10, 0)
	require.Error(t, err)
	assert.True(t, ragerror.IsKind(err, ragerror.KindLLM))
}

func TestAnthropicGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))

		json.NewEncoder(w).Encode(anthropicResponse{
			Content: []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			}{{Type: "text", Text: "Hello there."}},
		})
	}))
	defer server.Close()

	provider, err := NewAnthropicProviderFromConfig(&config.LLMConfig{
		Provider: "anthropic",
		APIKey:   "test-key",
		Host:     server.URL,
	})
	require.NoError(t, err)

	text, err := provider.Generate(context.Background(), "hi", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "Hello there.", text)
}
