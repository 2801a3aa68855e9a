package embedders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/pratap1297/rag-new-sub000/pkg/config"
	"github.com/pratap1297/rag-new-sub000/pkg/ragerror"
)

// Global mutex to serialize Ollama embedding requests.
// Ollama's llama runner crashes when receiving concurrent embedding requests.
var ollamaEmbedMu sync.Mutex

// OllamaEmbedder talks to a local Ollama server.
type OllamaEmbedder struct {
	client     *http.Client
	baseURL    string
	model      string
	dimension  int
	maxRetries int
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func NewOllamaEmbedderFromConfig(cfg *config.EmbeddingConfig) (*OllamaEmbedder, error) {
	baseURL := cfg.Host
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	model := cfg.Model
	if model == "" {
		model = "nomic-embed-text"
	}
	dimension := cfg.Dimension
	if dimension == 0 {
		dimension = 768
	}
	timeout := 30 * time.Second
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}

	return &OllamaEmbedder{
		client:     &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		model:      model,
		dimension:  dimension,
		maxRetries: maxRetries,
	}, nil
}

func (e *OllamaEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	// Serialize all Ollama embedding requests; the llama runner aborts on
	// concurrent embedding calls.
	ollamaEmbedMu.Lock()
	defer ollamaEmbedMu.Unlock()

	slog.Debug("Ollama embedding request", "model", e.model, "text_length", len(text))

	reqBody, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, ragerror.NewEmbedding("embedders", "embed", "failed to marshal request", err)
	}

	var resp *http.Response
	for attempt := 0; attempt < e.maxRetries; attempt++ {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost,
			e.baseURL+"/api/embeddings", bytes.NewReader(reqBody))
		if reqErr != nil {
			return nil, ragerror.NewEmbedding("embedders", "embed", "failed to create request", reqErr)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err = e.client.Do(req)
		if err == nil {
			break
		}

		slog.Debug("Ollama embedding retry", "attempt", attempt+1, "error", err)
		if attempt < e.maxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt+1) * time.Second):
			}
		}
	}
	if err != nil {
		return nil, ragerror.NewEmbedding("embedders", "embed", "failed to reach ollama", err).
			WithDetail("model", e.model)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, ragerror.NewEmbedding("embedders", "embed",
			fmt.Sprintf("ollama returned status %d", resp.StatusCode), nil).
			WithDetail("body", string(body))
	}

	var response ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, ragerror.NewEmbedding("embedders", "embed", "failed to decode response", err)
	}
	if len(response.Embedding) == 0 {
		return nil, ragerror.NewEmbedding("embedders", "embed", "received empty embedding from ollama", nil)
	}
	return response.Embedding, nil
}

// EmbedTexts embeds sequentially; the Ollama embeddings endpoint takes one
// prompt per call.
func (e *OllamaEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.EmbedText(ctx, text)
		if err != nil {
			return nil, ragerror.NewEmbedding("embedders", "embed_batch", "batch embedding failed", err).
				WithDetail("failed_index", i)
		}
		results[i] = vec
	}
	return results, nil
}

func (e *OllamaEmbedder) GetDimension() int { return e.dimension }

func (e *OllamaEmbedder) GetModelName() string { return e.model }

func (e *OllamaEmbedder) Close() error { return nil }
