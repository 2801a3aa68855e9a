package embedders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pratap1297/rag-new-sub000/pkg/config"
	"github.com/pratap1297/rag-new-sub000/pkg/ragerror"
)

// CohereEmbedder calls the Cohere embed API.
type CohereEmbedder struct {
	client     *http.Client
	apiKey     string
	baseURL    string
	model      string
	dimension  int
	batchSize  int
	maxRetries int
}

type cohereEmbedRequest struct {
	Model     string   `json:"model"`
	Texts     []string `json:"texts"`
	InputType string   `json:"input_type"`
}

type cohereEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Message    string      `json:"message,omitempty"`
}

func NewCohereEmbedderFromConfig(cfg *config.EmbeddingConfig) (*CohereEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, ragerror.NewConfig("embedders", "create", "API key is required for cohere embedder", nil)
	}

	model := cfg.Model
	if model == "" {
		model = "embed-english-v3.0"
	}
	dimension := cfg.Dimension
	if dimension == 0 {
		dimension = 1024
	}
	baseURL := cfg.Host
	if baseURL == "" {
		baseURL = "https://api.cohere.ai/v1"
	}
	timeout := 30 * time.Second
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	batchSize := cfg.BatchSize
	if batchSize == 0 {
		batchSize = 96 // cohere's documented per-call limit
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}

	return &CohereEmbedder{
		client:     &http.Client{Timeout: timeout},
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		model:      model,
		dimension:  dimension,
		batchSize:  batchSize,
		maxRetries: maxRetries,
	}, nil
}

func (e *CohereEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *CohereEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, ragerror.NewEmbedding("embedders", "embed_batch", "batch embedding failed", err).
				WithDetail("batch_start", start)
		}
		results = append(results, vectors...)
	}
	return results, nil
}

func (e *CohereEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody, err := json.Marshal(cohereEmbedRequest{
		Model:     e.model,
		Texts:     texts,
		InputType: "search_document",
	})
	if err != nil {
		return nil, ragerror.NewEmbedding("embedders", "embed", "failed to marshal request", err)
	}

	var resp *http.Response
	for attempt := 0; attempt < e.maxRetries; attempt++ {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost,
			e.baseURL+"/embed", bytes.NewReader(reqBody))
		if reqErr != nil {
			return nil, ragerror.NewEmbedding("embedders", "embed", "failed to create request", reqErr)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+e.apiKey)

		resp, err = e.client.Do(req)
		if err == nil && resp.StatusCode == http.StatusOK {
			break
		}
		if resp != nil && resp.StatusCode != http.StatusOK {
			if attempt == e.maxRetries-1 {
				break
			}
			resp.Body.Close()
		}
		if attempt < e.maxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt+1) * time.Second):
			}
		}
	}
	if err != nil {
		return nil, ragerror.NewEmbedding("embedders", "embed", "failed to reach cohere", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ragerror.NewEmbedding("embedders", "embed", "failed to read response", err)
	}

	var response cohereEmbedResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, ragerror.NewEmbedding("embedders", "embed", "failed to decode response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, ragerror.NewEmbedding("embedders", "embed",
			fmt.Sprintf("cohere returned status %d: %s", resp.StatusCode, response.Message), nil)
	}
	if len(response.Embeddings) != len(texts) {
		return nil, ragerror.NewEmbedding("embedders", "embed", "embedding count mismatch", nil).
			WithDetail("expected", len(texts)).
			WithDetail("got", len(response.Embeddings))
	}
	return response.Embeddings, nil
}

func (e *CohereEmbedder) GetDimension() int { return e.dimension }

func (e *CohereEmbedder) GetModelName() string { return e.model }

func (e *CohereEmbedder) Close() error { return nil }
