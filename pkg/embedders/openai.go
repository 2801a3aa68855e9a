package embedders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/pratap1297/rag-new-sub000/pkg/config"
	"github.com/pratap1297/rag-new-sub000/pkg/ragerror"
)

// OpenAIEmbedder calls the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client     *http.Client
	apiKey     string
	baseURL    string
	model      string
	dimension  int
	batchSize  int
	maxRetries int
}

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

type openAIErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

func NewOpenAIEmbedderFromConfig(cfg *config.EmbeddingConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, ragerror.NewConfig("embedders", "create", "API key is required for openai embedder", nil)
	}

	model := cfg.Model
	if model == "" {
		model = "text-embedding-3-small"
	}

	dimension := cfg.Dimension
	if dimension == 0 {
		switch model {
		case "text-embedding-3-large":
			dimension = 3072
		default:
			dimension = 1536
		}
	}

	baseURL := cfg.Host
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	timeout := 30 * time.Second
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	batchSize := cfg.BatchSize
	if batchSize == 0 {
		batchSize = 100
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}

	return &OpenAIEmbedder{
		client:     &http.Client{Timeout: timeout},
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		model:      model,
		dimension:  dimension,
		batchSize:  batchSize,
		maxRetries: maxRetries,
	}, nil
}

func (e *OpenAIEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *OpenAIEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
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

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody, err := json.Marshal(openAIEmbedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, ragerror.NewEmbedding("embedders", "embed", "failed to marshal request", err)
	}

	var resp *http.Response
	for attempt := 0; attempt < e.maxRetries; attempt++ {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost,
			e.baseURL+"/embeddings", bytes.NewReader(reqBody))
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
		return nil, ragerror.NewEmbedding("embedders", "embed", "failed to reach openai", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ragerror.NewEmbedding("embedders", "embed", "failed to read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errorResp openAIErrorResponse
		if json.Unmarshal(body, &errorResp) == nil && errorResp.Error.Message != "" {
			return nil, ragerror.NewEmbedding("embedders", "embed",
				fmt.Sprintf("openai API error: %s", errorResp.Error.Message), nil).
				WithDetail("type", errorResp.Error.Type).
				WithDetail("code", errorResp.Error.Code)
		}
		return nil, ragerror.NewEmbedding("embedders", "embed",
			fmt.Sprintf("openai returned status %d", resp.StatusCode), nil)
	}

	var response openAIEmbedResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, ragerror.NewEmbedding("embedders", "embed", "failed to decode response", err)
	}
	if len(response.Data) != len(texts) {
		return nil, ragerror.NewEmbedding("embedders", "embed", "embedding count mismatch", nil).
			WithDetail("expected", len(texts)).
			WithDetail("got", len(response.Data))
	}

	// Sort by index so output order always matches input order.
	sort.Slice(response.Data, func(i, j int) bool {
		return response.Data[i].Index < response.Data[j].Index
	})

	vectors := make([][]float32, len(response.Data))
	for i, d := range response.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

func (e *OpenAIEmbedder) GetDimension() int { return e.dimension }

func (e *OpenAIEmbedder) GetModelName() string { return e.model }

func (e *OpenAIEmbedder) Close() error { return nil }
