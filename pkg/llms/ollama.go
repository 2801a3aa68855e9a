package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pratap1297/rag-new-sub000/pkg/config"
	"github.com/pratap1297/rag-new-sub000/pkg/ragerror"
)

// OllamaProvider calls a local Ollama server's generate endpoint.
type OllamaProvider struct {
	client  *http.Client
	baseURL string
	model   string
	timeout int
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

func NewOllamaProviderFromConfig(cfg *config.LLMConfig) (*OllamaProvider, error) {
	baseURL := cfg.Host
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	model := cfg.Model
	if model == "" {
		model = "llama3.2"
	}

	return &OllamaProvider{
		client:  &http.Client{},
		baseURL: baseURL,
		model:   model,
		timeout: cfg.Timeout,
	}, nil
}

func (p *OllamaProvider) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	ctx, cancel := callDeadline(ctx, p.timeout)
	defer cancel()

	options := map[string]any{"temperature": temperature}
	if maxTokens > 0 {
		options["num_predict"] = maxTokens
	}

	reqBody, err := json.Marshal(ollamaGenerateRequest{
		Model:   p.model,
		Prompt:  prompt,
		Stream:  false,
		Options: options,
	})
	if err != nil {
		return "", ragerror.NewLLM("llms", "generate", "failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/api/generate", bytes.NewReader(reqBody))
	if err != nil {
		return "", ragerror.NewLLM("llms", "generate", "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", ragerror.NewLLM("llms", "generate", "failed to reach ollama", err).
			WithDetail("provider", "ollama").
			WithDetail("model", p.model)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", ragerror.NewLLM("llms", "generate", "failed to read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", ragerror.NewLLM("llms", "generate",
			fmt.Sprintf("ollama returned status %d", resp.StatusCode), nil).
			WithDetail("provider", "ollama").
			WithDetail("model", p.model).
			WithDetail("body", string(body))
	}

	var response ollamaGenerateResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", ragerror.NewLLM("llms", "generate", "failed to decode response", err)
	}
	if response.Error != "" {
		return "", ragerror.NewLLM("llms", "generate", response.Error, nil).
			WithDetail("provider", "ollama").
			WithDetail("model", p.model)
	}
	return response.Response, nil
}

func (p *OllamaProvider) GetModelName() string { return p.model }

func (p *OllamaProvider) Close() error { return nil }
