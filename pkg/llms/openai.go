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

// OpenAIProvider calls the OpenAI chat completions API.
type OpenAIProvider struct {
	client  *http.Client
	apiKey  string
	baseURL string
	model   string
	timeout int
}

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func NewOpenAIProviderFromConfig(cfg *config.LLMConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, ragerror.NewConfig("llms", "create", "API key is required for openai provider", nil)
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	baseURL := cfg.Host
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	return &OpenAIProvider{
		client:  &http.Client{},
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		model:   model,
		timeout: cfg.Timeout,
	}, nil
}

func (p *OpenAIProvider) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	ctx, cancel := callDeadline(ctx, p.timeout)
	defer cancel()

	reqBody, err := json.Marshal(openAIChatRequest{
		Model:       p.model,
		Messages:    []openAIMessage{{Role: "user", Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", ragerror.NewLLM("llms", "generate", "failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return "", ragerror.NewLLM("llms", "generate", "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", ragerror.NewLLM("llms", "generate", "failed to reach openai", err).
			WithDetail("provider", "openai").
			WithDetail("model", p.model)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", ragerror.NewLLM("llms", "generate", "failed to read response", err)
	}

	var response openAIChatResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", ragerror.NewLLM("llms", "generate", "failed to decode response", err)
	}

	if resp.StatusCode != http.StatusOK {
		message := fmt.Sprintf("openai returned status %d", resp.StatusCode)
		if response.Error != nil {
			message = fmt.Sprintf("openai API error: %s", response.Error.Message)
		}
		return "", ragerror.NewLLM("llms", "generate", message, nil).
			WithDetail("provider", "openai").
			WithDetail("model", p.model)
	}
	if len(response.Choices) == 0 {
		return "", ragerror.NewLLM("llms", "generate", "openai returned no choices", nil).
			WithDetail("provider", "openai").
			WithDetail("model", p.model)
	}
	return response.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) GetModelName() string { return p.model }

func (p *OpenAIProvider) Close() error { return nil }
