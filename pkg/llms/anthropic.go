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

// AnthropicProvider calls the Anthropic messages API.
type AnthropicProvider struct {
	client  *http.Client
	apiKey  string
	baseURL string
	model   string
	timeout int
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewAnthropicProviderFromConfig(cfg *config.LLMConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, ragerror.NewConfig("llms", "create", "API key is required for anthropic provider", nil)
	}

	model := cfg.Model
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}
	baseURL := cfg.Host
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}

	return &AnthropicProvider{
		client:  &http.Client{},
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		model:   model,
		timeout: cfg.Timeout,
	}, nil
}

func (p *AnthropicProvider) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	ctx, cancel := callDeadline(ctx, p.timeout)
	defer cancel()

	if maxTokens <= 0 {
		maxTokens = 1024
	}

	reqBody, err := json.Marshal(anthropicRequest{
		Model:       p.model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Messages:    []anthropicMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", ragerror.NewLLM("llms", "generate", "failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/v1/messages", bytes.NewReader(reqBody))
	if err != nil {
		return "", ragerror.NewLLM("llms", "generate", "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", ragerror.NewLLM("llms", "generate", "failed to reach anthropic", err).
			WithDetail("provider", "anthropic").
			WithDetail("model", p.model)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", ragerror.NewLLM("llms", "generate", "failed to read response", err)
	}

	var response anthropicResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", ragerror.NewLLM("llms", "generate", "failed to decode response", err)
	}

	if resp.StatusCode != http.StatusOK {
		message := fmt.Sprintf("anthropic returned status %d", resp.StatusCode)
		if response.Error != nil {
			message = fmt.Sprintf("anthropic API error: %s", response.Error.Message)
		}
		return "", ragerror.NewLLM("llms", "generate", message, nil).
			WithDetail("provider", "anthropic").
			WithDetail("model", p.model)
	}

	for _, block := range response.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", ragerror.NewLLM("llms", "generate", "anthropic returned no text content", nil).
		WithDetail("provider", "anthropic").
		WithDetail("model", p.model)
}

func (p *AnthropicProvider) GetModelName() string { return p.model }

func (p *AnthropicProvider) Close() error { return nil }
