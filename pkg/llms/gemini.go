package llms

import (
	"context"

	"google.golang.org/genai"

	"github.com/pratap1297/rag-new-sub000/pkg/config"
	"github.com/pratap1297/rag-new-sub000/pkg/ragerror"
)

// GeminiProvider calls Google Gemini via the official genai SDK.
type GeminiProvider struct {
	client  *genai.Client
	model   string
	timeout int
}

func NewGeminiProviderFromConfig(cfg *config.LLMConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, ragerror.NewConfig("llms", "create", "API key is required for gemini provider", nil)
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, ragerror.NewLLM("llms", "create", "failed to create gemini client", err).
			WithDetail("provider", "gemini")
	}

	return &GeminiProvider{
		client:  client,
		model:   model,
		timeout: cfg.Timeout,
	}, nil
}

func (p *GeminiProvider) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	ctx, cancel := callDeadline(ctx, p.timeout)
	defer cancel()

	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: prompt}},
	}}

	generateConfig := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(temperature)),
	}
	if maxTokens > 0 {
		generateConfig.MaxOutputTokens = int32(maxTokens)
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, generateConfig)
	if err != nil {
		return "", ragerror.NewLLM("llms", "generate", "gemini generation failed", err).
			WithDetail("provider", "gemini").
			WithDetail("model", p.model)
	}

	text := resp.Text()
	if text == "" {
		return "", ragerror.NewLLM("llms", "generate", "gemini returned no text content", nil).
			WithDetail("provider", "gemini").
			WithDetail("model", p.model)
	}
	return text, nil
}

func (p *GeminiProvider) GetModelName() string { return p.model }

func (p *GeminiProvider) Close() error { return nil }
