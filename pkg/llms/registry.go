// Package llms provides the generation providers used by the query and
// conversation engines. Every call runs under a per-call deadline.
package llms

import (
	"context"
	"time"

	"github.com/pratap1297/rag-new-sub000/pkg/config"
	"github.com/pratap1297/rag-new-sub000/pkg/ragerror"
	"github.com/pratap1297/rag-new-sub000/pkg/registry"
)

// LLMProvider is the contract every generation backend satisfies.
// Implementations are safe for concurrent calls.
type LLMProvider interface {
	Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)
	GetModelName() string
	Close() error
}

type LLMRegistry struct {
	*registry.BaseRegistry[LLMProvider]
}

func NewLLMRegistry() *LLMRegistry {
	return &LLMRegistry{
		BaseRegistry: registry.NewBaseRegistry[LLMProvider](),
	}
}

func (r *LLMRegistry) RegisterLLM(name string, provider LLMProvider) error {
	if name == "" {
		return ragerror.NewConfig("llms", "register", "llm name cannot be empty", nil)
	}
	if provider == nil {
		return ragerror.NewConfig("llms", "register", "llm provider cannot be nil", nil)
	}
	return r.Register(name, provider)
}

// CreateLLMFromConfig builds the configured provider and registers it under
// the given name.
func (r *LLMRegistry) CreateLLMFromConfig(name string, cfg *config.LLMConfig) (LLMProvider, error) {
	if cfg == nil {
		return nil, ragerror.NewConfig("llms", "create", "llm config cannot be nil", nil)
	}

	var provider LLMProvider
	var err error

	switch cfg.Provider {
	case "openai":
		provider, err = NewOpenAIProviderFromConfig(cfg)
	case "anthropic":
		provider, err = NewAnthropicProviderFromConfig(cfg)
	case "gemini":
		provider, err = NewGeminiProviderFromConfig(cfg)
	case "ollama":
		provider, err = NewOllamaProviderFromConfig(cfg)
	default:
		return nil, ragerror.NewConfig("llms", "create", "unsupported llm provider", nil).
			WithDetail("provider", cfg.Provider)
	}

	if err != nil {
		return nil, err
	}

	if err := r.RegisterLLM(name, provider); err != nil {
		provider.Close()
		return nil, err
	}
	return provider, nil
}

func (r *LLMRegistry) GetLLM(name string) (LLMProvider, error) {
	provider, exists := r.Get(name)
	if !exists {
		return nil, ragerror.NewConfig("llms", "get", "llm provider not found", nil).
			WithDetail("name", name)
	}
	return provider, nil
}

// callDeadline applies the provider's per-call deadline when the caller has
// not set a tighter one.
func callDeadline(ctx context.Context, seconds int) (context.Context, context.CancelFunc) {
	if seconds <= 0 {
		seconds = 30
	}
	return context.WithTimeout(ctx, time.Duration(seconds)*time.Second)
}
