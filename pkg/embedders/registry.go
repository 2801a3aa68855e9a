// Package embedders provides the embedding providers behind ingestion and
// retrieval. Providers are safe for concurrent use and return vectors of a
// fixed dimension.
package embedders

import (
	"context"

	"github.com/pratap1297/rag-new-sub000/pkg/config"
	"github.com/pratap1297/rag-new-sub000/pkg/ragerror"
	"github.com/pratap1297/rag-new-sub000/pkg/registry"
)

// EmbedderProvider is the contract every embedding backend satisfies.
// EmbedTexts preserves input order; a failed batch fails the whole call.
type EmbedderProvider interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	GetDimension() int
	GetModelName() string
	Close() error
}

type EmbedderRegistry struct {
	*registry.BaseRegistry[EmbedderProvider]
}

func NewEmbedderRegistry() *EmbedderRegistry {
	return &EmbedderRegistry{
		BaseRegistry: registry.NewBaseRegistry[EmbedderProvider](),
	}
}

func (r *EmbedderRegistry) RegisterEmbedder(name string, provider EmbedderProvider) error {
	if name == "" {
		return ragerror.NewConfig("embedders", "register", "embedder name cannot be empty", nil)
	}
	if provider == nil {
		return ragerror.NewConfig("embedders", "register", "embedder provider cannot be nil", nil)
	}
	return r.Register(name, provider)
}

// CreateEmbedderFromConfig builds the configured provider and registers it
// under the given name.
func (r *EmbedderRegistry) CreateEmbedderFromConfig(name string, cfg *config.EmbeddingConfig) (EmbedderProvider, error) {
	if cfg == nil {
		return nil, ragerror.NewConfig("embedders", "create", "embedding config cannot be nil", nil)
	}

	var provider EmbedderProvider
	var err error

	switch cfg.Provider {
	case "ollama":
		provider, err = NewOllamaEmbedderFromConfig(cfg)
	case "openai":
		provider, err = NewOpenAIEmbedderFromConfig(cfg)
	case "cohere":
		provider, err = NewCohereEmbedderFromConfig(cfg)
	default:
		return nil, ragerror.NewConfig("embedders", "create", "unsupported embedder provider", nil).
			WithDetail("provider", cfg.Provider)
	}

	if err != nil {
		return nil, err
	}

	if err := r.RegisterEmbedder(name, provider); err != nil {
		provider.Close()
		return nil, err
	}
	return provider, nil
}

func (r *EmbedderRegistry) GetEmbedder(name string) (EmbedderProvider, error) {
	provider, exists := r.Get(name)
	if !exists {
		return nil, ragerror.NewConfig("embedders", "get", "embedder provider not found", nil).
			WithDetail("name", name)
	}
	return provider, nil
}
