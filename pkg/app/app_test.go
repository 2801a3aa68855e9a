package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pratap1297/rag-new-sub000/pkg/component"
	"github.com/pratap1297/rag-new-sub000/pkg/config"
	"github.com/pratap1297/rag-new-sub000/pkg/enhance"
	"github.com/pratap1297/rag-new-sub000/pkg/processors"
	"github.com/pratap1297/rag-new-sub000/pkg/rerank"
	"github.com/pratap1297/rag-new-sub000/pkg/vectorstore"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.SetDefaults()
	cfg.Paths.DataDir = t.TempDir()
	return cfg
}

func TestBuildContainerResolvesLocalServices(t *testing.T) {
	cfg := testConfig(t)

	c, err := BuildContainer(cfg)
	require.NoError(t, err)

	registry, err := component.Resolve[*processors.Registry](c, SvcProcessors)
	require.NoError(t, err)
	assert.NotNil(t, registry)

	enhancer, err := component.Resolve[*enhance.Enhancer](c, SvcEnhancer)
	require.NoError(t, err)
	assert.NotNil(t, enhancer)

	store, err := component.Resolve[*vectorstore.Store](c, SvcStore)
	require.NoError(t, err)
	assert.Equal(t, cfg.Embedding.Dimension, store.Dimension())

	// Singletons resolve to the same instance.
	again, err := component.Resolve[*vectorstore.Store](c, SvcStore)
	require.NoError(t, err)
	assert.Same(t, store, again)
}

func TestRerankerSelection(t *testing.T) {
	cfg := testConfig(t)
	cfg.Retrieval.Reranker = "overlap"

	c, err := BuildContainer(cfg)
	require.NoError(t, err)

	reranker, err := component.Resolve[rerank.Reranker](c, SvcReranker)
	require.NoError(t, err)
	assert.Equal(t, "overlap", reranker.Name())
}

func TestRemoteProvidersRequireCredentials(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.Provider = "openai"
	cfg.LLM.APIKey = ""

	c, err := BuildContainer(cfg)
	require.NoError(t, err)

	_, err = c.Get(SvcLLM)
	require.Error(t, err)
}
