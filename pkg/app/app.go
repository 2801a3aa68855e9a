// Package app wires the service components into the lazy container.
// Nothing is constructed until resolved, so one-shot commands only pay
// for what they use.
package app

import (
	"github.com/pratap1297/rag-new-sub000/pkg/audit"
	"github.com/pratap1297/rag-new-sub000/pkg/chunking"
	"github.com/pratap1297/rag-new-sub000/pkg/component"
	"github.com/pratap1297/rag-new-sub000/pkg/config"
	"github.com/pratap1297/rag-new-sub000/pkg/conversation"
	"github.com/pratap1297/rag-new-sub000/pkg/embedders"
	"github.com/pratap1297/rag-new-sub000/pkg/enhance"
	"github.com/pratap1297/rag-new-sub000/pkg/ingest"
	"github.com/pratap1297/rag-new-sub000/pkg/llms"
	"github.com/pratap1297/rag-new-sub000/pkg/metastore"
	"github.com/pratap1297/rag-new-sub000/pkg/observability"
	"github.com/pratap1297/rag-new-sub000/pkg/processors"
	"github.com/pratap1297/rag-new-sub000/pkg/query"
	"github.com/pratap1297/rag-new-sub000/pkg/rerank"
	"github.com/pratap1297/rag-new-sub000/pkg/vectorstore"
	"github.com/pratap1297/rag-new-sub000/pkg/watcher"
)

// Service names used in the container.
const (
	SvcConfig        = "config"
	SvcStore         = "vector_store"
	SvcMeta          = "metastore"
	SvcEmbedder      = "embedder"
	SvcLLM           = "llm"
	SvcChunker       = "chunker"
	SvcProcessors    = "processors"
	SvcIngest        = "ingest_engine"
	SvcEnhancer      = "enhancer"
	SvcReranker      = "reranker"
	SvcQueries       = "query_engine"
	SvcCheckpoints   = "checkpoints"
	SvcConversations = "conversation_engine"
	SvcWatcher       = "folder_monitor"
	SvcAudit         = "audit_log"
	SvcObservability = "observability"
)

// BuildContainer registers every service factory as a singleton.
func BuildContainer(cfg *config.Config) (*component.Container, error) {
	c := component.New()

	regs := []struct {
		name    string
		factory component.Factory
	}{
		{SvcConfig, func(*component.Container) (any, error) {
			return cfg, nil
		}},
		{SvcStore, func(*component.Container) (any, error) {
			return vectorstore.NewFromConfig(cfg)
		}},
		{SvcMeta, func(*component.Container) (any, error) {
			return metastore.New(cfg.Paths.MetadataPath())
		}},
		{SvcEmbedder, func(*component.Container) (any, error) {
			registry := embedders.NewEmbedderRegistry()
			return registry.CreateEmbedderFromConfig("default", &cfg.Embedding)
		}},
		{SvcLLM, func(*component.Container) (any, error) {
			registry := llms.NewLLMRegistry()
			return registry.CreateLLMFromConfig("default", &cfg.LLM)
		}},
		{SvcChunker, func(c *component.Container) (any, error) {
			embedder, err := component.Resolve[embedders.EmbedderProvider](c, SvcEmbedder)
			if err != nil {
				return nil, err
			}
			return chunking.NewChunkerFromConfig(&cfg.Chunking, embedder)
		}},
		{SvcProcessors, func(*component.Container) (any, error) {
			return processors.NewRegistry(), nil
		}},
		{SvcIngest, func(c *component.Container) (any, error) {
			store, err := component.Resolve[*vectorstore.Store](c, SvcStore)
			if err != nil {
				return nil, err
			}
			meta, err := component.Resolve[*metastore.Store](c, SvcMeta)
			if err != nil {
				return nil, err
			}
			embedder, err := component.Resolve[embedders.EmbedderProvider](c, SvcEmbedder)
			if err != nil {
				return nil, err
			}
			chunker, err := component.Resolve[chunking.Chunker](c, SvcChunker)
			if err != nil {
				return nil, err
			}
			registry, err := component.Resolve[*processors.Registry](c, SvcProcessors)
			if err != nil {
				return nil, err
			}
			return ingest.New(store, meta, embedder, chunker, registry, &cfg.Ingestion), nil
		}},
		{SvcEnhancer, func(*component.Container) (any, error) {
			return enhance.New(cfg.Retrieval.MaxVariants), nil
		}},
		{SvcReranker, func(c *component.Container) (any, error) {
			switch cfg.Retrieval.Reranker {
			case "llm":
				llm, err := component.Resolve[llms.LLMProvider](c, SvcLLM)
				if err != nil {
					return nil, err
				}
				return rerank.NewLLMReranker(llm, 0), nil
			case "overlap":
				return rerank.NewOverlapReranker(), nil
			default:
				return rerank.NewNoOpReranker(), nil
			}
		}},
		{SvcQueries, func(c *component.Container) (any, error) {
			store, err := component.Resolve[*vectorstore.Store](c, SvcStore)
			if err != nil {
				return nil, err
			}
			embedder, err := component.Resolve[embedders.EmbedderProvider](c, SvcEmbedder)
			if err != nil {
				return nil, err
			}
			llm, err := component.Resolve[llms.LLMProvider](c, SvcLLM)
			if err != nil {
				return nil, err
			}
			enhancer, err := component.Resolve[*enhance.Enhancer](c, SvcEnhancer)
			if err != nil {
				return nil, err
			}
			reranker, err := component.Resolve[rerank.Reranker](c, SvcReranker)
			if err != nil {
				return nil, err
			}
			return query.New(store, embedder, llm, enhancer, reranker, &cfg.Retrieval), nil
		}},
		{SvcCheckpoints, func(*component.Container) (any, error) {
			return conversation.NewSQLiteCheckpointStore(cfg.Paths.ConversationsDB())
		}},
		{SvcConversations, func(c *component.Container) (any, error) {
			queries, err := component.Resolve[*query.Engine](c, SvcQueries)
			if err != nil {
				return nil, err
			}
			checkpoints, err := component.Resolve[conversation.CheckpointStore](c, SvcCheckpoints)
			if err != nil {
				return nil, err
			}
			return conversation.New(queries, checkpoints), nil
		}},
		{SvcWatcher, func(c *component.Container) (any, error) {
			ingestEngine, err := component.Resolve[*ingest.Engine](c, SvcIngest)
			if err != nil {
				return nil, err
			}
			return watcher.New(ingestEngine, &cfg.Monitoring, cfg.Ingestion.SupportedFormats), nil
		}},
		{SvcAudit, func(*component.Container) (any, error) {
			return audit.Open(cfg.Paths.AuditLogPath())
		}},
		{SvcObservability, func(*component.Container) (any, error) {
			return observability.NewProvider(observability.Config{
				TracingEnabled: cfg.Observability.TracingEnabled,
				TraceStdout:    cfg.Observability.TraceStdout,
				SamplingRate:   cfg.Observability.SamplingRate,
				MetricsEnabled: cfg.Observability.MetricsEnabled,
			}), nil
		}},
	}

	for _, r := range regs {
		if err := c.Register(r.name, r.factory, true); err != nil {
			return nil, err
		}
	}
	return c, nil
}
