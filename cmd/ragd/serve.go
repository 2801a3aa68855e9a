package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pratap1297/rag-new-sub000/pkg/app"
	"github.com/pratap1297/rag-new-sub000/pkg/audit"
	"github.com/pratap1297/rag-new-sub000/pkg/component"
	"github.com/pratap1297/rag-new-sub000/pkg/config"
	"github.com/pratap1297/rag-new-sub000/pkg/conversation"
	"github.com/pratap1297/rag-new-sub000/pkg/embedders"
	"github.com/pratap1297/rag-new-sub000/pkg/health"
	"github.com/pratap1297/rag-new-sub000/pkg/ingest"
	"github.com/pratap1297/rag-new-sub000/pkg/llms"
	"github.com/pratap1297/rag-new-sub000/pkg/metastore"
	"github.com/pratap1297/rag-new-sub000/pkg/observability"
	"github.com/pratap1297/rag-new-sub000/pkg/query"
	"github.com/pratap1297/rag-new-sub000/pkg/server"
	"github.com/pratap1297/rag-new-sub000/pkg/vectorstore"
	"github.com/pratap1297/rag-new-sub000/pkg/watcher"
)

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Port int `help:"Port to listen on (overrides config)." default:"0"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	cleanup, err := initLogging(cli, cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer cleanup()

	if c.Port != 0 {
		cfg.API.Port = c.Port
	}

	container, err := app.BuildContainer(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutting down...")
		cancel()
	}()

	store, err := component.Resolve[*vectorstore.Store](container, app.SvcStore)
	if err != nil {
		return err
	}
	meta, err := component.Resolve[*metastore.Store](container, app.SvcMeta)
	if err != nil {
		return err
	}
	ingestEngine, err := component.Resolve[*ingest.Engine](container, app.SvcIngest)
	if err != nil {
		return err
	}
	queries, err := component.Resolve[*query.Engine](container, app.SvcQueries)
	if err != nil {
		return err
	}
	conversations, err := component.Resolve[*conversation.Engine](container, app.SvcConversations)
	if err != nil {
		return err
	}
	monitor, err := component.Resolve[*watcher.Monitor](container, app.SvcWatcher)
	if err != nil {
		return err
	}
	auditLog, err := component.Resolve[*audit.Log](container, app.SvcAudit)
	if err != nil {
		return err
	}
	provider, err := component.Resolve[*observability.Provider](container, app.SvcObservability)
	if err != nil {
		return err
	}
	if err := provider.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Observability shutdown failed", "error", err)
		}
	}()

	heartbeat := buildHeartbeat(cfg, container, store)
	heartbeat.Start()
	defer heartbeat.Stop()

	if len(cfg.Monitoring.WatchFolders) > 0 {
		monitor.Start()
	}
	defer monitor.Close()

	srv := server.New(server.Deps{
		Config:        cfg,
		Store:         store,
		Meta:          meta,
		Ingest:        ingestEngine,
		Queries:       queries,
		Conversations: conversations,
		Monitor:       monitor,
		Heartbeat:     heartbeat,
		Audit:         auditLog,
		Observability: provider,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	fmt.Printf("\nServer ready on http://%s:%d\n", cfg.API.Host, cfg.API.Port)
	fmt.Printf("   Health:  http://%s:%d/health\n", cfg.API.Host, cfg.API.Port)
	if cfg.Observability.MetricsEnabled {
		fmt.Printf("   Metrics: http://%s:%d/metrics\n", cfg.API.Host, cfg.API.Port)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Server shutdown failed", "error", err)
	}

	if err := store.Persist(); err != nil {
		slog.Error("Failed to persist vector store", "error", err)
	}
	return store.Close()
}

// buildHeartbeat wires the periodic health probes.
func buildHeartbeat(cfg *config.Config, container *component.Container, store *vectorstore.Store) *health.Monitor {
	monitor := health.New(
		time.Duration(cfg.Monitoring.HeartbeatInterval)*time.Second,
		cfg.Monitoring.HistorySize)

	monitor.Register("vector_store", func(ctx context.Context) health.ComponentStatus {
		stats := store.GetStats()
		return health.ComponentStatus{
			Status:  health.StatusHealthy,
			Message: fmt.Sprintf("%d active vectors", stats.ActiveVectors),
		}
	})

	monitor.Register("metastore", func(ctx context.Context) health.ComponentStatus {
		meta, err := component.Resolve[*metastore.Store](container, app.SvcMeta)
		if err != nil {
			return health.Unhealthy("metastore unavailable: %v", err)
		}
		return health.ComponentStatus{
			Status:  health.StatusHealthy,
			Message: fmt.Sprintf("%d documents", meta.Count()),
		}
	})

	monitor.Register("embedder", func(ctx context.Context) health.ComponentStatus {
		embedder, err := component.Resolve[embedders.EmbedderProvider](container, app.SvcEmbedder)
		if err != nil {
			return health.Unhealthy("embedder unavailable: %v", err)
		}
		if _, err := embedder.EmbedText(ctx, "ping"); err != nil {
			return health.Degraded("embed probe failed: %v", err)
		}
		return health.Healthy()
	})

	monitor.Register("llm", func(ctx context.Context) health.ComponentStatus {
		llm, err := component.Resolve[llms.LLMProvider](container, app.SvcLLM)
		if err != nil {
			return health.Unhealthy("llm unavailable: %v", err)
		}
		return health.ComponentStatus{Status: health.StatusHealthy, Message: llm.GetModelName()}
	})

	return monitor
}
