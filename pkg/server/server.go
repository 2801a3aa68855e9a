// Package server exposes the service over HTTP: ingest, query,
// conversation, monitoring and admin endpoints on a chi router.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pratap1297/rag-new-sub000/pkg/audit"
	"github.com/pratap1297/rag-new-sub000/pkg/config"
	"github.com/pratap1297/rag-new-sub000/pkg/conversation"
	"github.com/pratap1297/rag-new-sub000/pkg/health"
	"github.com/pratap1297/rag-new-sub000/pkg/ingest"
	"github.com/pratap1297/rag-new-sub000/pkg/metastore"
	"github.com/pratap1297/rag-new-sub000/pkg/observability"
	"github.com/pratap1297/rag-new-sub000/pkg/query"
	"github.com/pratap1297/rag-new-sub000/pkg/vectorstore"
	"github.com/pratap1297/rag-new-sub000/pkg/watcher"
)

// Deps bundles everything the HTTP surface serves. Monitor, heartbeat,
// audit and observability may be nil; their endpoints then report
// unavailability.
type Deps struct {
	Config        *config.Config
	Store         *vectorstore.Store
	Meta          *metastore.Store
	Ingest        *ingest.Engine
	Queries       *query.Engine
	Conversations *conversation.Engine
	Monitor       *watcher.Monitor
	Heartbeat     *health.Monitor
	Audit         *audit.Log
	Observability *observability.Provider
}

// Server is the HTTP front of the service.
type Server struct {
	deps       Deps
	httpServer *http.Server
}

// New builds the server and its routes.
func New(deps Deps) *Server {
	s := &Server{deps: deps}
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", deps.Config.API.Host, deps.Config.API.Port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	slog.Info("HTTP server starting", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	if s.deps.Observability != nil {
		r.Use(observability.HTTPMiddleware(s.deps.Observability.Metrics()))
	}
	if s.deps.Config.Debug {
		r.Use(corsMiddleware)
	}

	r.Get("/health", s.handleHealth)
	r.Get("/health/detailed", s.handleHealthDetailed)
	r.Get("/stats", s.handleStats)
	r.Get("/config", s.handleConfig)

	r.Get("/documents", s.handleListDocuments)
	r.Delete("/documents/{docPath}", s.handleDeleteDocument)
	r.Delete("/documents/*", s.handleDeleteDocument)

	r.Post("/query", s.handleQuery)
	r.Post("/ingest", s.handleIngestText)
	r.Post("/upload", s.handleUpload)
	r.Post("/clear", s.handleClear)

	r.Route("/heartbeat", func(r chi.Router) {
		r.Get("/", s.handleHeartbeatStatus)
		r.Get("/status", s.handleHeartbeatStatus)
		r.Post("/start", s.handleHeartbeatStart)
		r.Post("/stop", s.handleHeartbeatStop)
		r.Get("/logs", s.handleHeartbeatLogs)
	})

	r.Route("/folder-monitor", func(r chi.Router) {
		r.Get("/status", s.handleMonitorStatus)
		r.Post("/add", s.handleMonitorAdd)
		r.Post("/remove", s.handleMonitorRemove)
		r.Get("/folders", s.handleMonitorFolders)
		r.Get("/files", s.handleMonitorFiles)
		r.Post("/start", s.handleMonitorStart)
		r.Post("/stop", s.handleMonitorStop)
		r.Post("/scan", s.handleMonitorScan)
	})

	r.Route("/api/conversation", func(r chi.Router) {
		r.Post("/start", s.handleConversationStart)
		r.Post("/message", s.handleConversationMessage)
		r.Get("/history/{threadID}", s.handleConversationHistory)
		r.Post("/end/{threadID}", s.handleConversationEnd)
	})

	if s.deps.Observability != nil {
		r.Get("/metrics", s.deps.Observability.MetricsHandler().ServeHTTP)
	}

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).Round(time.Millisecond))
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// record writes an audit event, tolerating a missing log.
func (s *Server) record(action string, details map[string]any) {
	if s.deps.Audit == nil {
		return
	}
	if err := s.deps.Audit.Record(action, details); err != nil {
		slog.Warn("Failed to write audit event", "action", action, "error", err)
	}
}
