// Package config provides typed, layered configuration: a YAML file with
// ${VAR:-default} expansion, .env files, and RAG_* environment overrides
// applied on top.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the service.
type Config struct {
	Environment string `yaml:"environment"`
	Debug       bool   `yaml:"debug"`

	API        APIConfig        `yaml:"api"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	LLM        LLMConfig        `yaml:"llm"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Ingestion  IngestionConfig  `yaml:"ingestion"`
	VectorDB      VectorDBConfig      `yaml:"vector_db"`
	Monitoring    MonitoringConfig    `yaml:"monitoring"`
	Paths         PathsConfig         `yaml:"paths"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// APIConfig configures the HTTP surface.
type APIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Per-endpoint deadlines, seconds.
	QueryTimeout      int `yaml:"query_timeout"`
	TextIngestTimeout int `yaml:"text_ingest_timeout"`
	FileIngestTimeout int `yaml:"file_ingest_timeout"`

	MaxQueryLength int `yaml:"max_query_length"`
	MaxResults     int `yaml:"max_results"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // ollama, openai, cohere
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key"`
	Host       string `yaml:"host"`
	Dimension  int    `yaml:"dimension"`
	BatchSize  int    `yaml:"batch_size"`
	Timeout    int    `yaml:"timeout"` // seconds
	MaxRetries int    `yaml:"max_retries"`
}

// LLMConfig configures the generation provider.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // openai, anthropic, gemini, ollama
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	Host        string  `yaml:"host"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	Timeout     int     `yaml:"timeout"` // seconds, per-call deadline
	MaxRetries  int     `yaml:"max_retries"`
}

// ChunkingConfig configures the chunker.
type ChunkingConfig struct {
	Strategy            string  `yaml:"strategy"` // size, semantic
	Size                int     `yaml:"size"`     // characters
	Overlap             int     `yaml:"overlap"`  // characters
	MaxSize             int     `yaml:"max_size"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"` // semantic boundary
}

// RetrievalConfig configures the query engine.
type RetrievalConfig struct {
	TopK                int     `yaml:"top_k"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	EnableEnhancement   bool    `yaml:"enable_enhancement"`
	EnableReranking     bool    `yaml:"enable_reranking"`
	Reranker            string  `yaml:"reranker"` // overlap, llm
	RerankTopK          int     `yaml:"rerank_top_k"`
	MaxVariants         int     `yaml:"max_variants"`
	PromptTokenBudget   int     `yaml:"prompt_token_budget"`
}

// IngestionConfig configures the ingestion engine.
type IngestionConfig struct {
	MaxFileSizeMB    int      `yaml:"max_file_size_mb"`
	SupportedFormats []string `yaml:"supported_formats"`
	MaxConcurrent    int      `yaml:"max_concurrent"` // directory ingest worker pool
}

// VectorDBConfig selects and configures the index backend.
type VectorDBConfig struct {
	Backend string `yaml:"backend"` // hnsw, chromem, qdrant

	// HNSW tuning (hnsw backend).
	M        int `yaml:"m"`
	EfSearch int `yaml:"ef_search"`

	// Remote backend (qdrant).
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Collection string `yaml:"collection"`
}

// MonitoringConfig configures the folder and heartbeat monitors.
type MonitoringConfig struct {
	CheckInterval     int      `yaml:"check_interval"`     // folder scan, seconds
	HeartbeatInterval int      `yaml:"heartbeat_interval"` // seconds
	HistorySize       int      `yaml:"history_size"`       // heartbeat ring entries
	Recursive         bool     `yaml:"recursive"`
	WatchFolders      []string `yaml:"watch_folders"`
	EnableFsnotify    bool     `yaml:"enable_fsnotify"`
}

// PathsConfig locates persisted state under a single data root.
type PathsConfig struct {
	DataDir string `yaml:"data_dir"`
}

// ObservabilityConfig configures tracing and metrics export.
type ObservabilityConfig struct {
	TracingEnabled bool    `yaml:"tracing_enabled"`
	TraceStdout    bool    `yaml:"trace_stdout"` // dump spans to stdout, debug aid
	SamplingRate   float64 `yaml:"sampling_rate"`
	MetricsEnabled bool    `yaml:"metrics_enabled"`
}

// LoggingConfig configures slog setup.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // simple, verbose
	File   string `yaml:"file"`   // empty = stderr
}

// Vector store file locations derived from the data root.

func (p PathsConfig) VectorsDir() string       { return filepath.Join(p.DataDir, "vectors") }
func (p PathsConfig) IndexPath() string        { return filepath.Join(p.DataDir, "vectors", "index.hnsw") }
func (p PathsConfig) SidecarPath() string      { return filepath.Join(p.DataDir, "vectors", "sidecar.json") }
func (p PathsConfig) MetadataPath() string     { return filepath.Join(p.DataDir, "metadata", "files.json") }
func (p PathsConfig) ConversationsDB() string  { return filepath.Join(p.DataDir, "conversations.db") }
func (p PathsConfig) AuditLogPath() string     { return filepath.Join(p.DataDir, "logs", "events.json") }

// QueryDeadline returns the query endpoint deadline.
func (a APIConfig) QueryDeadline() time.Duration {
	return time.Duration(a.QueryTimeout) * time.Second
}

// TextIngestDeadline returns the text ingest endpoint deadline.
func (a APIConfig) TextIngestDeadline() time.Duration {
	return time.Duration(a.TextIngestTimeout) * time.Second
}

// FileIngestDeadline returns the file ingest endpoint deadline.
func (a APIConfig) FileIngestDeadline() time.Duration {
	return time.Duration(a.FileIngestTimeout) * time.Second
}

// SetDefaults applies default values for unset fields.
func (c *Config) SetDefaults() {
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.API.Host == "" {
		c.API.Host = "0.0.0.0"
	}
	if c.API.Port == 0 {
		c.API.Port = 8000
	}
	if c.API.QueryTimeout == 0 {
		c.API.QueryTimeout = 30
	}
	if c.API.TextIngestTimeout == 0 {
		c.API.TextIngestTimeout = 120
	}
	if c.API.FileIngestTimeout == 0 {
		c.API.FileIngestTimeout = 300
	}
	if c.API.MaxQueryLength == 0 {
		c.API.MaxQueryLength = 1000
	}
	if c.API.MaxResults == 0 {
		c.API.MaxResults = 10
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "ollama"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "nomic-embed-text"
	}
	if c.Embedding.Host == "" && c.Embedding.Provider == "ollama" {
		c.Embedding.Host = "http://localhost:11434"
	}
	if c.Embedding.Dimension == 0 {
		c.Embedding.Dimension = 768
	}
	if c.Embedding.BatchSize == 0 {
		c.Embedding.BatchSize = 32
	}
	if c.Embedding.Timeout == 0 {
		c.Embedding.Timeout = 30
	}
	if c.Embedding.MaxRetries == 0 {
		c.Embedding.MaxRetries = 3
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 1024
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 30
	}
	if c.LLM.MaxRetries == 0 {
		c.LLM.MaxRetries = 3
	}
	if c.Chunking.Strategy == "" {
		c.Chunking.Strategy = "size"
	}
	if c.Chunking.Size == 0 {
		c.Chunking.Size = 1000
	}
	if c.Chunking.Overlap == 0 {
		c.Chunking.Overlap = 200
	}
	if c.Chunking.MaxSize == 0 {
		c.Chunking.MaxSize = 2000
	}
	if c.Chunking.SimilarityThreshold == 0 {
		c.Chunking.SimilarityThreshold = 0.5
	}
	if c.Retrieval.TopK == 0 {
		c.Retrieval.TopK = 5
	}
	if c.Retrieval.SimilarityThreshold == 0 {
		c.Retrieval.SimilarityThreshold = 0.1
	}
	if c.Retrieval.Reranker == "" {
		c.Retrieval.Reranker = "overlap"
	}
	if c.Retrieval.RerankTopK == 0 {
		c.Retrieval.RerankTopK = 5
	}
	if c.Retrieval.MaxVariants == 0 {
		c.Retrieval.MaxVariants = 3
	}
	if c.Retrieval.PromptTokenBudget == 0 {
		c.Retrieval.PromptTokenBudget = 3000
	}
	if c.Ingestion.MaxFileSizeMB == 0 {
		c.Ingestion.MaxFileSizeMB = 100
	}
	if len(c.Ingestion.SupportedFormats) == 0 {
		c.Ingestion.SupportedFormats = []string{".txt", ".md", ".pdf", ".docx", ".xlsx", ".json", ".csv", ".log"}
	}
	if c.VectorDB.Backend == "" {
		c.VectorDB.Backend = "hnsw"
	}
	if c.VectorDB.M == 0 {
		c.VectorDB.M = 16
	}
	if c.VectorDB.EfSearch == 0 {
		c.VectorDB.EfSearch = 50
	}
	if c.VectorDB.Collection == "" {
		c.VectorDB.Collection = "documents"
	}
	if c.Monitoring.CheckInterval == 0 {
		c.Monitoring.CheckInterval = 30
	}
	if c.Monitoring.HeartbeatInterval == 0 {
		c.Monitoring.HeartbeatInterval = 60
	}
	if c.Monitoring.HistorySize == 0 {
		c.Monitoring.HistorySize = 24
	}
	if c.Paths.DataDir == "" {
		c.Paths.DataDir = "data"
	}
	if c.Observability.SamplingRate == 0 {
		c.Observability.SamplingRate = 1.0
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "simple"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("invalid api port: %d", c.API.Port)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", c.Embedding.Dimension)
	}
	if c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunk overlap (%d) must be less than size (%d)", c.Chunking.Overlap, c.Chunking.Size)
	}
	if c.Retrieval.SimilarityThreshold < -1 || c.Retrieval.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity threshold must be in [-1, 1], got %f", c.Retrieval.SimilarityThreshold)
	}
	switch c.VectorDB.Backend {
	case "hnsw", "chromem", "qdrant":
	default:
		return fmt.Errorf("unsupported vector_db backend: %q", c.VectorDB.Backend)
	}
	switch c.Chunking.Strategy {
	case "size", "semantic":
	default:
		return fmt.Errorf("unsupported chunking strategy: %q", c.Chunking.Strategy)
	}
	return nil
}

// Load reads configuration from a YAML file, expands environment variables,
// applies RAG_* overrides, defaults and validation. A missing file is not an
// error: defaults plus environment overrides apply.
func Load(path string) (*Config, error) {
	if err := LoadEnvFiles(); err != nil {
		return nil, err
	}

	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		} else {
			var raw map[string]interface{}
			if err := yaml.Unmarshal(data, &raw); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
			expanded := ExpandEnvVarsInData(raw)
			out, err := yaml.Marshal(expanded)
			if err != nil {
				return nil, fmt.Errorf("failed to re-encode config: %w", err)
			}
			if err := yaml.Unmarshal(out, cfg); err != nil {
				return nil, fmt.Errorf("failed to decode config: %w", err)
			}
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Redacted returns the non-secret view served by GET /config.
func (c *Config) Redacted() map[string]interface{} {
	return map[string]interface{}{
		"environment": c.Environment,
		"debug":       c.Debug,
		"api": map[string]interface{}{
			"host": c.API.Host,
			"port": c.API.Port,
		},
		"embedding": map[string]interface{}{
			"provider": c.Embedding.Provider,
			"model":    c.Embedding.Model,
		},
		"llm": map[string]interface{}{
			"provider": c.LLM.Provider,
			"model":    c.LLM.Model,
		},
	}
}
