// Package observability wires OpenTelemetry tracing and Prometheus
// metrics for the service.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config controls which signals are enabled.
type Config struct {
	TracingEnabled bool    `yaml:"tracing_enabled"`
	TraceStdout    bool    `yaml:"trace_stdout"` // dump spans to stderr, debug only
	SamplingRate   float64 `yaml:"sampling_rate"`
	MetricsEnabled bool    `yaml:"metrics_enabled"`
}

// Metrics holds the service instruments. A zero Metrics is a usable
// no-op: nil instruments simply don't record.
type Metrics struct {
	QueryDuration  metric.Float64Histogram
	QueryTotal     metric.Int64Counter
	IngestDuration metric.Float64Histogram
	IngestTotal    metric.Int64Counter
	LLMCallsTotal  metric.Int64Counter
	HTTPDuration   metric.Float64Histogram
	HTTPTotal      metric.Int64Counter
}

// Provider owns the tracer and meter providers for the process.
type Provider struct {
	cfg            Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	metrics        *Metrics
	mu             sync.Mutex
}

// NewProvider builds (but does not install) a provider.
func NewProvider(cfg Config) *Provider {
	return &Provider{cfg: cfg, metrics: &Metrics{}}
}

// Initialize installs the global tracer and meter providers.
func (p *Provider) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cfg.TracingEnabled {
		opts := []sdktrace.TracerProviderOption{}
		if p.cfg.TraceStdout {
			exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
			if err != nil {
				return fmt.Errorf("create stdout trace exporter: %w", err)
			}
			opts = append(opts, sdktrace.WithBatcher(exporter))
		}
		rate := p.cfg.SamplingRate
		if rate <= 0 || rate > 1 {
			rate = 1.0
		}
		opts = append(opts, sdktrace.WithSampler(
			sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))))

		p.tracerProvider = sdktrace.NewTracerProvider(opts...)
		otel.SetTracerProvider(p.tracerProvider)
	}

	if p.cfg.MetricsEnabled {
		exporter, err := otelprom.New()
		if err != nil {
			return fmt.Errorf("create prometheus exporter: %w", err)
		}
		p.meterProvider = sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
		otel.SetMeterProvider(p.meterProvider)

		metrics, err := newMetrics(p.meterProvider.Meter("rag"))
		if err != nil {
			return err
		}
		p.metrics = metrics
	}
	return nil
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.QueryDuration, err = meter.Float64Histogram("rag_query_duration_seconds",
		metric.WithDescription("Query processing duration in seconds")); err != nil {
		return nil, fmt.Errorf("create query duration histogram: %w", err)
	}
	if m.QueryTotal, err = meter.Int64Counter("rag_queries_total",
		metric.WithDescription("Total queries processed")); err != nil {
		return nil, fmt.Errorf("create query counter: %w", err)
	}
	if m.IngestDuration, err = meter.Float64Histogram("rag_ingest_duration_seconds",
		metric.WithDescription("Document ingestion duration in seconds")); err != nil {
		return nil, fmt.Errorf("create ingest duration histogram: %w", err)
	}
	if m.IngestTotal, err = meter.Int64Counter("rag_ingests_total",
		metric.WithDescription("Total documents ingested")); err != nil {
		return nil, fmt.Errorf("create ingest counter: %w", err)
	}
	if m.LLMCallsTotal, err = meter.Int64Counter("rag_llm_calls_total",
		metric.WithDescription("Total LLM generate calls")); err != nil {
		return nil, fmt.Errorf("create llm counter: %w", err)
	}
	if m.HTTPDuration, err = meter.Float64Histogram("rag_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds")); err != nil {
		return nil, fmt.Errorf("create http duration histogram: %w", err)
	}
	if m.HTTPTotal, err = meter.Int64Counter("rag_http_requests_total",
		metric.WithDescription("Total HTTP requests")); err != nil {
		return nil, fmt.Errorf("create http counter: %w", err)
	}
	return m, nil
}

// Metrics returns the service instruments.
func (p *Provider) Metrics() *Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metrics
}

// Tracer returns a named tracer from the installed provider.
func (p *Provider) Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// MetricsHandler serves the Prometheus scrape endpoint.
func (p *Provider) MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// Shutdown flushes exporters.
func (p *Provider) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			return err
		}
	}
	if p.meterProvider != nil {
		return p.meterProvider.Shutdown(ctx)
	}
	return nil
}
