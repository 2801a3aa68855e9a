package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderInitializeAndShutdown(t *testing.T) {
	p := NewProvider(Config{TracingEnabled: true, MetricsEnabled: true})
	require.NoError(t, p.Initialize(context.Background()))

	metrics := p.Metrics()
	require.NotNil(t, metrics)
	assert.NotNil(t, metrics.QueryDuration)
	assert.NotNil(t, metrics.HTTPTotal)

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestDisabledProviderIsNoOp(t *testing.T) {
	p := NewProvider(Config{})
	require.NoError(t, p.Initialize(context.Background()))
	require.NotNil(t, p.Metrics())
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestHTTPMiddlewareRecordsStatus(t *testing.T) {
	p := NewProvider(Config{MetricsEnabled: true})
	require.NoError(t, p.Initialize(context.Background()))
	defer p.Shutdown(context.Background())

	router := chi.NewRouter()
	router.Use(HTTPMiddleware(p.Metrics()))
	router.Get("/things/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/things/42", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestMetricsHandlerServesScrape(t *testing.T) {
	p := NewProvider(Config{MetricsEnabled: true})
	require.NoError(t, p.Initialize(context.Background()))
	defer p.Shutdown(context.Background())

	rec := httptest.NewRecorder()
	p.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
