// Package telemetry exposes registry metrics through OpenTelemetry with a
// Prometheus exporter.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "github.com/agentregistry-dev/mcpindex"

// Metrics holds the registry instruments. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry
	provider *sdkmetric.MeterProvider

	searchRequests     metric.Int64Counter
	searchDuration     metric.Float64Histogram
	cacheRequests      metric.Int64Counter
	cacheErrors        metric.Int64Counter
	mutations          metric.Int64Counter
	projectionFailures metric.Int64Counter
	httpRequests       metric.Int64Counter
}

// NewMetrics builds a meter provider exporting into a private Prometheus
// registry, together with Go runtime and process collectors.
func NewMetrics() (*Metrics, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	if err := runtime.Start(runtime.WithMeterProvider(provider)); err != nil {
		return nil, fmt.Errorf("failed to start runtime instrumentation: %w", err)
	}

	m := &Metrics{registry: reg, provider: provider}
	meter := provider.Meter(meterName)

	if m.searchRequests, err = meter.Int64Counter("registry.search.requests",
		metric.WithDescription("Search and discovery requests by kind and outcome")); err != nil {
		return nil, err
	}
	if m.searchDuration, err = meter.Float64Histogram("registry.search.duration",
		metric.WithDescription("Search latency"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.cacheRequests, err = meter.Int64Counter("registry.cache.requests",
		metric.WithDescription("Cache lookups by namespace and result")); err != nil {
		return nil, err
	}
	if m.cacheErrors, err = meter.Int64Counter("registry.cache.errors",
		metric.WithDescription("Swallowed cache failures")); err != nil {
		return nil, err
	}
	if m.mutations, err = meter.Int64Counter("registry.mutations",
		metric.WithDescription("Record mutations by operation and outcome")); err != nil {
		return nil, err
	}
	if m.projectionFailures, err = meter.Int64Counter("registry.projection.failures",
		metric.WithDescription("Persisted mutations whose search projection failed")); err != nil {
		return nil, err
	}
	if m.httpRequests, err = meter.Int64Counter("registry.http.requests",
		metric.WithDescription("HTTP requests by operation and status")); err != nil {
		return nil, err
	}
	return m, nil
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

func (m *Metrics) CacheHit(ctx context.Context, namespace string) {
	if m == nil {
		return
	}
	m.cacheRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("namespace", namespace), attribute.String("result", "hit")))
}

func (m *Metrics) CacheMiss(ctx context.Context, namespace string) {
	if m == nil {
		return
	}
	m.cacheRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("namespace", namespace), attribute.String("result", "miss")))
}

func (m *Metrics) CacheError(ctx context.Context, namespace, op string) {
	if m == nil {
		return
	}
	m.cacheErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("namespace", namespace), attribute.String("op", op)))
}

// MutationCompleted counts a write by operation and outcome category.
func (m *Metrics) MutationCompleted(ctx context.Context, op, outcome string) {
	if m == nil {
		return
	}
	m.mutations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op), attribute.String("outcome", outcome)))
}

// ProjectionFailed counts a write that persisted but was not indexed.
func (m *Metrics) ProjectionFailed(ctx context.Context, op string) {
	if m == nil {
		return
	}
	m.projectionFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
}

// SearchCompleted records one read against the search backend.
func (m *Metrics) SearchCompleted(ctx context.Context, kind, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("kind", kind), attribute.String("outcome", outcome))
	m.searchRequests.Add(ctx, 1, attrs)
	m.searchDuration.Record(ctx, took.Seconds(), attrs)
}

// HTTPRequest counts one served API request.
func (m *Metrics) HTTPRequest(ctx context.Context, operation string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation), attribute.Int("status", status)))
}
