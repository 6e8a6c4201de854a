// Package observability provides OpenTelemetry instrumentation for tracing and metrics.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics installs a global MeterProvider backed by a Prometheus exporter on a
// dedicated registry. It returns the /metrics handler and a shutdown function.
func InitMetrics() (http.Handler, func(context.Context) error, error) {
	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)

	otel.SetMeterProvider(provider)

	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), provider.Shutdown, nil
}

// WatcherMetrics counts what job viewers send and drop. A nil *WatcherMetrics
// records nothing.
type WatcherMetrics struct {
	requests metric.Int64Counter
	failures metric.Int64Counter
	dropped  metric.Int64Counter
}

// NewWatcherMetrics creates the viewer instruments on meter.
func NewWatcherMetrics(meter metric.Meter) (*WatcherMetrics, error) {
	requests, err := meter.Int64Counter("jobwatch.watcher.requests",
		metric.WithDescription("Requests published by job viewers"))
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter("jobwatch.watcher.publish_failures",
		metric.WithDescription("Requests job viewers failed to publish"))
	if err != nil {
		return nil, err
	}
	dropped, err := meter.Int64Counter("jobwatch.watcher.dropped",
		metric.WithDescription("Incoming messages ignored as stale or invalid"))
	if err != nil {
		return nil, err
	}
	return &WatcherMetrics{requests: requests, failures: failures, dropped: dropped}, nil
}

func (m *WatcherMetrics) RequestPublished(ctx context.Context, topic string) {
	if m == nil {
		return
	}
	m.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (m *WatcherMetrics) PublishFailed(ctx context.Context, topic string) {
	if m == nil {
		return
	}
	m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (m *WatcherMetrics) MessageDropped(ctx context.Context, topic, reason string) {
	if m == nil {
		return
	}
	m.dropped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("topic", topic),
		attribute.String("reason", reason),
	))
}

// Outcomes of a responder request.
const (
	OutcomeOK          = "ok"
	OutcomeNotFound    = "not_found"
	OutcomeLogsDeleted = "logs_deleted"
	OutcomeRateLimited = "rate_limited"
	OutcomeError       = "error"
)

// ResponderMetrics counts and times the requests the responder answers. A nil
// *ResponderMetrics records nothing.
type ResponderMetrics struct {
	handled  metric.Int64Counter
	duration metric.Float64Histogram
}

// NewResponderMetrics creates the responder instruments on meter.
func NewResponderMetrics(meter metric.Meter) (*ResponderMetrics, error) {
	handled, err := meter.Int64Counter("jobwatch.responder.requests",
		metric.WithDescription("Bus requests handled by the responder"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("jobwatch.responder.duration",
		metric.WithDescription("Time spent answering a bus request"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &ResponderMetrics{handled: handled, duration: duration}, nil
}

// Handled records one answered request.
func (m *ResponderMetrics) Handled(ctx context.Context, topic, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("topic", topic),
		attribute.String("outcome", outcome),
	)
	m.handled.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}
