package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
)

func scrape(t *testing.T, handler http.Handler) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}
	return rr.Body.String()
}

func initMetrics(t *testing.T) http.Handler {
	t.Helper()
	handler, shutdown, err := InitMetrics()
	if err != nil {
		t.Fatalf("InitMetrics failed: %v", err)
	}
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		_ = shutdown(shutdownCtx)
	})
	if handler == nil {
		t.Fatal("expected handler to be non-nil")
	}
	return handler
}

func TestInitMetrics(t *testing.T) {
	handler := initMetrics(t)

	// Smoke test: the exporter always reports target info
	if body := scrape(t, handler); body == "" {
		t.Error("handler returned empty body")
	}
}

func TestInitMetrics_CustomMetricAppearsInOutput(t *testing.T) {
	handler := initMetrics(t)

	counter, err := otel.Meter("test-meter").Int64Counter("test_custom_counter")
	if err != nil {
		t.Fatalf("failed to create counter: %v", err)
	}
	counter.Add(context.Background(), 42)

	body := scrape(t, handler)
	if !strings.Contains(body, "test_custom_counter") {
		t.Errorf("expected custom metric 'test_custom_counter' in output, got:\n%s", body)
	}
	if !strings.Contains(body, "42") {
		t.Errorf("expected value '42' in output, got:\n%s", body)
	}
}

func TestWatcherMetrics(t *testing.T) {
	handler := initMetrics(t)
	ctx := context.Background()

	m, err := NewWatcherMetrics(otel.Meter("watcher-test"))
	if err != nil {
		t.Fatalf("NewWatcherMetrics failed: %v", err)
	}
	m.RequestPublished(ctx, "request-job-status")
	m.PublishFailed(ctx, "request-job-update")
	m.MessageDropped(ctx, "job-status", "older than held state")

	body := scrape(t, handler)
	for _, want := range []string{"jobwatch_watcher_requests", "jobwatch_watcher_publish_failures", "jobwatch_watcher_dropped", `reason="older than held state"`} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in output, got:\n%s", want, body)
		}
	}
}

func TestResponderMetrics(t *testing.T) {
	handler := initMetrics(t)

	m, err := NewResponderMetrics(otel.Meter("responder-test"))
	if err != nil {
		t.Fatalf("NewResponderMetrics failed: %v", err)
	}
	m.Handled(context.Background(), "request-job-status", OutcomeNotFound, 3*time.Millisecond)

	body := scrape(t, handler)
	for _, want := range []string{"jobwatch_responder_requests", "jobwatch_responder_duration", `outcome="not_found"`} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in output, got:\n%s", want, body)
		}
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var w *WatcherMetrics
	w.RequestPublished(context.Background(), "t")
	w.PublishFailed(context.Background(), "t")
	w.MessageDropped(context.Background(), "t", "r")

	var r *ResponderMetrics
	r.Handled(context.Background(), "t", OutcomeOK, time.Second)
}
