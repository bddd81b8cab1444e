package metrics

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/plant-doctor/internal/core/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPipelineMetricsCountsSuccessfulLabelsOnly(t *testing.T) {
	m := NewPipelineMetrics("test", prometheus.NewRegistry())

	m.ObserveDiagnosis("success", "Tomato___healthy", 0.93, 20*time.Millisecond)
	m.ObserveDiagnosis("error", "", 0, time.Millisecond)

	if got := testutil.ToFloat64(m.labelTotal.WithLabelValues("test", "Tomato___healthy")); got != 1 {
		t.Fatalf("expected one labelled diagnosis, got %v", got)
	}
	if got := testutil.ToFloat64(m.diagnosisTotal.WithLabelValues("test", "error")); got != 1 {
		t.Fatalf("expected one failed diagnosis, got %v", got)
	}
}

func TestPipelineMetricsBreakerGauge(t *testing.T) {
	m := NewPipelineMetrics("test", prometheus.NewRegistry())

	m.ObserveBreakerState("chat.groq", "open")
	if got := testutil.ToFloat64(m.breakerState.WithLabelValues("test", "chat.groq")); got != 1 {
		t.Fatalf("expected open breaker gauge 1, got %v", got)
	}
	m.ObserveBreakerState("chat.groq", "closed")
	if got := testutil.ToFloat64(m.breakerState.WithLabelValues("test", "chat.groq")); got != 0 {
		t.Fatalf("expected closed breaker gauge 0, got %v", got)
	}
}

func TestHTTPMiddlewareRecordsStatusAndNormalizesPath(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	handler := m.Middleware("api", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/labels", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/random/123", nil))

	if got := testutil.ToFloat64(m.requestTotal.WithLabelValues("api", http.MethodGet, "/v1/labels", "418")); got != 1 {
		t.Fatalf("expected one /v1/labels request, got %v", got)
	}
	if got := testutil.ToFloat64(m.requestTotal.WithLabelValues("api", http.MethodGet, "other", "418")); got != 1 {
		t.Fatalf("expected unknown path folded into other, got %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "plant_http_requests_total") {
		t.Fatalf("expected exposition to include request counter")
	}
}

func TestWorkerMetricsStatusByErrorKind(t *testing.T) {
	m := NewWorkerMetrics("worker")

	m.StartRequest()
	m.FinishRequest("worker", 10*time.Millisecond, nil)
	m.StartRequest()
	m.FinishRequest("worker", 10*time.Millisecond, domain.WrapError(domain.ErrDecode, "decode", fmt.Errorf("not an image")))
	m.StartRequest()
	m.FinishRequest("worker", 10*time.Millisecond, fmt.Errorf("boom"))

	for status, want := range map[string]float64{"success": 1, "rejected": 1, "error": 1, "temporary": 0} {
		if got := testutil.ToFloat64(m.requestTotal.WithLabelValues("worker", status)); got != want {
			t.Fatalf("status %s = %v, want %v", status, got, want)
		}
	}
	if got := testutil.ToFloat64(m.requestInFlight); got != 0 {
		t.Fatalf("in flight = %v, want 0", got)
	}
}
