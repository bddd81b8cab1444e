package metrics

import (
	"time"

	"github.com/kirillkom/plant-doctor/internal/core/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics covers the diagnosis and chat pipelines. It is shared by
// every process entrypoint so dashboards look the same for api, worker and bot.
type PipelineMetrics struct {
	service string

	diagnosisTotal      *prometheus.CounterVec
	diagnosisDuration   *prometheus.HistogramVec
	diagnosisConfidence *prometheus.HistogramVec
	labelTotal          *prometheus.CounterVec
	chatTotal           *prometheus.CounterVec
	chatDuration        *prometheus.HistogramVec
	retryTotal          *prometheus.CounterVec
	breakerState        *prometheus.GaugeVec
}

func NewPipelineMetrics(service string, registry prometheus.Registerer) *PipelineMetrics {
	diagnosisTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plant",
			Subsystem: "diagnosis",
			Name:      "total",
			Help:      "Total diagnoses by outcome.",
		},
		[]string{"service", "outcome"},
	)
	diagnosisDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "plant",
			Subsystem: "diagnosis",
			Name:      "duration_seconds",
			Help:      "End-to-end diagnosis duration in seconds.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"service", "outcome"},
	)
	diagnosisConfidence := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "plant",
			Subsystem: "diagnosis",
			Name:      "confidence",
			Help:      "Distribution of winning class confidence.",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 0.99},
		},
		[]string{"service"},
	)
	labelTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plant",
			Subsystem: "diagnosis",
			Name:      "label_total",
			Help:      "Successful diagnoses by predicted label.",
		},
		[]string{"service", "label"},
	)
	chatTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plant",
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Total chat completions by provider and status.",
		},
		[]string{"service", "provider", "status"},
	)
	chatDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "plant",
			Subsystem: "chat",
			Name:      "duration_seconds",
			Help:      "Chat completion duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "provider"},
	)
	retryTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plant",
			Subsystem: "resilience",
			Name:      "retries_total",
			Help:      "Total retried outbound calls by operation.",
		},
		[]string{"service", "operation"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "plant",
			Subsystem: "resilience",
			Name:      "breaker_open",
			Help:      "1 when the circuit breaker of an operation is open or half-open.",
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(
		diagnosisTotal,
		diagnosisDuration,
		diagnosisConfidence,
		labelTotal,
		chatTotal,
		chatDuration,
		retryTotal,
		breakerState,
	)

	return &PipelineMetrics{
		service:             service,
		diagnosisTotal:      diagnosisTotal,
		diagnosisDuration:   diagnosisDuration,
		diagnosisConfidence: diagnosisConfidence,
		labelTotal:          labelTotal,
		chatTotal:           chatTotal,
		chatDuration:        chatDuration,
		retryTotal:          retryTotal,
		breakerState:        breakerState,
	}
}

func (m *PipelineMetrics) ObserveDiagnosis(outcome string, label domain.Label, confidence float32, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.diagnosisTotal.WithLabelValues(m.service, outcome).Inc()
	m.diagnosisDuration.WithLabelValues(m.service, outcome).Observe(duration.Seconds())
	if outcome != "success" {
		return
	}
	m.diagnosisConfidence.WithLabelValues(m.service).Observe(float64(confidence))
	m.labelTotal.WithLabelValues(m.service, label.String()).Inc()
}

func (m *PipelineMetrics) ObserveChat(provider, status string, duration time.Duration) {
	if provider == "" {
		provider = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	m.chatTotal.WithLabelValues(m.service, provider, status).Inc()
	m.chatDuration.WithLabelValues(m.service, provider).Observe(duration.Seconds())
}

func (m *PipelineMetrics) ObserveRetry(operation string) {
	m.retryTotal.WithLabelValues(m.service, operation).Inc()
}

func (m *PipelineMetrics) ObserveBreakerState(operation, state string) {
	value := 0.0
	if state != "closed" {
		value = 1
	}
	m.breakerState.WithLabelValues(m.service, operation).Set(value)
}
