package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions  prometheus.Gauge
	SessionOutcomes *prometheus.CounterVec
	ToolCalls       *prometheus.CounterVec
	PlannerPath     *prometheus.CounterVec
	Compressions    prometheus.Counter
	Evictions       prometheus.Counter
	AnswerLatency   prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active reasoning sessions.",
		}),
		SessionOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_outcomes_total",
			Help:      "Answered questions by terminal state and abort reason.",
		}, []string{"state", "reason"}),
		ToolCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool executions by tool and outcome.",
		}, []string{"tool", "outcome"}),
		PlannerPath: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "planner_path_total",
			Help:      "Planning decisions by sub-strategy.",
		}, []string{"strategy"}),
		Compressions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "window_compressions_total",
			Help:      "History blocks compressed into digests.",
		}),
		Evictions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "window_evictions_total",
			Help:      "History blocks evicted without compression.",
		}),
		AnswerLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "answer_latency_ms",
			Help:      "End-to-end question answering latency in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}),
	}
}

func (m *Metrics) ObserveAnswerLatency(d time.Duration) {
	m.AnswerLatency.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
