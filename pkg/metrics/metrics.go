// Package metrics exposes Prometheus instrumentation for the matchup
// engine: scoring throughput and latency plus HTTP traffic counters.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "matchup_engine"

var registry = prometheus.NewRegistry()

var (
	scoringRuns = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scoring_runs_total",
		Help:      "Completed scoring runs.",
	})
	scoringErrors = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scoring_errors_total",
		Help:      "Scoring runs rejected for invalid configuration.",
	})
	scoredRows = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scored_rows_total",
		Help:      "Receiver rows that survived eligibility and were scored.",
	})
	droppedRows = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dropped_rows_total",
		Help:      "Receiver rows excluded from a run, by reason.",
	}, []string{"reason"})
	scoringLatency = promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scoring_duration_seconds",
		Help:      "Wall time of scoring runs.",
		Buckets:   prometheus.DefBuckets,
	})
	httpRequests = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by path, method, and status.",
	}, []string{"path", "method", "status"})
	httpDuration = promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by path and method.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"path", "method"})
)

// RecordScoringRun records one completed run. Separating ineligible
// from unqualified drops keeps the eligible-row ratio derivable from
// the counters alone.
func RecordScoringRun(inputRows, eligibleRows, outputRows int, elapsed time.Duration) {
	scoringRuns.Inc()
	scoredRows.Add(float64(outputRows))
	if dropped := inputRows - eligibleRows; dropped > 0 {
		droppedRows.WithLabelValues("ineligible").Add(float64(dropped))
	}
	if dropped := eligibleRows - outputRows; dropped > 0 {
		droppedRows.WithLabelValues("unqualified").Add(float64(dropped))
	}
	scoringLatency.Observe(elapsed.Seconds())
}

// RecordScoringError counts a run rejected before scoring.
func RecordScoringError() {
	scoringErrors.Inc()
}

// RecordHTTPRequest records one served request.
func RecordHTTPRequest(path, method string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(path, method).Observe(elapsed.Seconds())
}

// Handler serves the /metrics endpoint off the private registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
