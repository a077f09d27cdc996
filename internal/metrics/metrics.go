package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Collection cycle metrics
	CollectCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unilens_collect_cycles_total",
			Help: "Total number of collection cycles by outcome",
		},
		[]string{"status"}, // success, failure
	)

	CollectDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "unilens_collect_duration_seconds",
			Help:    "Duration of one full collection cycle",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	CollectFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unilens_collect_failures_total",
			Help: "Total number of collection failures by error type",
		},
		[]string{"type"}, // auth, api, timeout, connection, write, internal
	)

	PointsWrittenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unilens_points_written_total",
			Help: "Total number of line-protocol points written by dataset",
		},
		[]string{"dataset"}, // traffic_by_app, total_traffic_by_app, traffic_by_country
	)

	// Store reachability as seen by the last probe or write
	InfluxUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "unilens_influxdb_up",
			Help: "Whether the time-series store answered the last liveness probe",
		},
	)

	// Query proxy metrics
	QueryRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unilens_query_requests_total",
			Help: "Total number of proxied dashboard queries by status code",
		},
		[]string{"status"},
	)

	QueryDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "unilens_query_duration_seconds",
			Help:    "Duration of proxied dashboard queries",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// RecordCycle records the outcome and duration of one collection cycle.
func RecordCycle(success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	CollectCyclesTotal.WithLabelValues(status).Inc()
	CollectDurationSeconds.Observe(duration.Seconds())
}

// RecordFailure records a classified collection failure.
func RecordFailure(errorType string) {
	CollectFailuresTotal.WithLabelValues(errorType).Inc()
}

// RecordPoints records points written for one dataset.
func RecordPoints(dataset string, count int) {
	if count > 0 {
		PointsWrittenTotal.WithLabelValues(dataset).Add(float64(count))
	}
}

// RecordInfluxUp records store reachability.
func RecordInfluxUp(up bool) {
	if up {
		InfluxUp.Set(1)
		return
	}
	InfluxUp.Set(0)
}

// RecordQuery records one proxied query.
func RecordQuery(status int, duration time.Duration) {
	QueryRequestsTotal.WithLabelValues(statusLabel(status)).Inc()
	QueryDurationSeconds.Observe(duration.Seconds())
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
