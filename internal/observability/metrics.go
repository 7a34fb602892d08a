// Package observability exposes Prometheus metrics for the insights core.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	aggregationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "insights_service",
		Name:      "aggregations_total",
		Help:      "User data aggregations by outcome.",
	}, []string{"outcome"})
	analysisRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "insights_service",
		Name:      "analysis_requests_total",
		Help:      "Analysis requests by analysis type and outcome.",
	}, []string{"type", "outcome"})
	upstreamLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "insights_service",
		Name:      "upstream_latency_seconds",
		Help:      "Latency of calls to the analysis backend.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
	})
	auditRecordedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "insights_service",
		Subsystem: "audit",
		Name:      "last_recorded_timestamp_seconds",
		Help:      "Unix timestamp of the most recent analysis audit entry.",
	})
)

func init() {
	prometheus.MustRegister(aggregationsTotal, analysisRequestsTotal, upstreamLatency, auditRecordedGauge)
}

// RecordAggregation counts one aggregation with the given outcome.
func RecordAggregation(outcome string) {
	aggregationsTotal.WithLabelValues(outcome).Inc()
}

// RecordAnalysis counts one analysis request.
func RecordAnalysis(analysisType, outcome string) {
	analysisRequestsTotal.WithLabelValues(analysisType, outcome).Inc()
}

// ObserveUpstreamLatency records how long a backend call took.
func ObserveUpstreamLatency(d time.Duration) {
	upstreamLatency.Observe(d.Seconds())
}

// RecordAuditRecorded updates the audit watermark gauge.
func RecordAuditRecorded(ts time.Time) {
	if ts.IsZero() {
		return
	}
	auditRecordedGauge.Set(float64(ts.Unix()))
}
