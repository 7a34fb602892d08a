package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultDelivered    = "delivered"
	resultDeadLettered = "dead_lettered"

	actionRequeued    = "requeued"
	actionQuarantined = "quarantined"
	actionRetry       = "retry_scheduled"
)

var (
	eventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "insights_service",
		Subsystem: "outbox",
		Name:      "events_total",
		Help:      "Outbox events handled by the dispatcher, by topic and result.",
	}, []string{"topic", "result"})

	batchSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "insights_service",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Wall time of non-empty dispatcher batches.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	})

	dlqActions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "insights_service",
		Subsystem: "dlq",
		Name:      "actions_total",
		Help:      "Dead-letter entries acted on by the manager.",
	}, []string{"topic", "event_type", "action"})

	dlqBacklog = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "insights_service",
		Subsystem: "dlq",
		Name:      "backlog",
		Help:      "Dead-letter entries still eligible for retry.",
	})
)

func init() {
	prometheus.MustRegister(eventsTotal, batchSeconds, dlqActions, dlqBacklog)
}

func countEvents(messages []Message, result string) {
	for _, msg := range messages {
		eventsTotal.WithLabelValues(msg.Topic, result).Inc()
	}
}

func countDLQAction(entry dlqEntry, action string) {
	dlqActions.WithLabelValues(entry.Topic, entry.EventType, action).Inc()
}

// refreshBacklog is best effort; a failed count leaves the previous value in place.
func refreshBacklog(ctx context.Context, pool *pgxpool.Pool) {
	var n int
	if pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NULL`).Scan(&n) == nil {
		dlqBacklog.Set(float64(n))
	}
}
