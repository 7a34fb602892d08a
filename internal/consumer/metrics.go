package consumer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values for messagesTotal.
const (
	outcomeHandled   = "handled"
	outcomeFailed    = "handler_error"
	outcomeMalformed = "malformed"
)

var (
	messagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "insights_service",
		Subsystem: "consumer",
		Name:      "messages_total",
		Help:      "Kafka messages seen by the consumer, by outcome.",
	}, []string{"topic", "event_type", "outcome"})

	handleSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "insights_service",
		Subsystem: "consumer",
		Name:      "handle_duration_seconds",
		Help:      "Handler latency per event type.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
	}, []string{"event_type"})

	lagSeconds = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "insights_service",
		Subsystem: "consumer",
		Name:      "lag_seconds",
		Help:      "Age of the last committed message when it was handled.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(messagesTotal, handleSeconds, lagSeconds)
}

func observeHandled(msg Message, took time.Duration) {
	messagesTotal.WithLabelValues(msg.Topic, msg.EventType, outcomeHandled).Inc()
	handleSeconds.WithLabelValues(msg.EventType).Observe(took.Seconds())
	if !msg.Timestamp.IsZero() {
		lagSeconds.WithLabelValues(msg.Topic).Set(time.Since(msg.Timestamp).Seconds())
	}
}

func observeFailed(msg Message, took time.Duration) {
	messagesTotal.WithLabelValues(msg.Topic, msg.EventType, outcomeFailed).Inc()
	handleSeconds.WithLabelValues(msg.EventType).Observe(took.Seconds())
}

// Malformed messages carry no trusted event type.
func observeMalformed(topic string) {
	messagesTotal.WithLabelValues(topic, "", outcomeMalformed).Inc()
}
