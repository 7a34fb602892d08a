package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/YoussfAh/X-sub010/internal/events"
)

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
}

var eventCatalog = map[string]EventMetadata{
	events.TypeAnalysisCompleted: {
		Topic:         events.TopicAnalysisEvents,
		SchemaSubject: events.TopicAnalysisEvents + "-value",
	},
	events.TypeFeatureFlagsUpdated: {
		Topic:         events.TopicFeatureFlagEvents,
		SchemaSubject: events.TopicFeatureFlagEvents + "-value",
	},
}

type outboxEvent struct {
	AggregateType string
	AggregateID   string
	// DedupeID combines with EventType into the outbox dedupe key.
	DedupeID     string
	EventType    string
	PartitionKey string
	Payload      any
}

func insertOutbox(ctx context.Context, tx pgx.Tx, event outboxEvent) error {
	body, err := json.Marshal(event.Payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[event.EventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", event.EventType)
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		event.AggregateType,
		event.AggregateID,
		event.EventType,
		meta.Topic,
		meta.SchemaSubject,
		event.PartitionKey,
		body,
		fmt.Sprintf("%s:%s", event.DedupeID, event.EventType),
	)
	return err
}
