// Package outbox delivers events recorded in the outbox table to Kafka.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

type schemaRegistrar interface {
	EnsureSchema(context.Context, string, string) (int, error)
}

// Store claims pending outbox rows and records their fate.
type Store interface {
	Claim(ctx context.Context, limit int) ([]Message, error)
	MarkPublished(ctx context.Context, ids []int64) error
	MoveToDLQ(ctx context.Context, msg Message, reason string) error
}

// Message represents a row fetched from outbox.
type Message struct {
	EventID       int64
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	SchemaSubject string
	PartitionKey  string
	Payload       json.RawMessage
}

// Header keys set on every published record.
const (
	HeaderEventType     = "event_type"
	HeaderSchemaSubject = "schema_subject"
	HeaderAggregateID   = "aggregate_id"
)

// Dispatcher polls the outbox, frames each event with its registry schema id and publishes it
// to Kafka. A batch that cannot be delivered is copied to the dead-letter table and marked
// published so it never blocks newer events.
type Dispatcher struct {
	store     Store
	producer  messageWriter
	registry  schemaRegistrar
	interval  time.Duration
	batchSize int
	logger    zerolog.Logger

	schemaIDs sync.Map // subject + schema -> registry id
	done      chan struct{}
}

// NewDispatcher constructs a Dispatcher. Non-positive settings fall back to one second and 25
// messages.
func NewDispatcher(store Store, producer messageWriter, registry schemaRegistrar, pollInterval time.Duration, batchSize int, logger zerolog.Logger) *Dispatcher {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 25
	}
	return &Dispatcher{
		store:     store,
		producer:  producer,
		registry:  registry,
		interval:  pollInterval,
		batchSize: batchSize,
		logger:    logger.With().Str("component", "outbox_dispatcher").Logger(),
		done:      make(chan struct{}),
	}
}

// Start polls until ctx is cancelled. A full batch is followed immediately by another claim;
// otherwise the dispatcher sleeps for the poll interval.
func (d *Dispatcher) Start(ctx context.Context) {
	defer close(d.done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		n, err := d.drain(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error().Err(err).Msg("outbox batch failed")
		}
		next := d.interval
		if err == nil && n == d.batchSize {
			next = 0
		}
		timer.Reset(next)
	}
}

// Wait blocks until Start has returned.
func (d *Dispatcher) Wait() {
	<-d.done
}

// drain claims one batch and settles it, returning how many messages were claimed.
func (d *Dispatcher) drain(ctx context.Context) (int, error) {
	messages, err := d.store.Claim(ctx, d.batchSize)
	if err != nil || len(messages) == 0 {
		return 0, err
	}
	started := time.Now()
	defer func() { batchSeconds.Observe(time.Since(started).Seconds()) }()

	ids := make([]int64, len(messages))
	for i, msg := range messages {
		ids[i] = msg.EventID
	}

	if err := d.publish(ctx, messages); err != nil {
		d.logger.Warn().Err(err).Int("messages", len(messages)).Msg("outbox delivery failed, routing batch to dlq")
		for _, msg := range messages {
			if dlqErr := d.store.MoveToDLQ(ctx, msg, fmt.Sprintf("%s (topic=%s)", err, msg.Topic)); dlqErr != nil {
				return len(messages), dlqErr
			}
		}
		countEvents(messages, resultDeadLettered)
		return len(messages), d.store.MarkPublished(ctx, ids)
	}

	countEvents(messages, resultDelivered)
	d.logger.Debug().Int("messages", len(messages)).Msg("outbox batch delivered")
	return len(messages), d.store.MarkPublished(ctx, ids)
}

// publish writes messages grouped by topic, preserving first-seen topic order.
func (d *Dispatcher) publish(ctx context.Context, messages []Message) error {
	var order []string
	byTopic := map[string][]kafka.Message{}
	for _, msg := range messages {
		record, err := d.record(ctx, msg)
		if err != nil {
			return err
		}
		if _, seen := byTopic[msg.Topic]; !seen {
			order = append(order, msg.Topic)
		}
		byTopic[msg.Topic] = append(byTopic[msg.Topic], record)
	}

	for _, topic := range order {
		if err := d.producer.WriteMessages(ctx, topic, byTopic[topic]...); err != nil {
			return fmt.Errorf("write %s: %w", topic, err)
		}
	}
	return nil
}

func (d *Dispatcher) record(ctx context.Context, msg Message) (kafka.Message, error) {
	schemaID, err := d.lookupSchemaID(ctx, msg)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(msg.PartitionKey),
		Value: EncodeWireFormat(schemaID, msg.Payload),
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(msg.EventType)},
			{Key: HeaderSchemaSubject, Value: []byte(msg.SchemaSubject)},
			{Key: HeaderAggregateID, Value: []byte(msg.AggregateID)},
		},
		Time: time.Now().UTC(),
	}, nil
}

func (d *Dispatcher) lookupSchemaID(ctx context.Context, msg Message) (int, error) {
	schema, ok := schemaFor(msg.EventType)
	if !ok {
		return 0, fmt.Errorf("no schema metadata for event_type=%s", msg.EventType)
	}

	key := msg.SchemaSubject + "\x00" + schema
	if id, ok := d.schemaIDs.Load(key); ok {
		return id.(int), nil
	}
	id, err := d.registry.EnsureSchema(ctx, msg.SchemaSubject, schema)
	if err != nil {
		return 0, fmt.Errorf("resolve schema %s: %w", msg.SchemaSubject, err)
	}
	d.schemaIDs.Store(key, id)
	return id, nil
}
