package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/YoussfAh/X-sub010/internal/events"
)

type fakeStore struct {
	mu        sync.Mutex
	pending   []Message
	published []int64
	dlq       []dlqWrite
	claimErr  error
}

type dlqWrite struct {
	msg    Message
	reason string
}

func (s *fakeStore) Claim(ctx context.Context, limit int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	if limit > len(s.pending) {
		limit = len(s.pending)
	}
	claimed := append([]Message(nil), s.pending[:limit]...)
	s.pending = s.pending[limit:]
	return claimed, nil
}

func (s *fakeStore) MarkPublished(ctx context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, ids...)
	return nil
}

func (s *fakeStore) MoveToDLQ(ctx context.Context, msg Message, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dlq = append(s.dlq, dlqWrite{msg: msg, reason: reason})
	return nil
}

type stubProducer struct {
	mu     sync.Mutex
	err    error
	writes []writtenBatch
}

type writtenBatch struct {
	topic    string
	messages []kafka.Message
}

func (s *stubProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.writes = append(s.writes, writtenBatch{topic: topic, messages: append([]kafka.Message(nil), msgs...)})
	return nil
}

type stubRegistry struct {
	mu    sync.Mutex
	id    int
	err   error
	calls []string
}

func (s *stubRegistry) EnsureSchema(ctx context.Context, subject, schema string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, subject)
	if s.err != nil {
		return 0, s.err
	}
	return s.id, nil
}

// mustDrain runs one dispatcher batch and returns how many messages it claimed.
func mustDrain(t *testing.T, ctx context.Context, d *Dispatcher) int {
	t.Helper()
	n, err := d.drain(ctx)
	require.NoError(t, err)
	return n
}

func analysisMessage(id int64, userID string) Message {
	payload, _ := json.Marshal(events.AnalysisCompleted{AuditID: "audit-1", UserID: userID, AnalysisType: "general"})
	return Message{
		EventID:       id,
		AggregateType: "analysis",
		AggregateID:   "audit-1",
		EventType:     events.TypeAnalysisCompleted,
		Topic:         events.TopicAnalysisEvents,
		SchemaSubject: events.TopicAnalysisEvents + "-value",
		PartitionKey:  userID,
		Payload:       payload,
	}
}

func TestDispatcherPublishesFramedMessagesWithHeaders(t *testing.T) {
	store := &fakeStore{pending: []Message{analysisMessage(1, "user-1")}}
	producer := &stubProducer{}
	registry := &stubRegistry{id: 42}
	dispatcher := NewDispatcher(store, producer, registry, time.Millisecond, 10, zerolog.Nop())

	before := testutil.ToFloat64(eventsTotal.WithLabelValues(events.TopicAnalysisEvents, resultDelivered))
	mustDrain(t, context.Background(), dispatcher)

	require.Len(t, producer.writes, 1)
	require.Equal(t, events.TopicAnalysisEvents, producer.writes[0].topic)
	record := producer.writes[0].messages[0]
	require.Equal(t, []byte("user-1"), record.Key)

	schemaID, payload, err := DecodeWireFormat(record.Value)
	require.NoError(t, err)
	require.Equal(t, 42, schemaID)
	require.JSONEq(t, string(analysisMessage(1, "user-1").Payload), string(payload))

	headers := map[string]string{}
	for _, h := range record.Headers {
		headers[h.Key] = string(h.Value)
	}
	require.Equal(t, events.TypeAnalysisCompleted, headers[HeaderEventType])
	require.Equal(t, events.TopicAnalysisEvents+"-value", headers[HeaderSchemaSubject])

	require.Equal(t, []int64{1}, store.published)
	require.InDelta(t, before+1, testutil.ToFloat64(eventsTotal.WithLabelValues(events.TopicAnalysisEvents, resultDelivered)), 0.0001)
}

func TestDispatcherCachesSchemaIDs(t *testing.T) {
	store := &fakeStore{pending: []Message{analysisMessage(1, "a"), analysisMessage(2, "b")}}
	producer := &stubProducer{}
	registry := &stubRegistry{id: 7}
	dispatcher := NewDispatcher(store, producer, registry, time.Millisecond, 10, zerolog.Nop())

	require.Equal(t, 2, mustDrain(t, context.Background(), dispatcher))
	store.pending = []Message{analysisMessage(3, "c")}
	require.Equal(t, 1, mustDrain(t, context.Background(), dispatcher))

	require.Len(t, registry.calls, 1)
	require.Len(t, producer.writes, 2)
	require.Len(t, producer.writes[0].messages, 2)
	require.Equal(t, []int64{1, 2, 3}, store.published)
}

func TestDispatcherRoutesFailedBatchToDLQ(t *testing.T) {
	store := &fakeStore{pending: []Message{analysisMessage(5, "user-1")}}
	producer := &stubProducer{err: errors.New("kafka write failed")}
	dispatcher := NewDispatcher(store, producer, &stubRegistry{id: 1}, time.Millisecond, 10, zerolog.Nop())

	beforeDLQ := testutil.ToFloat64(eventsTotal.WithLabelValues(events.TopicAnalysisEvents, resultDeadLettered))

	mustDrain(t, context.Background(), dispatcher)

	require.Len(t, store.dlq, 1)
	require.Contains(t, store.dlq[0].reason, "kafka write failed")
	require.Contains(t, store.dlq[0].reason, "topic="+events.TopicAnalysisEvents)
	require.Equal(t, []int64{5}, store.published)
	require.InDelta(t, beforeDLQ+1, testutil.ToFloat64(eventsTotal.WithLabelValues(events.TopicAnalysisEvents, resultDeadLettered)), 0.0001)
}

func TestDispatcherUnknownEventTypeGoesToDLQ(t *testing.T) {
	msg := analysisMessage(9, "user-1")
	msg.EventType = "analysis.unknown"
	store := &fakeStore{pending: []Message{msg}}
	producer := &stubProducer{}
	registry := &stubRegistry{id: 1}
	dispatcher := NewDispatcher(store, producer, registry, time.Millisecond, 10, zerolog.Nop())

	mustDrain(t, context.Background(), dispatcher)

	require.Empty(t, producer.writes)
	require.Empty(t, registry.calls)
	require.Len(t, store.dlq, 1)
	require.Contains(t, store.dlq[0].reason, "no schema metadata for event_type=analysis.unknown")
}

func TestDispatcherClaimErrorIsReturned(t *testing.T) {
	store := &fakeStore{claimErr: errors.New("db down")}
	dispatcher := NewDispatcher(store, &stubProducer{}, &stubRegistry{}, time.Millisecond, 10, zerolog.Nop())

	n, err := dispatcher.drain(context.Background())
	require.EqualError(t, err, "db down")
	require.Zero(t, n)
}

func TestDispatcherStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &fakeStore{pending: []Message{analysisMessage(1, "user-1")}}
	producer := &stubProducer{}
	dispatcher := NewDispatcher(store, producer, &stubRegistry{id: 3}, 5*time.Millisecond, 10, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go dispatcher.Start(ctx)

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.published) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	dispatcher.Wait()
}
