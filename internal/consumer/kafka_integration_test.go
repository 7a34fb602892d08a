//go:build integration

package consumer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	kafkacontainer "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/YoussfAh/X-sub010/internal/domain"
	"github.com/YoussfAh/X-sub010/internal/events"
	"github.com/YoussfAh/X-sub010/internal/outbox"
	"github.com/YoussfAh/X-sub010/internal/persistence/postgres"
	"github.com/YoussfAh/X-sub010/internal/testsupport"
)

func TestKafkaAnalysisCompletedUpdatesUsage(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	kafkaC, err := kafkacontainer.Run(ctx, "confluentinc/confluent-local:7.5.0",
		kafkacontainer.WithClusterID("insights-it"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = kafkaC.Terminate(context.Background()) })

	brokers, err := kafkaC.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	broker := brokers[0]

	pool := testsupport.StartPostgres(ctx, t)
	repo := postgres.NewRepository(pool)

	conn, err := kafka.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.CreateTopics(kafka.TopicConfig{
		Topic:             events.TopicAnalysisEvents,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{broker},
		GroupID:     "insights-integration",
		Topic:       events.TopicAnalysisEvents,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	defer reader.Close()

	consumerCtx, stop := context.WithCancel(ctx)
	defer stop()
	proc := NewProcessor(reader, NewUsageProjectionHandler(repo))
	go func() {
		_ = proc.Run(consumerCtx)
	}()

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(broker),
		Topic:                  events.TopicAnalysisEvents,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	defer writer.Close()

	userID := uuid.NewString()
	now := time.Now().UTC()
	evt := events.AnalysisCompleted{
		AuditID:      uuid.NewString(),
		UserID:       userID,
		AnalysisType: string(domain.AnalysisNutrition),
		DataUsed:     events.DataUsed{DietEntries: 5},
		CreatedAt:    now,
	}
	payload, err := json.Marshal(evt)
	require.NoError(t, err)

	record := kafka.Message{
		Key:   []byte(userID),
		Value: outbox.EncodeWireFormat(1, payload),
		Headers: []kafka.Header{
			{Key: outbox.HeaderEventType, Value: []byte(events.TypeAnalysisCompleted)},
			{Key: outbox.HeaderAggregateID, Value: []byte(evt.AuditID)},
		},
	}
	// The same event twice must count once.
	require.NoError(t, writer.WriteMessages(ctx, record, record))

	require.Eventually(t, func() bool {
		usage, err := repo.ListUsage(ctx, userID, domain.UsageWindowStart(now, 1))
		return err == nil && len(usage) == 1 && usage[0].RecordsAnalyzed == 5
	}, 60*time.Second, 500*time.Millisecond)

	usage, err := repo.ListUsage(ctx, userID, domain.UsageWindowStart(now, 1))
	require.NoError(t, err)
	require.Equal(t, 1, usage[0].RequestCount)
	require.Equal(t, domain.AnalysisNutrition, usage[0].AnalysisType)
}
