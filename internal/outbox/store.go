package outbox

import (
	"cmp"
	"context"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on the outbox and outbox_dlq tables.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore returns a store backed by pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// claimQuery locks the oldest unpublished rows, skipping any another dispatcher holds, and
// stamps claimed_at in the same statement.
const claimQuery = `
WITH next AS (
    SELECT event_id FROM outbox
     WHERE published_at IS NULL
     ORDER BY event_id
     LIMIT $1
     FOR UPDATE SKIP LOCKED
)
UPDATE outbox o
   SET claimed_at = NOW()
  FROM next
 WHERE o.event_id = next.event_id
RETURNING o.event_id, o.aggregate_type, o.aggregate_id, o.event_type, o.topic, o.schema_subject, o.partition_key, o.payload`

// Claim returns up to limit pending messages in event_id order.
func (s *PostgresStore) Claim(ctx context.Context, limit int) ([]Message, error) {
	rows, err := s.pool.Query(ctx, claimQuery, limit)
	if err != nil {
		return nil, err
	}
	messages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Message, error) {
		var m Message
		err := row.Scan(&m.EventID, &m.AggregateType, &m.AggregateID, &m.EventType, &m.Topic, &m.SchemaSubject, &m.PartitionKey, &m.Payload)
		return m, err
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(messages, func(a, b Message) int { return cmp.Compare(a.EventID, b.EventID) })
	return messages, nil
}

// MarkPublished stamps published_at on ids.
func (s *PostgresStore) MarkPublished(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `UPDATE outbox SET published_at = NOW() WHERE event_id = ANY($1)`, ids)
	return err
}

// MoveToDLQ copies msg into outbox_dlq, eligible for retry on the manager's next pass.
func (s *PostgresStore) MoveToDLQ(ctx context.Context, msg Message, reason string) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO outbox_dlq (event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, next_retry_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())`,
		msg.EventID, msg.EventType, msg.Topic, msg.Payload, reason,
		msg.AggregateType, msg.AggregateID, msg.SchemaSubject, msg.PartitionKey)
	return err
}
