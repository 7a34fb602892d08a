package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const maxBackoff = time.Hour

// DLQManager replays dead-lettered events into the outbox with exponential backoff. Entries
// that have used up their retries are quarantined and left for an operator.
type DLQManager struct {
	pool       *pgxpool.Pool
	maxRetries int
	baseDelay  time.Duration
	logger     zerolog.Logger
}

// NewDLQManager constructs a DLQManager. Non-positive settings fall back to 5 retries and a
// one minute base delay.
func NewDLQManager(pool *pgxpool.Pool, maxRetries int, baseDelay time.Duration, logger zerolog.Logger) *DLQManager {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if baseDelay <= 0 {
		baseDelay = time.Minute
	}
	return &DLQManager{
		pool:       pool,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		logger:     logger.With().Str("component", "dlq_manager").Logger(),
	}
}

// Run performs a pass every interval until ctx is cancelled.
func (m *DLQManager) Run(ctx context.Context, interval time.Duration, batchSize int) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		n, err := m.RunOnce(ctx, batchSize)
		switch {
		case err != nil && !errors.Is(err, context.Canceled):
			m.logger.Error().Err(err).Int("processed", n).Msg("dlq pass failed")
		case n > 0:
			m.logger.Info().Int("processed", n).Msg("dlq pass complete")
		}
	}
}

type dlqEntry struct {
	ID            int64
	EventType     string
	Topic         string
	AggregateID   string
	SchemaSubject string
	RetryCount    int
}

// RunOnce handles up to batchSize due entries and reports how many it settled. Per-entry
// failures are joined into the returned error without stopping the pass.
func (m *DLQManager) RunOnce(ctx context.Context, batchSize int) (int, error) {
	rows, err := m.pool.Query(ctx, `
SELECT dlq_id, event_type, topic, aggregate_id, schema_subject, retry_count
  FROM outbox_dlq
 WHERE quarantined_at IS NULL
   AND (next_retry_at IS NULL OR next_retry_at <= NOW())
 ORDER BY created_at
 LIMIT $1`, batchSize)
	if err != nil {
		return 0, err
	}
	due, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (dlqEntry, error) {
		var e dlqEntry
		err := row.Scan(&e.ID, &e.EventType, &e.Topic, &e.AggregateID, &e.SchemaSubject, &e.RetryCount)
		return e, err
	})
	if err != nil {
		return 0, err
	}

	settled := 0
	var errs error
	for _, entry := range due {
		var handleErr error
		if entry.RetryCount >= m.maxRetries {
			handleErr = m.quarantine(ctx, entry)
		} else {
			handleErr = m.requeue(ctx, entry)
		}
		if handleErr != nil {
			errs = errors.Join(errs, fmt.Errorf("dlq entry %d: %w", entry.ID, handleErr))
			continue
		}
		settled++
	}
	refreshBacklog(ctx, m.pool)
	return settled, errs
}

func (m *DLQManager) quarantine(ctx context.Context, entry dlqEntry) error {
	if _, err := m.pool.Exec(ctx,
		`UPDATE outbox_dlq SET quarantined_at = NOW(), quarantine_reason = 'retry limit reached' WHERE dlq_id = $1`,
		entry.ID,
	); err != nil {
		return err
	}
	countDLQAction(entry, actionQuarantined)
	m.logger.Warn().
		Int64("dlq_id", entry.ID).
		Str("event_type", entry.EventType).
		Str("aggregate_id", entry.AggregateID).
		Msg("dlq entry quarantined")
	return nil
}

// requeue moves the entry back into outbox. The replayed row gets a fresh event_id and no
// dedupe key so it cannot collide with the original.
func (m *DLQManager) requeue(ctx context.Context, entry dlqEntry) error {
	replayErr := pgx.BeginFunc(ctx, m.pool, func(tx pgx.Tx) error {
		if entry.SchemaSubject == "" {
			return errors.New("missing schema_subject")
		}
		if _, err := tx.Exec(ctx, `
INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload)
SELECT aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload
  FROM outbox_dlq WHERE dlq_id = $1`, entry.ID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM outbox_dlq WHERE dlq_id = $1`, entry.ID)
		return err
	})
	if replayErr == nil {
		countDLQAction(entry, actionRequeued)
		return nil
	}
	return m.scheduleRetry(ctx, entry, replayErr)
}

func (m *DLQManager) scheduleRetry(ctx context.Context, entry dlqEntry, cause error) error {
	_, err := m.pool.Exec(ctx, `
UPDATE outbox_dlq
   SET retry_count = retry_count + 1,
       last_attempt_at = NOW(),
       next_retry_at = NOW() + $1::interval,
       reason = $2
 WHERE dlq_id = $3`, m.backoffDelay(entry.RetryCount+1), cause.Error(), entry.ID)
	if err != nil {
		return errors.Join(cause, err)
	}
	countDLQAction(entry, actionRetry)
	return nil
}

// backoffDelay is baseDelay doubled for every attempt after the first, capped at maxBackoff.
func (m *DLQManager) backoffDelay(attempt int) time.Duration {
	delay := m.baseDelay
	for i := 1; i < attempt && delay < maxBackoff; i++ {
		delay *= 2
	}
	return min(delay, maxBackoff)
}
