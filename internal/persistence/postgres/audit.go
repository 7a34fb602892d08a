package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/YoussfAh/X-sub010/internal/domain"
	"github.com/YoussfAh/X-sub010/internal/events"
)

// AppendAudit inserts the audit entry and its analysis.completed event in one transaction.
func (r *Repository) AppendAudit(ctx context.Context, entry domain.AuditEntry) (err error) {
	dataUsed, err := json.Marshal(entry.DataUsed)
	if err != nil {
		return err
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	_, err = tx.Exec(ctx,
		`INSERT INTO analysis_audit (audit_id, user_id, prompt, analysis_type, response, data_used, created_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		entry.ID, entry.UserID, entry.Prompt, string(entry.AnalysisType), entry.Response, dataUsed, entry.CreatedAt,
	)
	if err != nil {
		return err
	}

	if err = insertOutbox(ctx, tx, outboxEvent{
		AggregateType: "analysis",
		AggregateID:   entry.ID,
		DedupeID:      entry.ID,
		EventType:     events.TypeAnalysisCompleted,
		PartitionKey:  entry.UserID,
		Payload:       AnalysisCompletedEvent(entry),
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// AnalysisCompletedEvent projects an audit entry onto its published event.
func AnalysisCompletedEvent(entry domain.AuditEntry) events.AnalysisCompleted {
	return events.AnalysisCompleted{
		AuditID:      entry.ID,
		UserID:       entry.UserID,
		AnalysisType: string(entry.AnalysisType),
		DataUsed: events.DataUsed{
			Workouts:      entry.DataUsed.TotalWorkouts,
			DietEntries:   entry.DataUsed.TotalDietEntries,
			SleepRecords:  entry.DataUsed.TotalSleepRecords,
			WeightRecords: entry.DataUsed.TotalWeightRecords,
			Quizzes:       entry.DataUsed.CompletedQuizzes,
		},
		CreatedAt: entry.CreatedAt,
	}
}

// ListAudit returns entries newest first; entries with equal timestamps come back in reverse
// insertion order.
func (r *Repository) ListAudit(ctx context.Context, userID string, limit, offset int) ([]domain.AuditEntry, error) {
	const query = `SELECT audit_id, user_id, prompt, analysis_type, response, data_used, created_at
        FROM analysis_audit WHERE user_id=$1
        ORDER BY created_at DESC, seq DESC
        LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.AuditEntry, 0, limit)
	for rows.Next() {
		var entry domain.AuditEntry
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Prompt, &entry.AnalysisType, &entry.Response, &entry.DataUsed, &entry.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// ListUsage reads the analysis_usage projection maintained by the consumer.
func (r *Repository) ListUsage(ctx context.Context, userID string, since time.Time) ([]domain.UsageRecord, error) {
	const query = `SELECT user_id, day, analysis_type, request_count, records_analyzed, last_requested_at
        FROM analysis_usage WHERE user_id=$1 AND day >= $2::date
        ORDER BY day, analysis_type`

	rows, err := r.pool.Query(ctx, query, userID, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.UsageRecord, 0)
	for rows.Next() {
		var record domain.UsageRecord
		if err := rows.Scan(&record.UserID, &record.Day, &record.AnalysisType, &record.RequestCount, &record.RecordsAnalyzed, &record.LastRequestedAt); err != nil {
			return nil, err
		}
		record.Day = record.Day.UTC()
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// ApplyAnalysisCompleted folds one analysis.completed event into analysis_usage. Events already
// applied are ignored, so redelivery is safe.
func (r *Repository) ApplyAnalysisCompleted(ctx context.Context, event events.AnalysisCompleted) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx, `INSERT INTO analysis_usage_applied (audit_id) VALUES ($1) ON CONFLICT DO NOTHING`, event.AuditID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return tx.Commit(ctx)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO analysis_usage (user_id, day, analysis_type, request_count, records_analyzed, last_requested_at)
         VALUES ($1, $2::date, $3, 1, $4, $5)
         ON CONFLICT (user_id, day, analysis_type) DO UPDATE
            SET request_count = analysis_usage.request_count + 1,
                records_analyzed = analysis_usage.records_analyzed + EXCLUDED.records_analyzed,
                last_requested_at = GREATEST(analysis_usage.last_requested_at, EXCLUDED.last_requested_at)`,
		event.UserID, domain.UsageDay(event.CreatedAt), event.AnalysisType, event.DataUsed.Total(), event.CreatedAt,
	)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}
