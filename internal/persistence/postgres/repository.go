// Package postgres provides Postgres-backed persistence for records, flags and the audit log.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/YoussfAh/X-sub010/internal/domain"
	"github.com/YoussfAh/X-sub010/internal/events"
)

// Repository implements domain.Repository on a pgx pool.
type Repository struct {
	pool *pgxpool.Pool
}

var _ domain.Repository = (*Repository)(nil)

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `user_id, email, name, feature_flags, created_at, updated_at`

// GetUser returns nil, nil when the user does not exist.
func (r *Repository) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE user_id=$1`, userID)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// CreateUser inserts a user. Users are provisioned by the identity service; this exists for
// seeding and tests.
func (r *Repository) CreateUser(ctx context.Context, user domain.User) error {
	flags, err := json.Marshal(flagsOrEmpty(user.FeatureFlags))
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1,$2,$3,$4,$5,$6)`,
		user.ID, user.Email, user.Name, flags, user.CreatedAt, user.UpdatedAt,
	)
	return err
}

// MergeFeatureFlags applies flags with a single jsonb concatenation and records a
// feature_flags.updated event in the same transaction.
func (r *Repository) MergeFeatureFlags(ctx context.Context, userID string, flags map[domain.FlagName]bool) (user *domain.User, err error) {
	changed := make(map[string]bool, len(flags))
	for name, enabled := range flags {
		changed[string(name)] = enabled
	}
	patch, err := json.Marshal(changed)
	if err != nil {
		return nil, err
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	row := tx.QueryRow(ctx,
		`UPDATE users SET feature_flags = feature_flags || $2::jsonb, updated_at = NOW()
          WHERE user_id=$1
      RETURNING `+userColumns,
		userID, patch,
	)
	user, err = scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = nil
			tx.Rollback(ctx)
			return nil, nil
		}
		return nil, err
	}

	if err = insertOutbox(ctx, tx, outboxEvent{
		AggregateType: "user",
		AggregateID:   user.ID,
		DedupeID:      uuid.NewString(),
		EventType:     events.TypeFeatureFlagsUpdated,
		PartitionKey:  user.ID,
		Payload: events.FeatureFlagsUpdated{
			UserID:    user.ID,
			Changed:   changed,
			UpdatedAt: user.UpdatedAt,
		},
	}); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return user, nil
}

// ListWorkouts implements domain.RecordStore.
func (r *Repository) ListWorkouts(ctx context.Context, userID string) ([]domain.WorkoutRecord, error) {
	const query = `SELECT workout_id, user_id, name, workout_type, duration_min, calories_burned, exercises, notes, performed_at, created_at
        FROM workouts WHERE user_id=$1 ORDER BY created_at, workout_id`
	return listRecords(ctx, r.pool, query, userID, func(rows pgx.Rows) (domain.WorkoutRecord, error) {
		var w domain.WorkoutRecord
		err := rows.Scan(&w.ID, &w.UserID, &w.Name, &w.WorkoutType, &w.DurationMin, &w.CaloriesBurned, &w.Exercises, &w.Notes, &w.PerformedAt, &w.CreatedAt)
		return w, err
	})
}

// ListDietEntries implements domain.RecordStore.
func (r *Repository) ListDietEntries(ctx context.Context, userID string) ([]domain.DietEntry, error) {
	const query = `SELECT entry_id, user_id, meal_type, description, calories, protein_g, carbs_g, fat_g, consumed_at, created_at
        FROM diet_entries WHERE user_id=$1 ORDER BY created_at, entry_id`
	return listRecords(ctx, r.pool, query, userID, func(rows pgx.Rows) (domain.DietEntry, error) {
		var d domain.DietEntry
		err := rows.Scan(&d.ID, &d.UserID, &d.MealType, &d.Description, &d.Calories, &d.ProteinG, &d.CarbsG, &d.FatG, &d.ConsumedAt, &d.CreatedAt)
		return d, err
	})
}

// ListSleepRecords implements domain.RecordStore.
func (r *Repository) ListSleepRecords(ctx context.Context, userID string) ([]domain.SleepRecord, error) {
	const query = `SELECT record_id, user_id, started_at, ended_at, duration_min, quality, notes, created_at
        FROM sleep_records WHERE user_id=$1 ORDER BY created_at, record_id`
	return listRecords(ctx, r.pool, query, userID, func(rows pgx.Rows) (domain.SleepRecord, error) {
		var s domain.SleepRecord
		err := rows.Scan(&s.ID, &s.UserID, &s.StartedAt, &s.EndedAt, &s.DurationMin, &s.Quality, &s.Notes, &s.CreatedAt)
		return s, err
	})
}

// ListWeightRecords implements domain.RecordStore.
func (r *Repository) ListWeightRecords(ctx context.Context, userID string) ([]domain.WeightRecord, error) {
	const query = `SELECT record_id, user_id, weight_kg, body_fat_pct, measured_at, created_at
        FROM weight_records WHERE user_id=$1 ORDER BY created_at, record_id`
	return listRecords(ctx, r.pool, query, userID, func(rows pgx.Rows) (domain.WeightRecord, error) {
		var w domain.WeightRecord
		err := rows.Scan(&w.ID, &w.UserID, &w.WeightKg, &w.BodyFatPct, &w.MeasuredAt, &w.CreatedAt)
		return w, err
	})
}

// ListQuizResults implements domain.RecordStore.
func (r *Repository) ListQuizResults(ctx context.Context, userID string) ([]domain.QuizResult, error) {
	const query = `SELECT result_id, user_id, quiz_id, quiz_title, score, max_score, completed_at, created_at
        FROM quiz_results WHERE user_id=$1 ORDER BY created_at, result_id`
	return listRecords(ctx, r.pool, query, userID, func(rows pgx.Rows) (domain.QuizResult, error) {
		var q domain.QuizResult
		err := rows.Scan(&q.ID, &q.UserID, &q.QuizID, &q.QuizTitle, &q.Score, &q.MaxScore, &q.CompletedAt, &q.CreatedAt)
		return q, err
	})
}

func listRecords[T any](ctx context.Context, pool *pgxpool.Pool, query, userID string, scan func(pgx.Rows) (T, error)) ([]T, error) {
	rows, err := pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]T, 0)
	for rows.Next() {
		record, err := scan(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(&user.ID, &user.Email, &user.Name, &user.FeatureFlags, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return nil, err
	}
	user.FeatureFlags = flagsOrEmpty(user.FeatureFlags)
	return &user, nil
}

func flagsOrEmpty(flags map[domain.FlagName]bool) map[domain.FlagName]bool {
	if flags == nil {
		return map[domain.FlagName]bool{}
	}
	return flags
}
