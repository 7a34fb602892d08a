//go:build integration

package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/YoussfAh/X-sub010/internal/domain"
	"github.com/YoussfAh/X-sub010/internal/events"
	"github.com/YoussfAh/X-sub010/internal/testsupport"
)

func TestRepositoryAggregatesAndAudits(t *testing.T) {
	ctx := context.Background()
	pool := testsupport.StartPostgres(ctx, t)
	repo := NewRepository(pool)

	userID := uuid.NewString()
	require.NoError(t, repo.CreateUser(ctx, domain.User{
		ID:           userID,
		Email:        userID + "@example.com",
		Name:         "Integration",
		FeatureFlags: map[domain.FlagName]bool{domain.FlagAIAnalysis: true},
	}))

	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)
	for i := 2; i >= 0; i-- {
		_, err := pool.Exec(ctx,
			`INSERT INTO workouts (workout_id, user_id, name, exercises, performed_at, created_at) VALUES ($1,$2,$3,$4,$5,$6)`,
			uuid.NewString(), userID, "w", `[{"name":"Squat","sets":3,"reps":5,"weightKg":100}]`, base, base.Add(time.Duration(i)*time.Minute),
		)
		require.NoError(t, err)
	}

	svc, err := domain.NewService(repo, staticCompleter("Solid week."), domain.Options{})
	require.NoError(t, err)

	data, err := svc.AggregateUserData(ctx, userID, "all")
	require.NoError(t, err)
	require.Equal(t, 3, data.Summary.TotalWorkouts)
	require.True(t, data.Workouts[0].CreatedAt.Before(data.Workouts[1].CreatedAt))
	require.Equal(t, "Squat", data.Workouts[0].Exercises[0].Name)

	result, err := svc.RequestAnalysis(ctx, domain.AnalysisInput{UserID: userID, UserData: data, Prompt: "How am I doing?"})
	require.NoError(t, err)

	entries, err := svc.ListAnalyses(ctx, userID, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, result.AuditID, entries[0].ID)
	require.Equal(t, data.Summary, entries[0].DataUsed)

	var eventType, partitionKey string
	var payload []byte
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT event_type, partition_key, payload FROM outbox WHERE aggregate_id=$1`, result.AuditID,
	).Scan(&eventType, &partitionKey, &payload))
	require.Equal(t, events.TypeAnalysisCompleted, eventType)
	require.Equal(t, userID, partitionKey)

	var event events.AnalysisCompleted
	require.NoError(t, json.Unmarshal(payload, &event))
	require.Equal(t, 3, event.DataUsed.Workouts)
	require.NotContains(t, string(payload), "How am I doing?")
}

func TestListAuditBreaksTimestampTiesByInsertionOrder(t *testing.T) {
	ctx := context.Background()
	pool := testsupport.StartPostgres(ctx, t)
	repo := NewRepository(pool)

	userID := uuid.NewString()
	require.NoError(t, repo.CreateUser(ctx, domain.User{ID: userID, Email: userID + "@example.com"}))

	at := time.Now().UTC().Truncate(time.Microsecond)
	for _, id := range []string{"b-first", "a-second"} {
		require.NoError(t, repo.AppendAudit(ctx, domain.AuditEntry{
			ID:           id,
			UserID:       userID,
			Prompt:       "p",
			AnalysisType: domain.AnalysisGeneral,
			Response:     "r",
			CreatedAt:    at,
		}))
	}

	entries, err := repo.ListAudit(ctx, userID, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "a-second", entries[0].ID)
	require.Equal(t, "b-first", entries[1].ID)
}

func TestRepositoryMergeFeatureFlags(t *testing.T) {
	ctx := context.Background()
	pool := testsupport.StartPostgres(ctx, t)
	repo := NewRepository(pool)

	userID := uuid.NewString()
	require.NoError(t, repo.CreateUser(ctx, domain.User{
		ID:           userID,
		Email:        userID + "@example.com",
		FeatureFlags: map[domain.FlagName]bool{domain.FlagUploadMealImage: true},
	}))

	user, err := repo.MergeFeatureFlags(ctx, userID, map[domain.FlagName]bool{domain.FlagAIAnalysis: true})
	require.NoError(t, err)
	require.Equal(t, map[domain.FlagName]bool{
		domain.FlagUploadMealImage: true,
		domain.FlagAIAnalysis:      true,
	}, user.FeatureFlags)

	missing, err := repo.MergeFeatureFlags(ctx, uuid.NewString(), map[domain.FlagName]bool{domain.FlagAIAnalysis: true})
	require.NoError(t, err)
	require.Nil(t, missing)

	var count int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM outbox WHERE event_type=$1 AND aggregate_id=$2`, events.TypeFeatureFlagsUpdated, userID,
	).Scan(&count))
	require.Equal(t, 1, count)
}

func TestApplyAnalysisCompletedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	pool := testsupport.StartPostgres(ctx, t)
	repo := NewRepository(pool)

	now := time.Now().UTC()
	event := events.AnalysisCompleted{
		AuditID:      uuid.NewString(),
		UserID:       "user-1",
		AnalysisType: string(domain.AnalysisSleep),
		DataUsed:     events.DataUsed{SleepRecords: 4, Workouts: 1},
		CreatedAt:    now,
	}
	require.NoError(t, repo.ApplyAnalysisCompleted(ctx, event))
	require.NoError(t, repo.ApplyAnalysisCompleted(ctx, event))

	second := event
	second.AuditID = uuid.NewString()
	require.NoError(t, repo.ApplyAnalysisCompleted(ctx, second))

	usage, err := repo.ListUsage(ctx, "user-1", domain.UsageWindowStart(now, 1))
	require.NoError(t, err)
	require.Len(t, usage, 1)
	require.Equal(t, 2, usage[0].RequestCount)
	require.Equal(t, 10, usage[0].RecordsAnalyzed)
	require.Equal(t, domain.UsageDay(now), usage[0].Day)
}

type staticCompleter string

func (s staticCompleter) Complete(ctx context.Context, prompt string, actx domain.AnalysisContext) (string, error) {
	return string(s), nil
}
