// Package memory provides an in-memory repository for local development and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/YoussfAh/X-sub010/internal/domain"
)

// Repository keeps users, records and audit entries in memory. Values handed out are copies.
type Repository struct {
	mu       sync.RWMutex
	now      func() time.Time
	users    map[string]domain.User
	workouts map[string][]domain.WorkoutRecord
	diet     map[string][]domain.DietEntry
	sleep    map[string][]domain.SleepRecord
	weight   map[string][]domain.WeightRecord
	quizzes  map[string][]domain.QuizResult
	audit    map[string][]domain.AuditEntry
}

var _ domain.Repository = (*Repository)(nil)

// NewRepository constructs an empty Repository.
func NewRepository() *Repository {
	return &Repository{
		now:      time.Now,
		users:    make(map[string]domain.User),
		workouts: make(map[string][]domain.WorkoutRecord),
		diet:     make(map[string][]domain.DietEntry),
		sleep:    make(map[string][]domain.SleepRecord),
		weight:   make(map[string][]domain.WeightRecord),
		quizzes:  make(map[string][]domain.QuizResult),
		audit:    make(map[string][]domain.AuditEntry),
	}
}

// PutUser inserts or replaces a user and returns the stored copy.
func (r *Repository) PutUser(user domain.User) domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()

	if strings.TrimSpace(user.ID) == "" {
		user.ID = uuid.NewString()
	}
	now := r.now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}
	user.FeatureFlags = copyFlags(user.FeatureFlags)
	r.users[user.ID] = user
	return copyUser(user)
}

// AppendWorkout stores a workout for its user.
func (r *Repository) AppendWorkout(record domain.WorkoutRecord) domain.WorkoutRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	record.ID, record.CreatedAt = r.identity(record.ID, record.CreatedAt)
	record.Exercises = append([]domain.WorkoutExercise(nil), record.Exercises...)
	r.workouts[record.UserID] = append(r.workouts[record.UserID], record)
	return copyWorkout(record)
}

// AppendDietEntry stores a diet entry for its user.
func (r *Repository) AppendDietEntry(entry domain.DietEntry) domain.DietEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry.ID, entry.CreatedAt = r.identity(entry.ID, entry.CreatedAt)
	r.diet[entry.UserID] = append(r.diet[entry.UserID], entry)
	return entry
}

// AppendSleepRecord stores a sleep record for its user.
func (r *Repository) AppendSleepRecord(record domain.SleepRecord) domain.SleepRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	record.ID, record.CreatedAt = r.identity(record.ID, record.CreatedAt)
	r.sleep[record.UserID] = append(r.sleep[record.UserID], record)
	return record
}

// AppendWeightRecord stores a weight measurement for its user.
func (r *Repository) AppendWeightRecord(record domain.WeightRecord) domain.WeightRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	record.ID, record.CreatedAt = r.identity(record.ID, record.CreatedAt)
	record.BodyFatPct = copyFloat(record.BodyFatPct)
	r.weight[record.UserID] = append(r.weight[record.UserID], record)
	return copyWeight(record)
}

// AppendQuizResult stores a quiz result for its user.
func (r *Repository) AppendQuizResult(result domain.QuizResult) domain.QuizResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	result.ID, result.CreatedAt = r.identity(result.ID, result.CreatedAt)
	r.quizzes[result.UserID] = append(r.quizzes[result.UserID], result)
	return result
}

func (r *Repository) identity(id string, createdAt time.Time) (string, time.Time) {
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
	}
	if createdAt.IsZero() {
		createdAt = r.now().UTC()
	}
	return id, createdAt
}

// GetUser implements domain.RecordStore.
func (r *Repository) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[userID]
	if !ok {
		return nil, nil
	}
	out := copyUser(user)
	return &out, nil
}

// MergeFeatureFlags implements domain.FlagStore.
func (r *Repository) MergeFeatureFlags(ctx context.Context, userID string, flags map[domain.FlagName]bool) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return nil, nil
	}
	merged := copyFlags(user.FeatureFlags)
	for name, enabled := range flags {
		merged[name] = enabled
	}
	user.FeatureFlags = merged
	user.UpdatedAt = r.now().UTC()
	r.users[userID] = user

	out := copyUser(user)
	return &out, nil
}

// ListWorkouts implements domain.RecordStore.
func (r *Repository) ListWorkouts(ctx context.Context, userID string) ([]domain.WorkoutRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.WorkoutRecord, 0, len(r.workouts[userID]))
	for _, record := range r.workouts[userID] {
		out = append(out, copyWorkout(record))
	}
	sortByCreated(out, func(w domain.WorkoutRecord) time.Time { return w.CreatedAt })
	return out, nil
}

// ListDietEntries implements domain.RecordStore.
func (r *Repository) ListDietEntries(ctx context.Context, userID string) ([]domain.DietEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := append([]domain.DietEntry{}, r.diet[userID]...)
	sortByCreated(out, func(d domain.DietEntry) time.Time { return d.CreatedAt })
	return out, nil
}

// ListSleepRecords implements domain.RecordStore.
func (r *Repository) ListSleepRecords(ctx context.Context, userID string) ([]domain.SleepRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := append([]domain.SleepRecord{}, r.sleep[userID]...)
	sortByCreated(out, func(s domain.SleepRecord) time.Time { return s.CreatedAt })
	return out, nil
}

// ListWeightRecords implements domain.RecordStore.
func (r *Repository) ListWeightRecords(ctx context.Context, userID string) ([]domain.WeightRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.WeightRecord, 0, len(r.weight[userID]))
	for _, record := range r.weight[userID] {
		out = append(out, copyWeight(record))
	}
	sortByCreated(out, func(w domain.WeightRecord) time.Time { return w.CreatedAt })
	return out, nil
}

// ListQuizResults implements domain.RecordStore.
func (r *Repository) ListQuizResults(ctx context.Context, userID string) ([]domain.QuizResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := append([]domain.QuizResult{}, r.quizzes[userID]...)
	sortByCreated(out, func(q domain.QuizResult) time.Time { return q.CreatedAt })
	return out, nil
}

// AppendAudit implements domain.AuditStore.
func (r *Repository) AppendAudit(ctx context.Context, entry domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.audit[entry.UserID] = append(r.audit[entry.UserID], entry)
	return nil
}

// ListAudit implements domain.AuditStore.
func (r *Repository) ListAudit(ctx context.Context, userID string, limit, offset int) ([]domain.AuditEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := r.audit[userID]
	out := make([]domain.AuditEntry, 0, limit)
	// Stored oldest first; walk backwards for newest first.
	for i := len(entries) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, entries[i])
	}
	return out, nil
}

// ListUsage implements domain.UsageStore by tallying audit entries.
func (r *Repository) ListUsage(ctx context.Context, userID string, since time.Time) ([]domain.UsageRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type key struct {
		day          time.Time
		analysisType domain.AnalysisType
	}
	tallies := make(map[key]*domain.UsageRecord)
	for _, entry := range r.audit[userID] {
		if entry.CreatedAt.Before(since) {
			continue
		}
		k := key{day: domain.UsageDay(entry.CreatedAt), analysisType: entry.AnalysisType}
		record, ok := tallies[k]
		if !ok {
			record = &domain.UsageRecord{UserID: userID, Day: k.day, AnalysisType: k.analysisType}
			tallies[k] = record
		}
		record.RequestCount++
		record.RecordsAnalyzed += entry.DataUsed.TotalRecords()
		if entry.CreatedAt.After(record.LastRequestedAt) {
			record.LastRequestedAt = entry.CreatedAt
		}
	}

	out := make([]domain.UsageRecord, 0, len(tallies))
	for _, record := range tallies {
		out = append(out, *record)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Day.Equal(out[j].Day) {
			return out[i].Day.Before(out[j].Day)
		}
		return out[i].AnalysisType < out[j].AnalysisType
	})
	return out, nil
}

func sortByCreated[T any](records []T, createdAt func(T) time.Time) {
	sort.SliceStable(records, func(i, j int) bool {
		return createdAt(records[i]).Before(createdAt(records[j]))
	})
}

func copyUser(user domain.User) domain.User {
	user.FeatureFlags = copyFlags(user.FeatureFlags)
	return user
}

func copyFlags(flags map[domain.FlagName]bool) map[domain.FlagName]bool {
	out := make(map[domain.FlagName]bool, len(flags))
	for name, enabled := range flags {
		out[name] = enabled
	}
	return out
}

func copyWorkout(record domain.WorkoutRecord) domain.WorkoutRecord {
	record.Exercises = append([]domain.WorkoutExercise(nil), record.Exercises...)
	return record
}

func copyWeight(record domain.WeightRecord) domain.WeightRecord {
	record.BodyFatPct = copyFloat(record.BodyFatPct)
	return record
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
