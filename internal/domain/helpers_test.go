package domain_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/YoussfAh/X-sub010/internal/domain"
	"github.com/YoussfAh/X-sub010/internal/persistence/memory"
)

var errStoreDown = errors.New("store unavailable")

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// instrumentedStore counts list calls and can fail a chosen category.
type instrumentedStore struct {
	*memory.Repository

	mu        sync.Mutex
	listCalls int
	failOn    domain.Category
	userErr   error
	appendErr error
}

func newInstrumentedStore() *instrumentedStore {
	return &instrumentedStore{Repository: memory.NewRepository()}
}

func (s *instrumentedStore) touch(category domain.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.failOn == category {
		return errStoreDown
	}
	return nil
}

func (s *instrumentedStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls
}

func (s *instrumentedStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	if s.userErr != nil {
		return nil, s.userErr
	}
	return s.Repository.GetUser(ctx, userID)
}

func (s *instrumentedStore) ListWorkouts(ctx context.Context, userID string) ([]domain.WorkoutRecord, error) {
	if err := s.touch(domain.CategoryWorkouts); err != nil {
		return nil, err
	}
	return s.Repository.ListWorkouts(ctx, userID)
}

func (s *instrumentedStore) ListDietEntries(ctx context.Context, userID string) ([]domain.DietEntry, error) {
	if err := s.touch(domain.CategoryDiet); err != nil {
		return nil, err
	}
	return s.Repository.ListDietEntries(ctx, userID)
}

func (s *instrumentedStore) ListSleepRecords(ctx context.Context, userID string) ([]domain.SleepRecord, error) {
	if err := s.touch(domain.CategorySleep); err != nil {
		return nil, err
	}
	return s.Repository.ListSleepRecords(ctx, userID)
}

func (s *instrumentedStore) ListWeightRecords(ctx context.Context, userID string) ([]domain.WeightRecord, error) {
	if err := s.touch(domain.CategoryWeight); err != nil {
		return nil, err
	}
	return s.Repository.ListWeightRecords(ctx, userID)
}

func (s *instrumentedStore) ListQuizResults(ctx context.Context, userID string) ([]domain.QuizResult, error) {
	if err := s.touch(domain.CategoryQuizzes); err != nil {
		return nil, err
	}
	return s.Repository.ListQuizResults(ctx, userID)
}

func (s *instrumentedStore) AppendAudit(ctx context.Context, entry domain.AuditEntry) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	return s.Repository.AppendAudit(ctx, entry)
}

func (s *instrumentedStore) auditCount(t *testing.T, userID string) int {
	t.Helper()
	entries, err := s.Repository.ListAudit(context.Background(), userID, domain.MaxAuditPageSize, 0)
	require.NoError(t, err)
	return len(entries)
}

// fakeCompleter records calls and returns a canned response.
type fakeCompleter struct {
	mu       sync.Mutex
	calls    int
	prompt   string
	actx     domain.AnalysisContext
	response string
	err      error
	block    bool
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string, actx domain.AnalysisContext) (string, error) {
	f.mu.Lock()
	f.calls++
	f.prompt = prompt
	f.actx = actx
	block, response, err := f.block, f.response, f.err
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return response, err
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// seedU1 creates a user with three workouts and the aiAnalysis flag on.
func seedU1(store *instrumentedStore) {
	store.PutUser(domain.User{
		ID:           "U1",
		Name:         "Una",
		Email:        "una@example.com",
		FeatureFlags: map[domain.FlagName]bool{domain.FlagAIAnalysis: true},
		CreatedAt:    fixedNow.AddDate(-1, 0, 0),
	})
	for i := 0; i < 3; i++ {
		store.AppendWorkout(domain.WorkoutRecord{
			ID:          "w" + string(rune('1'+i)),
			UserID:      "U1",
			Name:        "Session",
			WorkoutType: "strength",
			DurationMin: 30 + i,
			PerformedAt: fixedNow.Add(time.Duration(i) * time.Hour),
			CreatedAt:   fixedNow.Add(time.Duration(i) * time.Hour),
		})
	}
}

func newService(t *testing.T, store *instrumentedStore, completer domain.Completer, timeout time.Duration) *domain.Service {
	t.Helper()
	svc, err := domain.NewService(store, completer, domain.Options{
		AnalysisTimeout: timeout,
		Logger:          zerolog.Nop(),
		Now:             func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return svc
}
