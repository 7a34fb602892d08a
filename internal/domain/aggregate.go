package domain

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/YoussfAh/X-sub010/internal/observability"
)

// Category names one kind of user record.
type Category string

const (
	CategoryWorkouts Category = "workouts"
	CategoryDiet     Category = "diet"
	CategorySleep    Category = "sleep"
	CategoryWeight   Category = "weight"
	CategoryQuizzes  Category = "quizzes"

	categoryUser Category = "user"
)

// AllCategories lists every category in payload order.
var AllCategories = []Category{CategoryWorkouts, CategoryDiet, CategorySleep, CategoryWeight, CategoryQuizzes}

// ParseCategories interprets a dataTypes value: empty or "all" selects every category,
// otherwise a comma-separated list. Unknown names are dropped so new client categories fail
// soft; a list with no names at all is a validation error.
func ParseCategories(raw string) ([]Category, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.EqualFold(trimmed, "all") {
		return append([]Category(nil), AllCategories...), nil
	}

	requested := make(map[Category]bool)
	named := 0
	for _, part := range strings.Split(trimmed, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		named++
		if name == "all" {
			return append([]Category(nil), AllCategories...), nil
		}
		requested[Category(name)] = true
	}
	if named == 0 {
		return nil, validationError("dataTypes must be \"all\" or a comma-separated list of categories")
	}

	out := make([]Category, 0, len(requested))
	for _, category := range AllCategories {
		if requested[category] {
			out = append(out, category)
		}
	}
	return out, nil
}

// SummaryCounts holds per-category record counts.
type SummaryCounts struct {
	TotalWorkouts      int `json:"totalWorkouts"`
	TotalDietEntries   int `json:"totalDietEntries"`
	TotalSleepRecords  int `json:"totalSleepRecords"`
	TotalWeightRecords int `json:"totalWeightRecords"`
	CompletedQuizzes   int `json:"completedQuizzes"`
}

// AggregatedUserData is the transient payload produced by Aggregate.
type AggregatedUserData struct {
	User      UserSummary     `json:"user"`
	DataTypes []Category      `json:"dataTypes"`
	Workouts  []WorkoutRecord `json:"workouts"`
	Diet      []DietEntry     `json:"diet"`
	Sleep     []SleepRecord   `json:"sleep"`
	Weight    []WeightRecord  `json:"weight"`
	Quizzes   []QuizResult    `json:"quizzes"`
	Summary   SummaryCounts   `json:"summary"`
}

// CountRecords derives summary counts from the sequences in d.
func (d *AggregatedUserData) CountRecords() SummaryCounts {
	return SummaryCounts{
		TotalWorkouts:      len(d.Workouts),
		TotalDietEntries:   len(d.Diet),
		TotalSleepRecords:  len(d.Sleep),
		TotalWeightRecords: len(d.Weight),
		CompletedQuizzes:   len(d.Quizzes),
	}
}

// RecordStore is the read side of the record database.
type RecordStore interface {
	// GetUser returns nil, nil when the user does not exist.
	GetUser(ctx context.Context, userID string) (*User, error)
	// The List methods return records ordered by creation time ascending.
	ListWorkouts(ctx context.Context, userID string) ([]WorkoutRecord, error)
	ListDietEntries(ctx context.Context, userID string) ([]DietEntry, error)
	ListSleepRecords(ctx context.Context, userID string) ([]SleepRecord, error)
	ListWeightRecords(ctx context.Context, userID string) ([]WeightRecord, error)
	ListQuizResults(ctx context.Context, userID string) ([]QuizResult, error)
}

// Aggregator collects a user's records across categories.
type Aggregator struct {
	store RecordStore
}

// NewAggregator constructs an Aggregator.
func NewAggregator(store RecordStore) *Aggregator {
	return &Aggregator{store: store}
}

// Aggregate fetches the requested categories for userID. Categories outside AllCategories are
// ignored. Any failed fetch fails the whole call with a *DataFetchError.
func (a *Aggregator) Aggregate(ctx context.Context, userID string, categories []Category) (*AggregatedUserData, error) {
	data, err := a.aggregate(ctx, userID, categories)
	observability.RecordAggregation(outcomeOf(err))
	return data, err
}

func (a *Aggregator) aggregate(ctx context.Context, userID string, categories []Category) (*AggregatedUserData, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, validationError("user id is required")
	}

	user, err := a.store.GetUser(ctx, userID)
	if err != nil {
		return nil, &DataFetchError{Category: categoryUser, Err: err}
	}
	if user == nil {
		return nil, ErrNotFound
	}

	wanted := make(map[Category]bool, len(categories))
	for _, category := range categories {
		wanted[category] = true
	}

	data := &AggregatedUserData{
		User: UserSummary{
			ID:          user.ID,
			Name:        user.Name,
			Email:       user.Email,
			MemberSince: user.CreatedAt,
		},
		DataTypes: make([]Category, 0, len(AllCategories)),
		Workouts:  []WorkoutRecord{},
		Diet:      []DietEntry{},
		Sleep:     []SleepRecord{},
		Weight:    []WeightRecord{},
		Quizzes:   []QuizResult{},
	}

	// Each goroutine owns exactly one field of data.
	g, gctx := errgroup.WithContext(ctx)
	for _, category := range AllCategories {
		if !wanted[category] {
			continue
		}
		data.DataTypes = append(data.DataTypes, category)
		g.Go(func() error {
			if err := a.fetch(gctx, userID, category, data); err != nil {
				return &DataFetchError{Category: category, Err: err}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	data.Summary = data.CountRecords()
	return data, nil
}

func (a *Aggregator) fetch(ctx context.Context, userID string, category Category, data *AggregatedUserData) error {
	switch category {
	case CategoryWorkouts:
		records, err := a.store.ListWorkouts(ctx, userID)
		if err != nil {
			return err
		}
		data.Workouts = nonNil(records)
	case CategoryDiet:
		records, err := a.store.ListDietEntries(ctx, userID)
		if err != nil {
			return err
		}
		data.Diet = nonNil(records)
	case CategorySleep:
		records, err := a.store.ListSleepRecords(ctx, userID)
		if err != nil {
			return err
		}
		data.Sleep = nonNil(records)
	case CategoryWeight:
		records, err := a.store.ListWeightRecords(ctx, userID)
		if err != nil {
			return err
		}
		data.Weight = nonNil(records)
	case CategoryQuizzes:
		records, err := a.store.ListQuizResults(ctx, userID)
		if err != nil {
			return err
		}
		data.Quizzes = nonNil(records)
	}
	return nil
}

func nonNil[T any](records []T) []T {
	if records == nil {
		return []T{}
	}
	return records
}

func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	return string(KindOf(err))
}
