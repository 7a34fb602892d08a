package memory

import (
	"time"

	"github.com/YoussfAh/X-sub010/internal/domain"
)

// DemoUserID identifies the user created by Seed.
const DemoUserID = "00000000-0000-0000-0000-000000000001"

// Seed populates r with a demo user and a week of records for local development.
func Seed(r *Repository, now time.Time) {
	now = now.UTC()
	start := now.AddDate(0, 0, -7)

	r.PutUser(domain.User{
		ID:           DemoUserID,
		Email:        "demo@example.com",
		Name:         "Demo User",
		FeatureFlags: map[domain.FlagName]bool{domain.FlagAIAnalysis: true},
		CreatedAt:    start.AddDate(0, -3, 0),
	})

	for day := 0; day < 7; day++ {
		at := start.AddDate(0, 0, day)
		if day%2 == 0 {
			r.AppendWorkout(domain.WorkoutRecord{
				UserID:         DemoUserID,
				Name:           "Full body",
				WorkoutType:    "strength",
				DurationMin:    45,
				CaloriesBurned: 320,
				Exercises: []domain.WorkoutExercise{
					{Name: "Back Squat", Sets: 3, Reps: 8, WeightKg: 80},
					{Name: "Bench Press", Sets: 3, Reps: 8, WeightKg: 60},
				},
				PerformedAt: at.Add(7 * time.Hour),
				CreatedAt:   at.Add(8 * time.Hour),
			})
		}
		r.AppendDietEntry(domain.DietEntry{
			UserID:      DemoUserID,
			MealType:    "lunch",
			Description: "Chicken, rice and greens",
			Calories:    650,
			ProteinG:    45,
			CarbsG:      70,
			FatG:        18,
			ConsumedAt:  at.Add(12 * time.Hour),
			CreatedAt:   at.Add(12 * time.Hour),
		})
		r.AppendSleepRecord(domain.SleepRecord{
			UserID:      DemoUserID,
			StartedAt:   at.Add(-time.Hour),
			EndedAt:     at.Add(6 * time.Hour),
			DurationMin: 420,
			Quality:     3 + day%3,
			CreatedAt:   at.Add(6 * time.Hour),
		})
	}

	bodyFat := 18.5
	r.AppendWeightRecord(domain.WeightRecord{
		UserID:     DemoUserID,
		WeightKg:   78.2,
		BodyFatPct: &bodyFat,
		MeasuredAt: now.Add(-24 * time.Hour),
		CreatedAt:  now.Add(-24 * time.Hour),
	})
	r.AppendQuizResult(domain.QuizResult{
		UserID:      DemoUserID,
		QuizID:      "onboarding",
		QuizTitle:   "Training background",
		Score:       8,
		MaxScore:    10,
		CompletedAt: start,
		CreatedAt:   start,
	})
}
