package domain

import "time"

// User is the account whose records are aggregated. Credentials live with the identity
// provider; only the fields the insights core reads are modelled here.
type User struct {
	ID           string            `json:"id"`
	Email        string            `json:"email"`
	Name         string            `json:"name"`
	FeatureFlags map[FlagName]bool `json:"featureFlags"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// UserSummary is the user section of an aggregation payload.
type UserSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	MemberSince time.Time `json:"memberSince"`
}

// WorkoutExercise is one movement inside a logged workout.
type WorkoutExercise struct {
	Name     string  `json:"name"`
	Sets     int     `json:"sets"`
	Reps     int     `json:"reps"`
	WeightKg float64 `json:"weightKg"`
}

// WorkoutRecord is a completed training session.
type WorkoutRecord struct {
	ID             string            `json:"id"`
	UserID         string            `json:"userId"`
	Name           string            `json:"name"`
	WorkoutType    string            `json:"workoutType"`
	DurationMin    int               `json:"durationMin"`
	CaloriesBurned int               `json:"caloriesBurned"`
	Exercises      []WorkoutExercise `json:"exercises"`
	Notes          string            `json:"notes,omitempty"`
	PerformedAt    time.Time         `json:"performedAt"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// DietEntry is a logged meal or snack.
type DietEntry struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	MealType    string    `json:"mealType"`
	Description string    `json:"description"`
	Calories    int       `json:"calories"`
	ProteinG    float64   `json:"proteinG"`
	CarbsG      float64   `json:"carbsG"`
	FatG        float64   `json:"fatG"`
	ConsumedAt  time.Time `json:"consumedAt"`
	CreatedAt   time.Time `json:"createdAt"`
}

// SleepRecord is one night (or nap) of sleep.
type SleepRecord struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	StartedAt   time.Time `json:"startedAt"`
	EndedAt     time.Time `json:"endedAt"`
	DurationMin int       `json:"durationMin"`
	Quality     int       `json:"quality"` // 1 (poor) to 5 (great)
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// WeightRecord is a body weight measurement.
type WeightRecord struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	WeightKg   float64   `json:"weightKg"`
	BodyFatPct *float64  `json:"bodyFatPct,omitempty"`
	MeasuredAt time.Time `json:"measuredAt"`
	CreatedAt  time.Time `json:"createdAt"`
}

// QuizResult is a completed questionnaire.
type QuizResult struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	QuizID      string    `json:"quizId"`
	QuizTitle   string    `json:"quizTitle"`
	Score       int       `json:"score"`
	MaxScore    int       `json:"maxScore"`
	CompletedAt time.Time `json:"completedAt"`
	CreatedAt   time.Time `json:"createdAt"`
}
