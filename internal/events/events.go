// Package events defines the payloads the insights service publishes through its outbox.
package events

import "time"

const (
	TypeAnalysisCompleted   = "analysis.completed"
	TypeFeatureFlagsUpdated = "feature_flags.updated"

	TopicAnalysisEvents    = "analysis_events"
	TopicFeatureFlagEvents = "feature_flag_events"
)

// DataUsed mirrors the summary counts of the payload that was analysed.
type DataUsed struct {
	Workouts      int `json:"workouts"`
	DietEntries   int `json:"diet_entries"`
	SleepRecords  int `json:"sleep_records"`
	WeightRecords int `json:"weight_records"`
	Quizzes       int `json:"quizzes"`
}

// Total sums every category.
func (d DataUsed) Total() int {
	return d.Workouts + d.DietEntries + d.SleepRecords + d.WeightRecords + d.Quizzes
}

// AnalysisCompleted is emitted once per audited analysis. Prompt and response text stay in the
// audit table.
type AnalysisCompleted struct {
	AuditID      string    `json:"audit_id"`
	UserID       string    `json:"user_id"`
	AnalysisType string    `json:"analysis_type"`
	DataUsed     DataUsed  `json:"data_used"`
	CreatedAt    time.Time `json:"created_at"`
}

// FeatureFlagsUpdated carries the flags changed by an administrative update.
type FeatureFlagsUpdated struct {
	UserID    string          `json:"user_id"`
	Changed   map[string]bool `json:"changed"`
	UpdatedAt time.Time       `json:"updated_at"`
}
