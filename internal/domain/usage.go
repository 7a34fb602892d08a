package domain

import (
	"context"
	"time"
)

const (
	DefaultUsageDays = 7
	MaxUsageDays     = 90
)

// UsageRecord is the per-day analysis tally for one user and analysis type.
type UsageRecord struct {
	UserID          string       `json:"userId"`
	Day             time.Time    `json:"day"`
	AnalysisType    AnalysisType `json:"analysisType"`
	RequestCount    int          `json:"requestCount"`
	RecordsAnalyzed int          `json:"recordsAnalyzed"`
	LastRequestedAt time.Time    `json:"lastRequestedAt"`
}

// UsageStore reads the usage projection.
type UsageStore interface {
	// ListUsage returns records for days on or after since, ordered by day then analysis type.
	ListUsage(ctx context.Context, userID string, since time.Time) ([]UsageRecord, error)
}

// TotalRecords sums the counts in s.
func (s SummaryCounts) TotalRecords() int {
	return s.TotalWorkouts + s.TotalDietEntries + s.TotalSleepRecords + s.TotalWeightRecords + s.CompletedQuizzes
}

// UsageWindowStart returns midnight UTC of the first day in a window of days ending on now's day.
func UsageWindowStart(now time.Time, days int) time.Time {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return today.AddDate(0, 0, -(days - 1))
}

// UsageDay truncates ts to its UTC day.
func UsageDay(ts time.Time) time.Time {
	ts = ts.UTC()
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
}
