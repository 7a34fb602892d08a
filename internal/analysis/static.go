package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/YoussfAh/X-sub010/internal/domain"
)

// StaticCompleter answers without any network call. It backs local development and demos
// where no provider key is configured.
type StaticCompleter struct{}

// NewStaticCompleter returns a StaticCompleter.
func NewStaticCompleter() *StaticCompleter {
	return &StaticCompleter{}
}

// Complete summarises the record counts it was given.
func (StaticCompleter) Complete(ctx context.Context, prompt string, actx domain.AnalysisContext) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var counts domain.SummaryCounts
	if actx.UserData != nil {
		counts = actx.UserData.Summary
	}

	parts := []string{
		fmt.Sprintf("%d workouts", counts.TotalWorkouts),
		fmt.Sprintf("%d diet entries", counts.TotalDietEntries),
		fmt.Sprintf("%d sleep records", counts.TotalSleepRecords),
		fmt.Sprintf("%d weight records", counts.TotalWeightRecords),
		fmt.Sprintf("%d quizzes", counts.CompletedQuizzes),
	}
	return fmt.Sprintf("%s analysis of %s. %s",
		capitalize(string(actx.Type)), strings.Join(parts, ", "), SystemInstruction(actx.Type)), nil
}

func capitalize(s string) string {
	if s == "" {
		return "General"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

var _ domain.Completer = StaticCompleter{}
