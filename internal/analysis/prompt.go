// Package analysis implements the backends that turn a prompt and aggregated user data into
// analysis text.
package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/YoussfAh/X-sub010/internal/domain"
)

const baseInstruction = "You are a fitness and nutrition coach. Answer using only the user data provided. " +
	"Be specific, cite numbers from the data, and keep the answer under 300 words. " +
	"If the data is insufficient, say what is missing."

var focusByType = map[domain.AnalysisType]string{
	domain.AnalysisGeneral:   "Give a balanced overview across training, diet, sleep and body weight.",
	domain.AnalysisWorkout:   "Focus on training volume, frequency and exercise progression.",
	domain.AnalysisNutrition: "Focus on calorie intake and macronutrient balance.",
	domain.AnalysisSleep:     "Focus on sleep duration, consistency and reported quality.",
	domain.AnalysisProgress:  "Focus on trends over time in body weight, strength and quiz scores.",
}

// SystemInstruction returns the instruction sent ahead of the user's prompt for t.
func SystemInstruction(t domain.AnalysisType) string {
	focus, ok := focusByType[t]
	if !ok {
		focus = focusByType[domain.AnalysisGeneral]
	}
	return baseInstruction + " " + focus
}

// BuildUserMessage embeds the aggregated data as JSON beneath the user's question.
func BuildUserMessage(prompt string, actx domain.AnalysisContext) (string, error) {
	data, err := json.Marshal(actx.UserData)
	if err != nil {
		return "", fmt.Errorf("encode user data: %w", err)
	}

	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(strings.TrimSpace(prompt))
	b.WriteString("\n\nAnalysis type: ")
	b.WriteString(string(actx.Type))
	b.WriteString("\n\nUser data (JSON):\n")
	b.Write(data)
	return b.String(), nil
}
