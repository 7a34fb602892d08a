package outbox

import "github.com/YoussfAh/X-sub010/internal/events"

const analysisCompletedSchema = `{
  "type": "object",
  "title": "AnalysisCompleted",
  "properties": {
    "audit_id": {"type": "string"},
    "user_id": {"type": "string"},
    "analysis_type": {"type": "string"},
    "data_used": {
      "type": "object",
      "properties": {
        "workouts": {"type": "integer"},
        "diet_entries": {"type": "integer"},
        "sleep_records": {"type": "integer"},
        "weight_records": {"type": "integer"},
        "quizzes": {"type": "integer"}
      },
      "required": ["workouts", "diet_entries", "sleep_records", "weight_records", "quizzes"],
      "additionalProperties": false
    },
    "created_at": {"type": "string", "format": "date-time"}
  },
  "required": ["audit_id", "user_id", "analysis_type", "data_used", "created_at"],
  "additionalProperties": false
}`

const featureFlagsUpdatedSchema = `{
  "type": "object",
  "title": "FeatureFlagsUpdated",
  "properties": {
    "user_id": {"type": "string"},
    "changed": {"type": "object", "additionalProperties": {"type": "boolean"}},
    "updated_at": {"type": "string", "format": "date-time"}
  },
  "required": ["user_id", "changed", "updated_at"],
  "additionalProperties": false
}`

// schemaFor returns the JSON schema registered for eventType.
func schemaFor(eventType string) (string, bool) {
	switch eventType {
	case events.TypeAnalysisCompleted:
		return analysisCompletedSchema, true
	case events.TypeFeatureFlagsUpdated:
		return featureFlagsUpdatedSchema, true
	}
	return "", false
}
