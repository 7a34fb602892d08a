package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/YoussfAh/X-sub010/internal/events"
)

// UsageProjector applies analysis.completed events to the usage projection.
// Implementations must be idempotent per audit id.
type UsageProjector interface {
	ApplyAnalysisCompleted(ctx context.Context, event events.AnalysisCompleted) error
}

// UsageProjectionHandler maintains analysis_usage from analysis.completed events.
type UsageProjectionHandler struct {
	projector UsageProjector
}

// NewUsageProjectionHandler constructs a UsageProjectionHandler.
func NewUsageProjectionHandler(projector UsageProjector) *UsageProjectionHandler {
	return &UsageProjectionHandler{projector: projector}
}

// Handle ignores every event type except analysis.completed.
func (h *UsageProjectionHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != events.TypeAnalysisCompleted {
		return nil
	}
	var evt events.AnalysisCompleted
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		return fmt.Errorf("decode %s: %w", msg.EventType, err)
	}
	if evt.AuditID == "" || evt.UserID == "" {
		return fmt.Errorf("%s event is missing audit_id or user_id", msg.EventType)
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = msg.Timestamp.UTC()
	}
	return h.projector.ApplyAnalysisCompleted(ctx, evt)
}

// FlagChangeLogger records feature flag changes in the service log.
type FlagChangeLogger struct {
	logger zerolog.Logger
}

// NewFlagChangeLogger constructs a FlagChangeLogger.
func NewFlagChangeLogger(logger zerolog.Logger) *FlagChangeLogger {
	return &FlagChangeLogger{logger: logger}
}

// Handle logs feature_flags.updated events and ignores the rest.
func (h *FlagChangeLogger) Handle(_ context.Context, msg Message) error {
	if msg.EventType != events.TypeFeatureFlagsUpdated {
		return nil
	}
	var evt events.FeatureFlagsUpdated
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		return fmt.Errorf("decode %s: %w", msg.EventType, err)
	}
	changed := zerolog.Dict()
	for name, enabled := range evt.Changed {
		changed = changed.Bool(name, enabled)
	}
	h.logger.Info().
		Str("user_id", evt.UserID).
		Dict("changed", changed).
		Time("updated_at", evt.UpdatedAt).
		Msg("feature flags updated")
	return nil
}

// Fanout passes every message to each handler in order and stops at the first error.
type Fanout []Handler

// Handle implements Handler.
func (f Fanout) Handle(ctx context.Context, msg Message) error {
	for _, h := range f {
		if err := h.Handle(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}
