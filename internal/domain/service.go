// Package domain implements the insights core: the feature flag gate, the user data
// aggregator, the analysis forwarder and its audit log.
package domain

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Repository captures every persistence operation the service needs.
type Repository interface {
	RecordStore
	FlagStore
	AuditStore
	UsageStore
}

// Options tunes a Service.
type Options struct {
	// FlagDefaults applies to flags a user has never had set.
	FlagDefaults    map[string]bool
	AnalysisTimeout time.Duration
	Logger          zerolog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Service orchestrates insights workflows.
type Service struct {
	repo       Repository
	gate       *Gate
	aggregator *Aggregator
	forwarder  *Forwarder
	audit      *AuditLog
	now        func() time.Time
}

// NewService constructs a Service backed by repo and completer.
func NewService(repo Repository, completer Completer, opts Options) (*Service, error) {
	gate, err := NewGate(repo, opts.FlagDefaults)
	if err != nil {
		return nil, err
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	audit := NewAuditLog(repo, now)

	return &Service{
		repo:       repo,
		gate:       gate,
		aggregator: NewAggregator(repo),
		forwarder:  NewForwarder(gate, completer, audit, opts.AnalysisTimeout, opts.Logger),
		audit:      audit,
		now:        now,
	}, nil
}

// Gate exposes the feature flag gate.
func (s *Service) Gate() *Gate {
	return s.gate
}

// AggregateUserData parses dataTypes and aggregates the selected categories for userID.
func (s *Service) AggregateUserData(ctx context.Context, userID, dataTypes string) (*AggregatedUserData, error) {
	categories, err := ParseCategories(dataTypes)
	if err != nil {
		return nil, err
	}
	return s.aggregator.Aggregate(ctx, userID, categories)
}

// AnalysisInput captures an analysis request from the API layer.
type AnalysisInput struct {
	UserID       string
	UserData     *AggregatedUserData
	Prompt       string
	AnalysisType string
}

// RequestAnalysis forwards input to the analysis backend.
func (s *Service) RequestAnalysis(ctx context.Context, input AnalysisInput) (*AnalysisResult, error) {
	return s.forwarder.RequestAnalysis(ctx, input.UserID, input.UserData, input.Prompt, input.AnalysisType)
}

// ListAnalyses returns userID's audit entries newest first.
func (s *Service) ListAnalyses(ctx context.Context, userID string, limit, offset int) ([]AuditEntry, error) {
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.audit.ListFor(ctx, userID, limit, offset)
}

// Usage returns userID's per-day analysis usage over the last days days, today included.
func (s *Service) Usage(ctx context.Context, userID string, days int) ([]UsageRecord, error) {
	if days < 0 {
		return nil, validationError("days must not be negative")
	}
	if days == 0 {
		days = DefaultUsageDays
	}
	if days > MaxUsageDays {
		return nil, validationError("days must be at most %d", MaxUsageDays)
	}
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}

	records, err := s.repo.ListUsage(ctx, userID, UsageWindowStart(s.now(), days))
	if err != nil {
		return nil, err
	}
	return nonNil(records), nil
}

// FeatureFlags resolves every known flag for userID.
func (s *Service) FeatureFlags(ctx context.Context, userID string) (map[FlagName]bool, error) {
	return s.gate.Flags(ctx, userID)
}

// UpdateFeatureFlags merges partial into userID's flags and returns the resolved result.
func (s *Service) UpdateFeatureFlags(ctx context.Context, userID string, partial map[string]bool) (map[FlagName]bool, error) {
	user, err := s.gate.SetFlags(ctx, userID, partial)
	if err != nil {
		return nil, err
	}
	return s.gate.Resolve(user), nil
}

func (s *Service) requireUser(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return validationError("user id is required")
	}
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrNotFound
	}
	return nil
}
