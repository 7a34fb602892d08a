package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/YoussfAh/X-sub010/internal/observability"
)

const (
	// DefaultAuditPageSize applies when ListFor is called without a limit.
	DefaultAuditPageSize = 20
	// MaxAuditPageSize caps ListFor page sizes.
	MaxAuditPageSize = 100
)

// AuditEntry records one successful analysis exchange. Entries are immutable once written.
type AuditEntry struct {
	ID           string        `json:"id"`
	UserID       string        `json:"userId"`
	Prompt       string        `json:"prompt"`
	AnalysisType AnalysisType  `json:"analysisType"`
	Response     string        `json:"response"`
	DataUsed     SummaryCounts `json:"dataUsed"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// AuditStore is append-only storage for audit entries.
type AuditStore interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	// ListAudit returns entries for userID newest first.
	ListAudit(ctx context.Context, userID string, limit, offset int) ([]AuditEntry, error)
}

// AuditLog assigns identity to audit entries and pages through them.
type AuditLog struct {
	store AuditStore
	now   func() time.Time
}

// NewAuditLog constructs an AuditLog. now defaults to time.Now.
func NewAuditLog(store AuditStore, now func() time.Time) *AuditLog {
	if now == nil {
		now = time.Now
	}
	return &AuditLog{store: store, now: now}
}

// Record stores entry with a fresh id and timestamp and returns the stored value.
func (l *AuditLog) Record(ctx context.Context, entry AuditEntry) (*AuditEntry, error) {
	if strings.TrimSpace(entry.UserID) == "" {
		return nil, validationError("audit entry requires a user id")
	}
	entry.ID = uuid.NewString()
	entry.CreatedAt = l.now().UTC()

	if err := l.store.AppendAudit(ctx, entry); err != nil {
		return nil, err
	}
	observability.RecordAuditRecorded(entry.CreatedAt)
	return &entry, nil
}

// ListFor pages through userID's entries newest first. A limit of zero or less selects
// DefaultAuditPageSize; larger limits are capped at MaxAuditPageSize.
func (l *AuditLog) ListFor(ctx context.Context, userID string, limit, offset int) ([]AuditEntry, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, validationError("user id is required")
	}
	if offset < 0 {
		return nil, validationError("offset must not be negative")
	}
	if limit <= 0 {
		limit = DefaultAuditPageSize
	}
	if limit > MaxAuditPageSize {
		limit = MaxAuditPageSize
	}

	entries, err := l.store.ListAudit(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return nonNil(entries), nil
}
