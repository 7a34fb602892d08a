package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/YoussfAh/X-sub010/internal/observability"
)

// AnalysisType selects the focus of an analysis.
type AnalysisType string

const (
	AnalysisGeneral   AnalysisType = "general"
	AnalysisWorkout   AnalysisType = "workout"
	AnalysisNutrition AnalysisType = "nutrition"
	AnalysisSleep     AnalysisType = "sleep"
	AnalysisProgress  AnalysisType = "progress"
)

// AnalysisTypes lists the accepted analysis types.
var AnalysisTypes = []AnalysisType{AnalysisGeneral, AnalysisWorkout, AnalysisNutrition, AnalysisSleep, AnalysisProgress}

// ParseAnalysisType maps raw to an AnalysisType; empty means general.
func ParseAnalysisType(raw string) (AnalysisType, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "" {
		return AnalysisGeneral, nil
	}
	for _, t := range AnalysisTypes {
		if string(t) == name {
			return t, nil
		}
	}
	return "", validationError("unknown analysis type %q", raw)
}

// AnalysisContext is what the backend sees besides the prompt.
type AnalysisContext struct {
	Type     AnalysisType
	UserData *AggregatedUserData
}

// Completer is the analysis backend: a prompt plus context in, text out.
// Implementations should return *UpstreamError for backend failures.
type Completer interface {
	Complete(ctx context.Context, prompt string, actx AnalysisContext) (string, error)
}

// AnalysisResult is returned to the caller after a successful exchange.
type AnalysisResult struct {
	Response string        `json:"response"`
	DataUsed SummaryCounts `json:"dataUsed"`
	AuditID  string        `json:"auditId"`
}

// Forwarder sends aggregated data and a prompt to the analysis backend and audits the exchange.
type Forwarder struct {
	gate      *Gate
	completer Completer
	audit     *AuditLog
	timeout   time.Duration
	logger    zerolog.Logger
}

// NewForwarder constructs a Forwarder. A zero timeout leaves the backend call bounded only by ctx.
func NewForwarder(gate *Gate, completer Completer, audit *AuditLog, timeout time.Duration, logger zerolog.Logger) *Forwarder {
	return &Forwarder{
		gate:      gate,
		completer: completer,
		audit:     audit,
		timeout:   timeout,
		logger:    logger,
	}
}

// RequestAnalysis performs one backend call for userID. Nothing is sent to the backend unless
// the aiAnalysis flag is on and the input is valid, and only successful exchanges are audited.
func (f *Forwarder) RequestAnalysis(ctx context.Context, userID string, data *AggregatedUserData, prompt, analysisType string) (*AnalysisResult, error) {
	result, kind, err := f.requestAnalysis(ctx, userID, data, prompt, analysisType)
	label := string(kind)
	if label == "" {
		label = "invalid"
	}
	observability.RecordAnalysis(label, outcomeOf(err))
	return result, err
}

func (f *Forwarder) requestAnalysis(ctx context.Context, userID string, data *AggregatedUserData, prompt, rawType string) (*AnalysisResult, AnalysisType, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, "", validationError("user id is required")
	}
	if _, err := f.gate.Require(ctx, userID, FlagAIAnalysis); err != nil {
		return nil, "", err
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, "", validationError("prompt is required")
	}
	analysisType, err := ParseAnalysisType(rawType)
	if err != nil {
		return nil, "", err
	}
	if err := validatePayload(userID, data); err != nil {
		return nil, analysisType, err
	}

	response, err := f.complete(ctx, prompt, AnalysisContext{Type: analysisType, UserData: data})
	if err != nil {
		return nil, analysisType, err
	}

	entry, err := f.audit.Record(ctx, AuditEntry{
		UserID:       userID,
		Prompt:       prompt,
		AnalysisType: analysisType,
		Response:     response,
		DataUsed:     data.Summary,
	})
	if err != nil {
		return nil, analysisType, err
	}

	return &AnalysisResult{
		Response: response,
		DataUsed: entry.DataUsed,
		AuditID:  entry.ID,
	}, analysisType, nil
}

func (f *Forwarder) complete(ctx context.Context, prompt string, actx AnalysisContext) (string, error) {
	callCtx := ctx
	if f.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := f.completer.Complete(callCtx, prompt, actx)
	observability.ObserveUpstreamLatency(time.Since(start))

	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return "", ctx.Err()
		}
		upstream := sanitizeUpstream(err, callCtx)
		f.logger.Warn().
			Str("analysis_type", string(actx.Type)).
			Int("status", upstream.Status).
			Bool("timeout", upstream.Timeout).
			Str("error", upstream.Message).
			Msg("analysis backend call failed")
		return "", upstream
	}
	if strings.TrimSpace(text) == "" {
		return "", &UpstreamError{Message: "analysis backend returned an empty response"}
	}
	return text, nil
}

func sanitizeUpstream(err error, callCtx context.Context) *UpstreamError {
	var upstream *UpstreamError
	switch {
	case errors.As(err, &upstream):
		return upstream
	case errors.Is(err, context.DeadlineExceeded), errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return &UpstreamError{Message: "analysis backend timed out", Timeout: true}
	default:
		return &UpstreamError{Message: "analysis backend request failed"}
	}
}

// validatePayload rejects payloads that belong to another user or whose summary disagrees with
// its own sequences, since the summary is copied into the audit log verbatim.
func validatePayload(userID string, data *AggregatedUserData) error {
	if data == nil {
		return validationError("userData is required")
	}
	if data.User.ID != "" && data.User.ID != userID {
		return validationError("userData belongs to a different user")
	}
	if data.Summary != data.CountRecords() {
		return validationError("userData summary does not match its records")
	}
	return nil
}
