package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/YoussfAh/X-sub010/internal/auth"
	"github.com/YoussfAh/X-sub010/internal/domain"
)

const maxBodyBytes = 4 << 20

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
	logger  zerolog.Logger
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, logger zerolog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) userData(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authorize(w, r, auth.ScopeInsightsRead)
	if !ok {
		return
	}

	// An absent dataTypes means all; a present one must name at least one category.
	dataTypes := "all"
	if values, present := r.URL.Query()["dataTypes"]; present {
		dataTypes = strings.Join(values, ",")
		if strings.TrimSpace(dataTypes) == "" {
			writeError(w, http.StatusBadRequest, string(domain.KindValidation), "dataTypes must not be empty")
			return
		}
	}

	data, err := h.service.AggregateUserData(r.Context(), userID, dataTypes)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (h *Handler) analyze(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authorize(w, r, auth.ScopeInsightsAnalyze)
	if !ok {
		return
	}

	var req AnalyzeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, string(domain.KindValidation), err.Error())
		return
	}

	result, err := h.service.RequestAnalysis(r.Context(), domain.AnalysisInput{
		UserID:       userID,
		UserData:     req.UserData,
		Prompt:       req.Prompt,
		AnalysisType: req.AnalysisType,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) listAnalyses(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authorize(w, r, auth.ScopeInsightsRead)
	if !ok {
		return
	}

	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, string(domain.KindValidation), err.Error())
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, string(domain.KindValidation), err.Error())
		return
	}

	entries, err := h.service.ListAnalyses(r.Context(), userID, limit, offset)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	items := make([]AuditEntryView, 0, len(entries))
	for _, entry := range entries {
		items = append(items, toAuditEntryView(entry))
	}
	writeJSON(w, http.StatusOK, ListAnalysesResponse{Items: items, Limit: effectiveLimit(limit), Offset: offset})
}

func (h *Handler) usage(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authorize(w, r, auth.ScopeInsightsRead)
	if !ok {
		return
	}

	days, err := queryInt(r, "days", domain.DefaultUsageDays)
	if err != nil {
		writeError(w, http.StatusBadRequest, string(domain.KindValidation), err.Error())
		return
	}
	if days == 0 {
		days = domain.DefaultUsageDays
	}

	records, err := h.service.Usage(r.Context(), userID, days)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UsageResponse{Days: days, Items: records})
}

func (h *Handler) featureFlags(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	userID := chi.URLParam(r, "userID")
	if !claims.CanAccessUser(userID) {
		writeError(w, http.StatusForbidden, string(domain.KindPermissionDenied), "cannot read another user's feature flags")
		return
	}
	if !claims.HasScope(auth.ScopeInsightsRead) && !claims.IsAdmin() {
		writeError(w, http.StatusForbidden, string(domain.KindPermissionDenied), "scope insights:read required")
		return
	}

	flags, err := h.service.FeatureFlags(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FeatureFlagsResponse{UserID: userID, Flags: flags})
}

func (h *Handler) updateFeatureFlags(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	if !claims.IsAdmin() {
		writeError(w, http.StatusForbidden, string(domain.KindPermissionDenied), "scope admin required")
		return
	}
	userID := chi.URLParam(r, "userID")

	var partial map[string]bool
	if err := decodeBody(r, &partial); err != nil {
		writeError(w, http.StatusBadRequest, string(domain.KindValidation), err.Error())
		return
	}

	flags, err := h.service.UpdateFeatureFlags(r.Context(), userID, partial)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.logger.Info().
		Str("user_id", userID).
		Str("admin", claims.Subject).
		Int("flags", len(partial)).
		Msg("feature flags updated")
	writeJSON(w, http.StatusOK, FeatureFlagsResponse{UserID: userID, Flags: flags})
}

// authorize checks scope and resolves the target user: the caller, or the userId query
// parameter for admins.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, scope string) (string, bool) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return "", false
	}
	if !claims.HasScope(scope) && !claims.IsAdmin() {
		writeError(w, http.StatusForbidden, string(domain.KindPermissionDenied), fmt.Sprintf("scope %s required", scope))
		return "", false
	}

	target := strings.TrimSpace(r.URL.Query().Get("userId"))
	if target == "" {
		return claims.Subject, true
	}
	if !claims.CanAccessUser(target) {
		writeError(w, http.StatusForbidden, string(domain.KindPermissionDenied), "cannot act on another user")
		return "", false
	}
	return target, true
}

func requireClaims(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	return claims, true
}

func decodeBody(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return errors.New("unable to parse body")
	}
	return nil
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	if value < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return value, nil
}

func effectiveLimit(limit int) int {
	switch {
	case limit <= 0:
		return domain.DefaultAuditPageSize
	case limit > domain.MaxAuditPageSize:
		return domain.MaxAuditPageSize
	default:
		return limit
	}
}

// AnalyzeRequest is the payload for POST /v1/insights/analyze.
type AnalyzeRequest struct {
	UserData     *domain.AggregatedUserData `json:"userData"`
	Prompt       string                     `json:"prompt"`
	AnalysisType string                     `json:"analysisType"`
}

// AuditEntryView exposes one audited analysis.
type AuditEntryView struct {
	ID           string               `json:"id"`
	UserID       string               `json:"userId"`
	Prompt       string               `json:"prompt"`
	AnalysisType string               `json:"analysisType"`
	Response     string               `json:"response"`
	DataUsed     domain.SummaryCounts `json:"dataUsed"`
	CreatedAt    time.Time            `json:"createdAt"`
}

// ListAnalysesResponse packages audit history.
type ListAnalysesResponse struct {
	Items  []AuditEntryView `json:"items"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

// UsageResponse packages per-day usage.
type UsageResponse struct {
	Days  int                  `json:"days"`
	Items []domain.UsageRecord `json:"items"`
}

// FeatureFlagsResponse carries the resolved flags of a user.
type FeatureFlagsResponse struct {
	UserID string                   `json:"userId"`
	Flags  map[domain.FlagName]bool `json:"flags"`
}

func toAuditEntryView(entry domain.AuditEntry) AuditEntryView {
	return AuditEntryView{
		ID:           entry.ID,
		UserID:       entry.UserID,
		Prompt:       entry.Prompt,
		AnalysisType: string(entry.AnalysisType),
		Response:     entry.Response,
		DataUsed:     entry.DataUsed,
		CreatedAt:    entry.CreatedAt,
	}
}
