package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/YoussfAh/X-sub010/internal/domain"
)

// writeDomainError maps err to its kind and status. Store and internal failures are logged
// with their cause but reach the client only as a generic detail.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status := http.StatusInternalServerError
	detail := err.Error()

	switch kind {
	case domain.KindValidation:
		status = http.StatusBadRequest
	case domain.KindPermissionDenied:
		status = http.StatusForbidden
	case domain.KindNotFound:
		status = http.StatusNotFound
		detail = "user not found"
	case domain.KindUpstream:
		status = http.StatusBadGateway
		var upstream *domain.UpstreamError
		if errors.As(err, &upstream) {
			detail = upstream.Message
			if upstream.Timeout {
				status = http.StatusGatewayTimeout
			}
		}
	case domain.KindDataFetch:
		detail = "failed to fetch user records"
		var fetchErr *domain.DataFetchError
		if errors.As(err, &fetchErr) {
			detail = fmt.Sprintf("failed to fetch %s records", fetchErr.Category)
		}
		h.logFailure(r, err, kind)
	default:
		detail = "internal error"
		if errors.Is(err, context.Canceled) {
			detail = "request cancelled"
		}
		h.logFailure(r, err, kind)
	}
	writeError(w, status, string(kind), detail)
}

func (h *Handler) logFailure(r *http.Request, err error, kind domain.Kind) {
	h.logger.Error().
		Err(err).
		Str("kind", string(kind)).
		Str("path", r.URL.Path).
		Str("request_id", middleware.GetReqID(r.Context())).
		Msg("request failed")
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
