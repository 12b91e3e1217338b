package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/haukened/teledrop/internal/domain"
	"github.com/haukened/teledrop/internal/store"
)

// errorBody is the JSON shape of every error response: a stable machine
// code plus a human message.
type errorBody struct {
	Code  string `json:"error"`
	Error string `json:"message"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, status int, code, msg string) {
	cid, _ := GetCorrelationID(ctx)
	slog.Debug("wrote error response", "cid", cid, "status", status, "code", code)
	h.writeJSON(w, status, errorBody{Code: code, Error: msg})
}

// mapServiceError translates sentinel domain/store errors into response
// status codes, returning the status written so callers that track
// per-status metrics (e.g. downloads) don't need to duplicate the mapping.
// This table is the single place that mapping lives.
func (h *Handler) mapServiceError(ctx context.Context, w http.ResponseWriter, err error) int {
	cid, _ := GetCorrelationID(ctx)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		slog.Info("service error", "cid", cid, "code", "not_found")
		h.writeError(ctx, w, http.StatusNotFound, "NotFound", "not found")
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAuthRequired):
		slog.Info("service error", "cid", cid, "code", "auth_required")
		h.writeError(ctx, w, http.StatusUnauthorized, "AuthRequired", "authentication required")
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		slog.Info("service error", "cid", cid, "code", "forbidden")
		h.writeError(ctx, w, http.StatusForbidden, "Forbidden", "forbidden")
		return http.StatusForbidden
	case errors.Is(err, domain.ErrPasswordRequired):
		slog.Info("service error", "cid", cid, "code", "password_required")
		h.writeError(ctx, w, http.StatusUnauthorized, "PasswordRequired", "password required")
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrPasswordInvalid):
		slog.Info("service error", "cid", cid, "code", "password_invalid")
		h.writeError(ctx, w, http.StatusUnauthorized, "PasswordInvalid", "password invalid")
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrSlugTaken):
		slog.Warn("service error", "cid", cid, "code", "slug_taken")
		h.writeError(ctx, w, http.StatusConflict, "SlugTaken", "slug already in use")
		return http.StatusConflict
	case errors.Is(err, domain.ErrSlugExhausted):
		slog.Error("service error", "cid", cid, "code", "slug_exhausted")
		h.writeError(ctx, w, http.StatusConflict, "SlugExhausted", "could not allocate a slug")
		return http.StatusConflict
	case errors.Is(err, domain.ErrSlugInvalid):
		slog.Warn("service error", "cid", cid, "code", "slug_invalid")
		h.writeError(ctx, w, http.StatusBadRequest, "SlugInvalid", "slug invalid")
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSizeLimitExceeded):
		slog.Warn("service error", "cid", cid, "code", "size_limit_exceeded")
		h.writeError(ctx, w, http.StatusRequestEntityTooLarge, "SizeLimitExceeded", "upload exceeds the configured size limit")
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrValidation):
		slog.Warn("service error", "cid", cid, "code", "validation_error")
		h.writeError(ctx, w, http.StatusBadRequest, "ValidationError", "invalid request")
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrStorage), errors.Is(err, store.ErrStorage):
		slog.Error("service error", "cid", cid, "code", "storage")
		h.writeError(ctx, w, http.StatusInternalServerError, "Storage", "storage failure")
		return http.StatusInternalServerError
	case errors.Is(err, store.ErrConflict):
		slog.Warn("service error", "cid", cid, "code", "conflict")
		h.writeError(ctx, w, http.StatusConflict, "Conflict", "concurrent update conflict")
		return http.StatusConflict
	default:
		slog.Error("unhandled service error", "cid", cid, "code", "unhandled")
		h.writeError(ctx, w, http.StatusInternalServerError, "Internal", "internal error")
		return http.StatusInternalServerError
	}
}
