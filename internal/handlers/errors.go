package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/authgate/internal/models"
	pkghttp "github.com/BradenHooton/authgate/pkg/http"
)

const maxBodyBytes = 1 << 20

// SuccessResponse is the body of flows that only report an outcome.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeSuccess(w http.ResponseWriter, status int, message string) {
	pkghttp.WriteJSON(w, status, SuccessResponse{Success: true, Message: message})
}

// decodeJSON reads a size-limited JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !decodeBody(w, r, dst) {
		return false
	}
	if err := ValidateRequest(dst); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return false
	}
	return true
}

// decodeBody reads a bounded JSON body into dst without running field validation.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return false
	}
	return true
}

// statusFor maps an error kind to its HTTP status and machine-readable code.
func statusFor(kind error) (int, string) {
	switch {
	case errors.Is(kind, models.ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(kind, models.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(kind, models.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(kind, models.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(kind, models.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(kind, models.ErrRateLimitExceeded):
		return http.StatusTooManyRequests, "rate_limit_exceeded"
	case errors.Is(kind, models.ErrUpstream):
		return http.StatusBadGateway, "upstream_error"
	case errors.Is(kind, models.ErrServerMisconfigured):
		return http.StatusInternalServerError, "server_misconfigured"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeServiceError renders err as a safe JSON error. Anything that is not a
// user-facing flow error is logged before being replaced by a generic message.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	public := models.Public(err)
	status, code := statusFor(public.Kind)

	var fe *models.FlowError
	if status >= http.StatusInternalServerError || !errors.As(err, &fe) {
		logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Any("error", err))
	}

	pkghttp.WriteErrorWithDetails(w, status, code, public.Message, public.Details)
}
