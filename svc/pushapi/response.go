package pushapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/pushkit/pkg/logger"
	"github.com/dmitrymomot/pushkit/pkg/push"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Details map[string][]string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details map[string][]string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message, Details: details}})
}

// writeFailure maps err onto a status code. Internal details are logged, not returned.
func writeFailure(ctx context.Context, log *slog.Logger, w http.ResponseWriter, err error) {
	switch {
	case push.IsValidationError(err):
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "request validation failed", push.FieldErrors(err).Map())
	case errors.Is(err, push.ErrUnknownChannel):
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "request validation failed",
			map[string][]string{"channel": {"unknown channel"}})
	case errors.Is(err, ErrUnsupportedMediaType):
		writeError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", err.Error(), nil)
	case errors.Is(err, ErrBodyTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", err.Error(), nil)
	case errors.Is(err, ErrInvalidBody):
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error(), nil)
	case errors.Is(err, push.ErrRegistryUnavailable):
		log.ErrorContext(ctx, "registry unavailable", logger.Error(err))
		writeError(w, http.StatusServiceUnavailable, "registry_unavailable", "subscription registry unavailable", nil)
	default:
		log.ErrorContext(ctx, "request failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", http.StatusText(http.StatusInternalServerError), nil)
	}
}
