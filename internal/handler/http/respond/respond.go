// Package respond writes JSON bodies and maps errors onto HTTP statuses
// without leaking credentials or internals to API clients.
package respond

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"engage-notify/internal/domain/entity"
)

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("encode response", slog.Int("status_code", code), slog.Any("error", err))
	}
}

// Error writes {"error": msg} with no filtering. Use it for messages the
// handler composed itself.
func Error(w http.ResponseWriter, code int, msg string) {
	JSON(w, code, map[string]string{"error": msg})
}

// clientPhrases mark messages that describe a caller mistake.
var clientPhrases = []string{
	"required",
	"invalid",
	"not found",
	"must be",
	"cannot be",
	"unknown",
	"out of range",
	"validation",
}

// SafeError reports err to the client. 5xx responses and messages that do
// not look like caller mistakes are replaced by a generic text and logged
// with secrets masked.
func SafeError(w http.ResponseWriter, code int, err error) {
	if err == nil {
		return
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.Err != nil {
			slog.Default().Error("request failed",
				slog.Int("code", appErr.Code),
				slog.String("user_message", appErr.UserMsg),
				slog.String("error", SanitizeError(appErr.Err)))
		}
		Error(w, appErr.Code, appErr.UserMsg)
		return
	}

	msg := err.Error()
	if code < 500 && clientFacing(msg) {
		Error(w, code, msg)
		return
	}
	slog.Default().Error("internal server error",
		slog.Int("code", code),
		slog.String("error", SanitizeError(err)))
	Error(w, code, "internal server error")
}

func clientFacing(msg string) bool {
	lower := strings.ToLower(msg)
	for _, p := range clientPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// DomainError picks a status for errors coming out of the use case layer.
func DomainError(w http.ResponseWriter, err error) {
	var ve *entity.ValidationError
	var ce *entity.ConfigurationError
	var te *entity.TransportError
	switch {
	case err == nil:
		return
	case errors.Is(err, entity.ErrNotFound):
		Error(w, http.StatusNotFound, "not found")
	case errors.As(err, &ve), errors.Is(err, entity.ErrInvalidInput), errors.Is(err, entity.ErrValidationFailed):
		SafeError(w, http.StatusBadRequest, err)
	case errors.As(err, &ce):
		SafeError(w, http.StatusServiceUnavailable, NewAppError(http.StatusServiceUnavailable, "gateway is not configured", err))
	case errors.As(err, &te):
		SafeError(w, http.StatusBadGateway, NewAppError(http.StatusBadGateway, "gateway request failed", err))
	default:
		SafeError(w, http.StatusInternalServerError, err)
	}
}

// AppError pairs a client-facing message with the internal cause.
type AppError struct {
	UserMsg string
	Err     error
	Code    int
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.UserMsg
}

func (e *AppError) Unwrap() error { return e.Err }

// NewAppError builds an AppError.
func NewAppError(code int, userMsg string, err error) *AppError {
	return &AppError{Code: code, UserMsg: userMsg, Err: err}
}
