package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/pedalworks/trainsync/internal/domain"
	"github.com/pedalworks/trainsync/internal/logger"
)

// Standard response types for consistent API responses

// SuccessResponse represents a simple successful operation message
type SuccessResponse struct {
	Message string `json:"message"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondJSON sends a JSON response with the given status code and payload
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	buf := getBuffer()
	defer putBuffer(buf)

	// Encode to the buffer first; headers are already sent, so an encode
	// failure can only be logged
	if err := json.NewEncoder(buf).Encode(payload); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
		return
	}

	if _, err := buf.WriteTo(w); err != nil {
		slog.Error("Failed to write response buffer", "error", err)
	}
}

// respondError sends a JSON error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}

// respondServiceError logs the underlying error and writes its user-facing
// translation
func respondServiceError(w http.ResponseWriter, r *http.Request, opName string, err error) {
	logger.FromContext(r.Context()).Error("Operation failed", "operation", opName, "error", err)
	status, userMsg := mapServiceErrorToUserMessage(err)
	respondError(w, status, userMsg)
}

// User-facing error messages for service errors
const (
	ErrMsgGenericServerError  = "Something went wrong"
	ErrMsgUnknownError        = "Unknown error"
	ErrMsgTooManyRequests     = "Too many requests. Please try again later."
	ErrMsgProviderUnavailable = "The provider is temporarily unavailable. Please try again later."

	ErrMsgProviderNotConfigured  = "This provider is not available right now"
	ErrMsgInvalidProviderError   = "Unknown provider"
	ErrMsgAuthSessionExpired     = "The connection attempt expired. Please start again."
	ErrMsgStateMismatchError     = "The connection attempt could not be verified. Please start again."
	ErrMsgProviderIDUnresolved   = "The provider account could not be identified. Please try connecting again."
	ErrMsgReconnectRequired      = "The connection is no longer valid. Please reconnect the provider."
	ErrMsgNoRefreshToken         = "The connection cannot renew itself. Please reconnect the provider."
	ErrMsgIntegrationNotFoundErr = "No connection found for that provider"
)

// mapServiceErrorToUserMessage maps domain errors to user-friendly HTTP
// responses. Internal detail never reaches the client.
func mapServiceErrorToUserMessage(err error) (int, string) {
	if err == nil {
		return http.StatusInternalServerError, ErrMsgUnknownError
	}

	switch {
	case errors.Is(err, domain.ErrInvalidProvider):
		return http.StatusNotFound, ErrMsgInvalidProviderError
	case errors.Is(err, domain.ErrProviderNotConfigured):
		return http.StatusServiceUnavailable, ErrMsgProviderNotConfigured
	case errors.Is(err, domain.ErrAuthSessionNotFound):
		return http.StatusBadRequest, ErrMsgAuthSessionExpired
	case errors.Is(err, domain.ErrStateMismatch):
		return http.StatusBadRequest, ErrMsgStateMismatchError
	case errors.Is(err, domain.ErrProviderUserIDUnresolved):
		return http.StatusBadGateway, ErrMsgProviderIDUnresolved
	case errors.Is(err, domain.ErrRequiresReconnect):
		return http.StatusConflict, ErrMsgReconnectRequired
	case errors.Is(err, domain.ErrMissingRefreshToken):
		return http.StatusConflict, ErrMsgNoRefreshToken
	case errors.Is(err, domain.ErrTransientRefresh):
		return http.StatusBadGateway, ErrMsgProviderUnavailable
	case errors.Is(err, domain.ErrIntegrationNotFound):
		return http.StatusNotFound, ErrMsgIntegrationNotFoundErr
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, ErrMsgTooManyRequests
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, ErrMsgInvalidRequestSummary
	}

	return http.StatusInternalServerError, ErrMsgGenericServerError
}
