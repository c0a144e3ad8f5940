package domain

import "errors"

// Error message string constants - single source of truth for error messages
// Use these in assert.Contains() checks when testing error messages
const (
	// Configuration errors
	ErrMsgProviderNotConfigured = "provider not configured"

	// Authorization flow errors
	ErrMsgAuthSessionNotFound = "authorization session not found"
	ErrMsgStateMismatch       = "state token mismatch"

	// Exchange errors
	ErrMsgProviderUserIDUnresolved = "provider user id could not be resolved"

	// Refresh errors
	ErrMsgRequiresReconnect   = "refresh token rejected, reconnect required"
	ErrMsgTransientRefresh    = "transient refresh failure"
	ErrMsgMissingRefreshToken = "no refresh token stored"

	// Integration errors
	ErrMsgIntegrationNotFound = "integration not found"

	// Platform errors
	ErrMsgInvalidProvider = "invalid provider"

	// Rate limiting
	ErrMsgRateLimited = "rate limit exceeded"

	// Input errors
	ErrMsgInvalidInput = "invalid input"
)

// Common domain errors
// These errors should be used consistently across all layers of the application.
// Wrap these errors with fmt.Errorf("%w: %s", domain.ErrXxx, details) for additional context.
var (
	// ErrProviderNotConfigured means the provider's client credentials are
	// absent from configuration. Fatal, not retryable.
	ErrProviderNotConfigured = errors.New(ErrMsgProviderNotConfigured)

	// ErrAuthSessionNotFound means no PendingAuthorization exists for the
	// user; the flow expired or was never started.
	ErrAuthSessionNotFound = errors.New(ErrMsgAuthSessionNotFound)

	// ErrStateMismatch means the returned CSRF state did not match the stored
	// one. Abort before any token exchange and log as a potential attack.
	ErrStateMismatch = errors.New(ErrMsgStateMismatch)

	// ErrProviderUserIDUnresolved means the provider's own user identifier
	// could not be fetched after the code exchange. Nothing is persisted: a
	// connection without it would silently never receive sync events.
	ErrProviderUserIDUnresolved = errors.New(ErrMsgProviderUserIDUnresolved)

	// ErrRequiresReconnect means the provider rejected the refresh token
	// outright. The integration is flagged and auto-refresh stops.
	ErrRequiresReconnect = errors.New(ErrMsgRequiresReconnect)

	// ErrTransientRefresh means a refresh failed for a retryable reason
	// (network error, 5xx). The integration must not be marked invalid.
	ErrTransientRefresh = errors.New(ErrMsgTransientRefresh)

	// ErrMissingRefreshToken means the stored integration has no refresh
	// token to renew with.
	ErrMissingRefreshToken = errors.New(ErrMsgMissingRefreshToken)

	ErrIntegrationNotFound = errors.New(ErrMsgIntegrationNotFound)

	ErrInvalidProvider = errors.New(ErrMsgInvalidProvider)

	ErrRateLimited = errors.New(ErrMsgRateLimited)

	ErrInvalidInput = errors.New(ErrMsgInvalidInput)
)
