package domain

import (
	"encoding/json"
	"time"
)

// Integration represents a user's connection to an external fitness platform.
// There is at most one row per (UserID, Provider); every write is an upsert
// keyed on that pair.
type Integration struct {
	UserID   string `json:"user_id"`
	Provider string `json:"provider"`
	// ProviderUserID is the platform's own identifier for the connected
	// account. It is required to correlate inbound webhook events; absence is
	// a degraded state reported by the health evaluator, not an error.
	ProviderUserID string `json:"provider_user_id,omitempty"`

	AccessToken  string `json:"-"`
	RefreshToken string `json:"-"`

	AccessTokenExpiresAt time.Time `json:"access_token_expires_at"`
	// RefreshTokenExpiresAt is only set for providers whose refresh tokens
	// themselves expire (Garmin, ~90 days).
	RefreshTokenExpiresAt *time.Time `json:"refresh_token_expires_at,omitempty"`

	// RefreshTokenInvalid is set when the provider rejects the refresh token
	// outright (invalid_grant). Once true, auto-refresh stops until the user
	// re-authorizes from scratch.
	RefreshTokenInvalid bool `json:"refresh_token_invalid"`

	SyncEnabled bool       `json:"sync_enabled"`
	LastSyncAt  *time.Time `json:"last_sync_at,omitempty"`

	// ProviderUserData holds opaque profile metadata (display name, scopes).
	// Lifecycle logic never reads it.
	ProviderUserData json.RawMessage `json:"provider_user_data,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// PendingAuthorization is the in-flight half of a PKCE flow. One per user at
// a time regardless of provider: starting a second flow overwrites the first,
// which is correct because only one browser redirect can be in flight.
type PendingAuthorization struct {
	UserID       string    `json:"user_id"`
	Provider     string    `json:"provider"`
	State        string    `json:"state"`
	CodeVerifier string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// WebhookEvent is an append-only record of an inbound provider notification.
// Rows are keyed by the provider's user id, never the internal one, and are
// never deleted by this subsystem.
type WebhookEvent struct {
	ID             string     `json:"id"`
	Provider       string     `json:"provider"`
	ProviderUserID string     `json:"provider_user_id"`
	EventType      string     `json:"event_type"`
	ActivityID     string     `json:"activity_id,omitempty"`
	ReceivedAt     time.Time  `json:"received_at"`
	Processed      bool       `json:"processed"`
	ProcessError   string     `json:"process_error,omitempty"`
	ProcessedAt    *time.Time `json:"processed_at,omitempty"`
}
