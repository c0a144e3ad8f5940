package integration

import (
	"time"

	"github.com/pedalworks/trainsync/internal/domain"
)

// HealthState is the deterministic diagnosis of a stored integration
type HealthState string

// Health states, ordered by evaluation precedence. Each earlier state makes
// automatic recovery strictly less possible than the ones after it, so the
// first match wins.
const (
	StateNotConnected          HealthState = "not_connected"
	StateMissingProviderUserID HealthState = "missing_provider_user_id"
	StateRefreshTokenInvalid   HealthState = "refresh_token_invalid"
	StateMissingRefreshToken   HealthState = "missing_refresh_token"
	StateRefreshTokenExpired   HealthState = "refresh_token_expired"
	StateTokenExpired          HealthState = "token_expired"
	StateHealthy               HealthState = "healthy"
)

// HealthAssessment pairs a state with one concrete remediation instruction,
// so the UI never has to interpret raw provider error text.
type HealthAssessment struct {
	State             HealthState `json:"state"`
	Message           string      `json:"message"`
	RequiresReconnect bool        `json:"requires_reconnect"`
}

// EvaluateHealth derives the diagnosis from a single integration record and
// the current time. Pure function: no I/O, no stored state.
func EvaluateHealth(integration *domain.Integration, now time.Time) HealthAssessment {
	if integration == nil {
		return HealthAssessment{
			State:             StateNotConnected,
			Message:           "Not connected. Connect the provider to start syncing.",
			RequiresReconnect: false,
		}
	}

	if integration.ProviderUserID == "" {
		return HealthAssessment{
			State:             StateMissingProviderUserID,
			Message:           "Connected, but the provider account identifier was never captured; activity sync cannot work. Reconnect to repair.",
			RequiresReconnect: true,
		}
	}

	if integration.RefreshTokenInvalid {
		return HealthAssessment{
			State:             StateRefreshTokenInvalid,
			Message:           "The provider rejected the stored credentials. Reconnect to re-authorize.",
			RequiresReconnect: true,
		}
	}

	if integration.RefreshToken == "" {
		return HealthAssessment{
			State:             StateMissingRefreshToken,
			Message:           "No refresh token is stored; the connection cannot renew itself. Reconnect to repair.",
			RequiresReconnect: true,
		}
	}

	if integration.RefreshTokenExpiresAt != nil && !integration.RefreshTokenExpiresAt.After(now) {
		return HealthAssessment{
			State:             StateRefreshTokenExpired,
			Message:           "The long-lived credential has expired. Reconnect to re-authorize.",
			RequiresReconnect: true,
		}
	}

	if !integration.AccessTokenExpiresAt.After(now) {
		return HealthAssessment{
			State:             StateTokenExpired,
			Message:           "The access token has expired and will renew automatically on the next sync.",
			RequiresReconnect: false,
		}
	}

	return HealthAssessment{
		State:   StateHealthy,
		Message: "Connected and syncing.",
	}
}
