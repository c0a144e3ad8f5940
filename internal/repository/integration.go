package repository

import (
	"context"
	"time"

	"github.com/pedalworks/trainsync/internal/domain"
)

// ExpiryThresholds carries the per-provider lookahead windows used by the
// maintenance sweep query.
type ExpiryThresholds struct {
	// AccessWithin selects integrations whose access token expires within
	// this duration, keyed by provider.
	AccessWithin map[string]time.Duration
	// RefreshWithin selects integrations whose refresh token expires within
	// this duration, keyed by provider. Providers without refresh expiry are
	// simply absent.
	RefreshWithin map[string]time.Duration
}

// Integration defines the interface for integration persistence.
// All writes are upserts keyed on (user_id, provider); the store's row-level
// atomicity is the only synchronization point in the system.
type Integration interface {
	// UpsertIntegration creates or fully overwrites the row for
	// (integration.UserID, integration.Provider), bumping updated_at.
	UpsertIntegration(ctx context.Context, integration *domain.Integration) error

	GetIntegration(ctx context.Context, userID, provider string) (*domain.Integration, error)

	// GetIntegrationByProviderUserID resolves an inbound webhook's external
	// identifier back to an integration. Returns domain.ErrIntegrationNotFound
	// when no user has captured that identifier.
	GetIntegrationByProviderUserID(ctx context.Context, provider, providerUserID string) (*domain.Integration, error)

	ListIntegrationsForUser(ctx context.Context, userID string) ([]domain.Integration, error)

	DeleteIntegration(ctx context.Context, userID, provider string) error

	// MarkRefreshTokenInvalid flags the integration so the sweep stops
	// selecting it. Cleared again by the next successful upsert.
	MarkRefreshTokenInvalid(ctx context.Context, userID, provider string) error

	// TouchLastSync records a successful downstream sync.
	TouchLastSync(ctx context.Context, userID, provider string, at time.Time) error

	// ListExpiring returns the union of integrations matching either expiry
	// predicate, deduplicated, excluding rows with refresh_token_invalid or
	// sync disabled.
	ListExpiring(ctx context.Context, now time.Time, thresholds ExpiryThresholds) ([]domain.Integration, error)
}
