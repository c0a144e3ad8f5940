package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pedalworks/trainsync/internal/domain"
	"github.com/pedalworks/trainsync/internal/repository"
)

// IntegrationRepository implements repository.Integration
type IntegrationRepository struct {
	db *pgxpool.Pool
}

// NewIntegrationRepository creates a new integration repository
func NewIntegrationRepository(db *pgxpool.Pool) *IntegrationRepository {
	return &IntegrationRepository{db: db}
}

const integrationColumns = `
	user_id, provider, COALESCE(provider_user_id, ''),
	access_token, COALESCE(refresh_token, ''),
	access_token_expires_at, refresh_token_expires_at,
	refresh_token_invalid, sync_enabled, last_sync_at,
	provider_user_data, updated_at
`

// UpsertIntegration creates or fully overwrites the (user_id, provider) row.
// Last write wins on updated_at; this is the system's only synchronization
// point, so no row can ever be duplicated by concurrent refreshes.
func (r *IntegrationRepository) UpsertIntegration(ctx context.Context, integration *domain.Integration) error {
	userID, err := parseUserUUID(integration.UserID)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO integrations (
			user_id, provider, provider_user_id, access_token, refresh_token,
			access_token_expires_at, refresh_token_expires_at,
			refresh_token_invalid, sync_enabled, last_sync_at,
			provider_user_data, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		ON CONFLICT (user_id, provider) DO UPDATE SET
			provider_user_id = EXCLUDED.provider_user_id,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			access_token_expires_at = EXCLUDED.access_token_expires_at,
			refresh_token_expires_at = EXCLUDED.refresh_token_expires_at,
			refresh_token_invalid = EXCLUDED.refresh_token_invalid,
			sync_enabled = EXCLUDED.sync_enabled,
			last_sync_at = EXCLUDED.last_sync_at,
			provider_user_data = EXCLUDED.provider_user_data,
			updated_at = NOW()
		RETURNING updated_at
	`
	err = r.db.QueryRow(ctx, query,
		userID,
		integration.Provider,
		textFromString(integration.ProviderUserID),
		integration.AccessToken,
		textFromString(integration.RefreshToken),
		integration.AccessTokenExpiresAt,
		tstzFromPtr(integration.RefreshTokenExpiresAt),
		integration.RefreshTokenInvalid,
		integration.SyncEnabled,
		tstzFromPtr(integration.LastSyncAt),
		integration.ProviderUserData,
	).Scan(&integration.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert integration: %w", err)
	}
	return nil
}

// GetIntegration retrieves an integration by (user, provider)
func (r *IntegrationRepository) GetIntegration(ctx context.Context, userID, provider string) (*domain.Integration, error) {
	uid, err := parseUserUUID(userID)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + integrationColumns + ` FROM integrations WHERE user_id = $1 AND provider = $2`
	return r.scanIntegration(r.db.QueryRow(ctx, query, uid, provider))
}

// GetIntegrationByProviderUserID resolves an external identifier to an integration
func (r *IntegrationRepository) GetIntegrationByProviderUserID(ctx context.Context, provider, providerUserID string) (*domain.Integration, error) {
	query := `SELECT ` + integrationColumns + ` FROM integrations WHERE provider = $1 AND provider_user_id = $2`
	return r.scanIntegration(r.db.QueryRow(ctx, query, provider, providerUserID))
}

// ListIntegrationsForUser returns every integration the user has, in stable order
func (r *IntegrationRepository) ListIntegrationsForUser(ctx context.Context, userID string) ([]domain.Integration, error) {
	uid, err := parseUserUUID(userID)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + integrationColumns + ` FROM integrations WHERE user_id = $1 ORDER BY provider`
	rows, err := r.db.Query(ctx, query, uid)
	if err != nil {
		return nil, fmt.Errorf("failed to list integrations: %w", err)
	}
	defer rows.Close()

	return r.collectIntegrations(rows)
}

// DeleteIntegration removes the (user, provider) row. Deleting a missing row
// is not an error; disconnect must be idempotent.
func (r *IntegrationRepository) DeleteIntegration(ctx context.Context, userID, provider string) error {
	uid, err := parseUserUUID(userID)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, `DELETE FROM integrations WHERE user_id = $1 AND provider = $2`, uid, provider)
	if err != nil {
		return fmt.Errorf("failed to delete integration: %w", err)
	}
	return nil
}

// MarkRefreshTokenInvalid flags the integration after a terminal refresh rejection
func (r *IntegrationRepository) MarkRefreshTokenInvalid(ctx context.Context, userID, provider string) error {
	uid, err := parseUserUUID(userID)
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE integrations
		SET refresh_token_invalid = TRUE, updated_at = NOW()
		WHERE user_id = $1 AND provider = $2
	`, uid, provider)
	if err != nil {
		return fmt.Errorf("failed to mark refresh token invalid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrIntegrationNotFound
	}
	return nil
}

// TouchLastSync records a successful downstream sync
func (r *IntegrationRepository) TouchLastSync(ctx context.Context, userID, provider string, at time.Time) error {
	uid, err := parseUserUUID(userID)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, `
		UPDATE integrations
		SET last_sync_at = $3, updated_at = NOW()
		WHERE user_id = $1 AND provider = $2
	`, uid, provider, at)
	if err != nil {
		return fmt.Errorf("failed to touch last sync: %w", err)
	}
	return nil
}

// ListExpiring returns integrations matching either expiry predicate.
// The two predicates are independent: a short-dated access token or a
// refresh token approaching its own expiry each qualify the row. Rows with
// refresh_token_invalid are excluded entirely; retrying them is pointless
// until the user reconnects.
func (r *IntegrationRepository) ListExpiring(ctx context.Context, now time.Time, thresholds repository.ExpiryThresholds) ([]domain.Integration, error) {
	var clauses []string
	var args []interface{}

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	for provider, within := range thresholds.AccessWithin {
		clauses = append(clauses, fmt.Sprintf(
			"(provider = %s AND access_token_expires_at < %s)",
			arg(provider), arg(now.Add(within)),
		))
	}
	for provider, within := range thresholds.RefreshWithin {
		clauses = append(clauses, fmt.Sprintf(
			"(provider = %s AND refresh_token_expires_at IS NOT NULL AND refresh_token_expires_at < %s)",
			arg(provider), arg(now.Add(within)),
		))
	}

	if len(clauses) == 0 {
		return nil, nil
	}

	query := `SELECT ` + integrationColumns + `
		FROM integrations
		WHERE NOT refresh_token_invalid
		  AND sync_enabled
		  AND (` + strings.Join(clauses, " OR ") + `)
		ORDER BY user_id, provider`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring integrations: %w", err)
	}
	defer rows.Close()

	return r.collectIntegrations(rows)
}

func (r *IntegrationRepository) scanIntegration(row pgx.Row) (*domain.Integration, error) {
	var integration domain.Integration
	var userID pgtype.UUID
	var refreshExpiresAt, lastSyncAt pgtype.Timestamptz
	var providerUserData []byte

	err := row.Scan(
		&userID,
		&integration.Provider,
		&integration.ProviderUserID,
		&integration.AccessToken,
		&integration.RefreshToken,
		&integration.AccessTokenExpiresAt,
		&refreshExpiresAt,
		&integration.RefreshTokenInvalid,
		&integration.SyncEnabled,
		&lastSyncAt,
		&providerUserData,
		&integration.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrIntegrationNotFound
		}
		return nil, fmt.Errorf("failed to scan integration: %w", err)
	}

	integration.UserID = uuidString(userID)
	integration.RefreshTokenExpiresAt = ptrTime(refreshExpiresAt)
	integration.LastSyncAt = ptrTime(lastSyncAt)
	integration.ProviderUserData = providerUserData
	return &integration, nil
}

func (r *IntegrationRepository) collectIntegrations(rows pgx.Rows) ([]domain.Integration, error) {
	var integrations []domain.Integration
	for rows.Next() {
		integration, err := r.scanIntegration(rows)
		if err != nil {
			return nil, err
		}
		integrations = append(integrations, *integration)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read integration rows: %w", err)
	}
	return integrations, nil
}
