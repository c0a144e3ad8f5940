package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pedalworks/trainsync/internal/domain"
)

// PendingAuthorizationRepository implements repository.PendingAuthorization
type PendingAuthorizationRepository struct {
	db *pgxpool.Pool
}

// NewPendingAuthorizationRepository creates a new pending authorization repository
func NewPendingAuthorizationRepository(db *pgxpool.Pool) *PendingAuthorizationRepository {
	return &PendingAuthorizationRepository{db: db}
}

// UpsertPendingAuthorization replaces any earlier in-flight flow for the user.
// The overwritten flow becomes unusable, which is intended: only one browser
// redirect can be pending per user.
func (r *PendingAuthorizationRepository) UpsertPendingAuthorization(ctx context.Context, pending *domain.PendingAuthorization) error {
	userID, err := parseUserUUID(pending.UserID)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO pending_authorizations (user_id, provider, state, code_verifier, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			provider = EXCLUDED.provider,
			state = EXCLUDED.state,
			code_verifier = EXCLUDED.code_verifier,
			created_at = EXCLUDED.created_at
	`
	_, err = r.db.Exec(ctx, query,
		userID,
		pending.Provider,
		pending.State,
		pending.CodeVerifier,
		pending.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert pending authorization: %w", err)
	}
	return nil
}

// GetPendingAuthorization retrieves the user's in-flight flow, if any
func (r *PendingAuthorizationRepository) GetPendingAuthorization(ctx context.Context, userID string) (*domain.PendingAuthorization, error) {
	uid, err := parseUserUUID(userID)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT user_id, provider, state, code_verifier, created_at
		FROM pending_authorizations
		WHERE user_id = $1
	`
	var pending domain.PendingAuthorization
	var scannedID pgtype.UUID
	err = r.db.QueryRow(ctx, query, uid).Scan(
		&scannedID,
		&pending.Provider,
		&pending.State,
		&pending.CodeVerifier,
		&pending.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAuthSessionNotFound
		}
		return nil, fmt.Errorf("failed to get pending authorization: %w", err)
	}
	pending.UserID = uuidString(scannedID)
	return &pending, nil
}

// DeletePendingAuthorization removes the consumed flow. Missing rows are not
// an error; a delete can race with a replacement flow.
func (r *PendingAuthorizationRepository) DeletePendingAuthorization(ctx context.Context, userID string) error {
	uid, err := parseUserUUID(userID)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, `DELETE FROM pending_authorizations WHERE user_id = $1`, uid)
	if err != nil {
		return fmt.Errorf("failed to delete pending authorization: %w", err)
	}
	return nil
}
