package repository

import (
	"context"

	"github.com/pedalworks/trainsync/internal/domain"
)

// PendingAuthorization defines persistence for in-flight PKCE flows.
// One row per user: upserting replaces any earlier flow, which deliberately
// invalidates it since only one browser redirect can be pending per user.
type PendingAuthorization interface {
	UpsertPendingAuthorization(ctx context.Context, pending *domain.PendingAuthorization) error

	// GetPendingAuthorization returns domain.ErrAuthSessionNotFound when no
	// flow is pending for the user.
	GetPendingAuthorization(ctx context.Context, userID string) (*domain.PendingAuthorization, error)

	DeletePendingAuthorization(ctx context.Context, userID string) error
}
