package bootstrap

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pedalworks/trainsync/internal/database/postgres"
	"github.com/pedalworks/trainsync/internal/repository"
)

// Repositories holds all repository implementations used by the application.
// Centralizing construction here keeps cmd/app wiring flat.
type Repositories struct {
	Integration repository.Integration
	Pending     repository.PendingAuthorization
	Webhook     repository.WebhookEvent
}

// NewRepositories constructs every repository on the shared pool
func NewRepositories(dbPool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Integration: postgres.NewIntegrationRepository(dbPool),
		Pending:     postgres.NewPendingAuthorizationRepository(dbPool),
		Webhook:     postgres.NewWebhookEventRepository(dbPool),
	}
}
