package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pedalworks/trainsync/internal/domain"
	"github.com/pedalworks/trainsync/internal/repository"
)

// WebhookEventRepository implements repository.WebhookEvent
type WebhookEventRepository struct {
	db *pgxpool.Pool
}

// NewWebhookEventRepository creates a new webhook event repository
func NewWebhookEventRepository(db *pgxpool.Pool) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// AppendWebhookEvent records an inbound event. The generated id is written
// back into event.ID.
func (r *WebhookEventRepository) AppendWebhookEvent(ctx context.Context, event *domain.WebhookEvent) error {
	query := `
		INSERT INTO webhook_events (provider, provider_user_id, event_type, activity_id, received_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING webhook_event_id
	`
	var id pgtype.UUID
	err := r.db.QueryRow(ctx, query,
		event.Provider,
		event.ProviderUserID,
		event.EventType,
		textFromString(event.ActivityID),
		event.ReceivedAt,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("failed to append webhook event: %w", err)
	}
	event.ID = uuidString(id)
	return nil
}

// GetWebhookEvent retrieves a single event by id
func (r *WebhookEventRepository) GetWebhookEvent(ctx context.Context, id string) (*domain.WebhookEvent, error) {
	eventID, err := parseUserUUID(id)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT webhook_event_id, provider, provider_user_id, event_type,
		       COALESCE(activity_id, ''), received_at, processed,
		       COALESCE(process_error, ''), processed_at
		FROM webhook_events
		WHERE webhook_event_id = $1
	`
	var event domain.WebhookEvent
	var scannedID pgtype.UUID
	var processedAt pgtype.Timestamptz
	err = r.db.QueryRow(ctx, query, eventID).Scan(
		&scannedID,
		&event.Provider,
		&event.ProviderUserID,
		&event.EventType,
		&event.ActivityID,
		&event.ReceivedAt,
		&event.Processed,
		&event.ProcessError,
		&processedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("webhook event not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get webhook event: %w", err)
	}
	event.ID = uuidString(scannedID)
	event.ProcessedAt = ptrTime(processedAt)
	return &event, nil
}

// MarkWebhookEventProcessed transitions processed=false→true exactly once
func (r *WebhookEventRepository) MarkWebhookEventProcessed(ctx context.Context, id string, processErr string, at time.Time) error {
	eventID, err := parseUserUUID(id)
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE webhook_events
		SET processed = TRUE, process_error = $2, processed_at = $3
		WHERE webhook_event_id = $1 AND NOT processed
	`, eventID, textFromString(processErr), at)
	if err != nil {
		return fmt.Errorf("failed to mark webhook event processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("webhook event not found or already processed")
	}
	return nil
}

// CountWebhookEvents splits the log into matched vs orphaned events.
// Matching is evaluated at count time so an orphan becomes matched once the
// user's provider id is captured.
func (r *WebhookEventRepository) CountWebhookEvents(ctx context.Context) (*repository.WebhookEventStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE EXISTS (
				SELECT 1 FROM integrations i
				WHERE i.provider = webhook_events.provider
				  AND i.provider_user_id = webhook_events.provider_user_id
			)),
			COUNT(*) FILTER (WHERE processed AND process_error IS NOT NULL)
		FROM webhook_events
	`
	var stats repository.WebhookEventStats
	err := r.db.QueryRow(ctx, query).Scan(&stats.Total, &stats.Matched, &stats.Failed)
	if err != nil {
		return nil, fmt.Errorf("failed to count webhook events: %w", err)
	}
	stats.Orphaned = stats.Total - stats.Matched
	return &stats, nil
}
