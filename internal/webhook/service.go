package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pedalworks/trainsync/internal/domain"
	"github.com/pedalworks/trainsync/internal/logger"
	"github.com/pedalworks/trainsync/internal/metrics"
	"github.com/pedalworks/trainsync/internal/repository"
)

// InboundEvent is a provider notification after transport-level parsing
type InboundEvent struct {
	Provider       string `json:"provider" validate:"required,provider"`
	ProviderUserID string `json:"provider_user_id" validate:"required"`
	EventType      string `json:"event_type" validate:"required"`
	ActivityID     string `json:"activity_id,omitempty"`
}

// IngestResult reports how an inbound event was correlated
type IngestResult struct {
	EventID string `json:"event_id"`
	// Matched is true when the event's provider user id resolved to a
	// stored integration. Orphaned events are recorded all the same.
	Matched bool   `json:"matched"`
	UserID  string `json:"user_id,omitempty"`
}

// Service handles inbound webhook events from providers
type Service interface {
	// Ingest correlates an event by provider user id and appends it to the
	// event log. Orphaned events (no matching integration) are still kept.
	Ingest(ctx context.Context, event *InboundEvent) (*IngestResult, error)

	// MarkProcessed finalizes an event after downstream processing. An empty
	// processErr records success and bumps the integration's last sync time.
	MarkProcessed(ctx context.Context, eventID, processErr string) error

	// Stats summarises the event log
	Stats(ctx context.Context) (*repository.WebhookEventStats, error)
}

type service struct {
	events       repository.WebhookEvent
	integrations repository.Integration
	now          func() time.Time
}

// NewService creates a new webhook ingestion service
func NewService(events repository.WebhookEvent, integrations repository.Integration) Service {
	return &service{
		events:       events,
		integrations: integrations,
		now:          time.Now,
	}
}

// Ingest looks up the integration owning the event's provider user id and
// appends the event. Correlation failure is not a caller error: providers
// retry on non-2xx, and a deleted integration would make them retry forever.
func (s *service) Ingest(ctx context.Context, event *InboundEvent) (*IngestResult, error) {
	log := logger.FromContext(ctx)

	if !domain.IsValidProvider(event.Provider) {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidProvider, event.Provider)
	}

	result := &IngestResult{EventID: uuid.New().String()}

	integration, err := s.integrations.GetIntegrationByProviderUserID(ctx, event.Provider, event.ProviderUserID)
	switch {
	case err == nil:
		result.Matched = true
		result.UserID = integration.UserID
	case errors.Is(err, domain.ErrIntegrationNotFound):
		log.Warn("Orphaned webhook event, no integration for provider user id",
			"provider", event.Provider, "provider_user_id", event.ProviderUserID,
			"event_type", event.EventType)
	default:
		return nil, fmt.Errorf("failed to correlate webhook event: %w", err)
	}

	record := &domain.WebhookEvent{
		ID:             result.EventID,
		Provider:       event.Provider,
		ProviderUserID: event.ProviderUserID,
		EventType:      event.EventType,
		ActivityID:     event.ActivityID,
		ReceivedAt:     s.now(),
	}
	if err := s.events.AppendWebhookEvent(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to append webhook event: %w", err)
	}

	correlation := metrics.CorrelationOrphaned
	if result.Matched {
		correlation = metrics.CorrelationMatched
	}
	metrics.WebhookEvents.WithLabelValues(event.Provider, correlation).Inc()

	log.Info("Webhook event ingested",
		"event_id", result.EventID, "provider", event.Provider,
		"event_type", event.EventType, "matched", result.Matched)
	return result, nil
}

// MarkProcessed records the outcome of downstream processing. On success the
// owning integration's last sync time advances, which only applies when the
// event was matched in the first place.
func (s *service) MarkProcessed(ctx context.Context, eventID, processErr string) error {
	log := logger.FromContext(ctx)

	event, err := s.events.GetWebhookEvent(ctx, eventID)
	if err != nil {
		return err
	}

	now := s.now()
	if err := s.events.MarkWebhookEventProcessed(ctx, eventID, processErr, now); err != nil {
		return err
	}

	if processErr == "" {
		integration, err := s.integrations.GetIntegrationByProviderUserID(ctx, event.Provider, event.ProviderUserID)
		if err == nil {
			if err := s.integrations.TouchLastSync(ctx, integration.UserID, event.Provider, now); err != nil {
				log.Warn("Failed to record last sync time",
					"user_id", integration.UserID, "provider", event.Provider, "error", err)
			}
		}
	}
	return nil
}

// Stats summarises the event log for the admin surface
func (s *service) Stats(ctx context.Context) (*repository.WebhookEventStats, error) {
	return s.events.CountWebhookEvents(ctx)
}
