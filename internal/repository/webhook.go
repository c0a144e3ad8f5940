package repository

import (
	"context"
	"time"

	"github.com/pedalworks/trainsync/internal/domain"
)

// WebhookEventStats summarises the event log for diagnostics
type WebhookEventStats struct {
	Total    int64 `json:"total"`
	Matched  int64 `json:"matched"`
	Orphaned int64 `json:"orphaned"`
	Failed   int64 `json:"failed"`
}

// WebhookEvent defines persistence for the append-only webhook event log.
// Rows transition processed=false→true exactly once and are never deleted
// by this subsystem.
type WebhookEvent interface {
	AppendWebhookEvent(ctx context.Context, event *domain.WebhookEvent) error

	GetWebhookEvent(ctx context.Context, id string) (*domain.WebhookEvent, error)

	// MarkWebhookEventProcessed sets processed=true with an optional error
	// string from the external processor.
	MarkWebhookEventProcessed(ctx context.Context, id string, processErr string, at time.Time) error

	// CountWebhookEvents splits the log into matched vs orphaned events.
	// An event is matched when its provider user id resolves to a stored
	// integration at counting time.
	CountWebhookEvents(ctx context.Context) (*WebhookEventStats, error)
}
