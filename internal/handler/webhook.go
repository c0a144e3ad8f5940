package handler

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pedalworks/trainsync/internal/domain"
	"github.com/pedalworks/trainsync/internal/logger"
	"github.com/pedalworks/trainsync/internal/ratelimit"
	"github.com/pedalworks/trainsync/internal/webhook"
)

// WebhookHandlers contains handlers for inbound provider notifications
type WebhookHandlers struct {
	svc        webhook.Service
	limiter    *ratelimit.Limiter
	rateLimit  int
	rateWindow time.Duration
}

// NewWebhookHandlers creates new webhook handlers
func NewWebhookHandlers(svc webhook.Service, limiter *ratelimit.Limiter, rateLimit int, rateWindow time.Duration) *WebhookHandlers {
	return &WebhookHandlers{svc: svc, limiter: limiter, rateLimit: rateLimit, rateWindow: rateWindow}
}

// WebhookEventRequest is the normalized body of an inbound provider event
type WebhookEventRequest struct {
	ProviderUserID string `json:"provider_user_id" validate:"required"`
	EventType      string `json:"event_type" validate:"required"`
	ActivityID     string `json:"activity_id,omitempty"`
}

// HandleIngest handles POST /webhooks/{provider}.
// Always returns 200 for well-formed events, matched or not: providers retry
// on non-2xx and an orphaned event would otherwise be redelivered forever.
// @Summary Ingest a provider webhook event
// @Description Records an inbound event and correlates it to a stored integration
// @Tags webhooks
// @Accept json
// @Produce json
// @Param provider path string true "Provider name"
// @Param request body WebhookEventRequest true "Normalized event payload"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ValidationErrorResponse
// @Failure 429 {object} ErrorResponse
// @Router /api/v1/webhooks/{provider} [post]
func (h *WebhookHandlers) HandleIngest() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req WebhookEventRequest
		if err := DecodeAndValidateRequest(r, w, &req, "Ingest webhook event"); err != nil {
			return
		}

		providerName := strings.ToLower(chi.URLParam(r, "provider"))

		// The path is unauthenticated, so floods are throttled per sender
		limit := h.limiter.Check("webhook:"+providerName+":"+req.ProviderUserID, h.rateLimit, h.rateWindow)
		if !limit.Allowed {
			logger.FromContext(r.Context()).Warn("Webhook rate limit exceeded",
				"provider", providerName, "provider_user_id", req.ProviderUserID)
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(time.Until(limit.ResetAt).Seconds())+1))
			status, userMsg := mapServiceErrorToUserMessage(domain.ErrRateLimited)
			respondError(w, status, userMsg)
			return
		}

		result, err := h.svc.Ingest(r.Context(), &webhook.InboundEvent{
			Provider:       providerName,
			ProviderUserID: req.ProviderUserID,
			EventType:      req.EventType,
			ActivityID:     req.ActivityID,
		})
		if err != nil {
			respondServiceError(w, r, "Ingest webhook event", err)
			return
		}

		respondJSON(w, http.StatusOK, map[string]interface{}{
			"message":  MsgEventAccepted,
			"event_id": result.EventID,
			"matched":  result.Matched,
		})
	}
}

// MarkProcessedRequest finalizes an event after downstream processing
type MarkProcessedRequest struct {
	EventID      string `json:"event_id" validate:"required,uuid"`
	ProcessError string `json:"process_error,omitempty"`
}

// HandleMarkProcessed handles POST /webhooks/events/processed
// @Summary Finalize a webhook event
// @Description Marks an event processed and bumps the integration's last sync on success
// @Tags webhooks
// @Accept json
// @Produce json
// @Param request body MarkProcessedRequest true "Event outcome"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ValidationErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/webhooks/events/processed [post]
func (h *WebhookHandlers) HandleMarkProcessed() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req MarkProcessedRequest
		if err := DecodeAndValidateRequest(r, w, &req, "Mark event processed"); err != nil {
			return
		}

		if err := h.svc.MarkProcessed(r.Context(), req.EventID, req.ProcessError); err != nil {
			respondServiceError(w, r, "Mark event processed", err)
			return
		}

		respondJSON(w, http.StatusOK, SuccessResponse{Message: "Event finalized"})
	}
}
