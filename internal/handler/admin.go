package handler

import (
	"net/http"

	"github.com/pedalworks/trainsync/internal/maintenance"
	"github.com/pedalworks/trainsync/internal/webhook"
)

// AdminHandlers contains handlers for operational endpoints
type AdminHandlers struct {
	maintenance maintenance.Service
	webhooks    webhook.Service
}

// NewAdminHandlers creates new admin handlers
func NewAdminHandlers(maintenanceSvc maintenance.Service, webhookSvc webhook.Service) *AdminHandlers {
	return &AdminHandlers{
		maintenance: maintenanceSvc,
		webhooks:    webhookSvc,
	}
}

// HandleRunMaintenance handles POST /admin/maintenance/run. Runs a sweep
// synchronously and returns its result, independent of the scheduled runs.
// @Summary Run a maintenance sweep
// @Description Refreshes every integration nearing expiry and reports the outcome
// @Tags admin
// @Produce json
// @Success 200 {object} maintenance.SweepResult
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/admin/maintenance/run [post]
func (h *AdminHandlers) HandleRunMaintenance() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := h.maintenance.Sweep(r.Context())
		if err != nil {
			respondServiceError(w, r, "Run maintenance sweep", err)
			return
		}

		respondJSON(w, http.StatusOK, result)
	}
}

// HandleWebhookStats handles GET /admin/webhooks/stats
// @Summary Webhook correlation stats
// @Description Returns matched and orphaned event counts for diagnostics
// @Tags admin
// @Produce json
// @Success 200 {object} repository.WebhookEventStats
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/admin/webhooks/stats [get]
func (h *AdminHandlers) HandleWebhookStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := h.webhooks.Stats(r.Context())
		if err != nil {
			respondServiceError(w, r, "Webhook stats", err)
			return
		}

		respondJSON(w, http.StatusOK, stats)
	}
}
