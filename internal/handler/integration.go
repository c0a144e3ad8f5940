package handler

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pedalworks/trainsync/internal/domain"
	"github.com/pedalworks/trainsync/internal/integration"
	"github.com/pedalworks/trainsync/internal/logger"
	"github.com/pedalworks/trainsync/internal/ratelimit"
)

// IntegrationHandlers contains handlers for provider connection lifecycle
type IntegrationHandlers struct {
	svc     integration.Service
	limiter *ratelimit.Limiter

	rateLimit  int
	rateWindow time.Duration
}

// NewIntegrationHandlers creates new integration handlers
func NewIntegrationHandlers(svc integration.Service, limiter *ratelimit.Limiter, rateLimit int, rateWindow time.Duration) *IntegrationHandlers {
	return &IntegrationHandlers{
		svc:        svc,
		limiter:    limiter,
		rateLimit:  rateLimit,
		rateWindow: rateWindow,
	}
}

// ConnectRequest is the request body for starting a provider connection
type ConnectRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
}

// CallbackRequest is the request body for completing a provider connection
type CallbackRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
	Code   string `json:"code" validate:"required"`
	State  string `json:"state" validate:"required"`
}

// RefreshRequest is the request body for an on-demand token refresh
type RefreshRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
}

// providerParam extracts the provider path parameter, normalized to lowercase
func providerParam(r *http.Request) string {
	return strings.ToLower(chi.URLParam(r, "provider"))
}

// checkRateLimit consumes one attempt for the user/operation pair. Returns
// false after writing the 429 when the window is exhausted.
func (h *IntegrationHandlers) checkRateLimit(w http.ResponseWriter, r *http.Request, userID, op string) bool {
	result := h.limiter.Check(userID+":"+op, h.rateLimit, h.rateWindow)
	if !result.Allowed {
		logger.FromContext(r.Context()).Warn("Rate limit exceeded",
			"user_id", userID, "operation", op, "reset_at", result.ResetAt)
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(time.Until(result.ResetAt).Seconds())+1))
		status, userMsg := mapServiceErrorToUserMessage(domain.ErrRateLimited)
		respondError(w, status, userMsg)
		return false
	}
	return true
}

// HandleConnect handles POST /integrations/{provider}/connect
// @Summary Start provider authorization
// @Description Begins the OAuth flow and returns the provider's authorization URL
// @Tags integrations
// @Accept json
// @Produce json
// @Param provider path string true "Provider name"
// @Param request body ConnectRequest true "User starting the flow"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/integrations/{provider}/connect [post]
func (h *IntegrationHandlers) HandleConnect() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ConnectRequest
		if err := DecodeAndValidateRequest(r, w, &req, "Connect provider"); err != nil {
			return
		}

		// Limit checked before any provider traffic
		if !h.checkRateLimit(w, r, req.UserID, "connect") {
			return
		}

		authorizationURL, err := h.svc.StartAuthorization(r.Context(), req.UserID, providerParam(r))
		if err != nil {
			respondServiceError(w, r, "Connect provider", err)
			return
		}

		respondJSON(w, http.StatusOK, map[string]interface{}{
			"authorization_url": authorizationURL,
		})
	}
}

// HandleCallback handles POST /integrations/{provider}/callback
// @Summary Complete provider authorization
// @Description Exchanges the authorization code for tokens and stores the integration
// @Tags integrations
// @Accept json
// @Produce json
// @Param provider path string true "Provider name"
// @Param request body CallbackRequest true "Authorization code and state"
// @Success 200 {object} integration.ExchangeResult
// @Failure 400 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /api/v1/integrations/{provider}/callback [post]
func (h *IntegrationHandlers) HandleCallback() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CallbackRequest
		if err := DecodeAndValidateRequest(r, w, &req, "Complete provider connection"); err != nil {
			return
		}

		// The exchange fans out to the provider's token and profile
		// endpoints, so it is limited like connect and refresh
		if !h.checkRateLimit(w, r, req.UserID, "callback") {
			return
		}

		result, err := h.svc.ExchangeCode(r.Context(), req.UserID, providerParam(r), req.Code, req.State)
		if err != nil {
			respondServiceError(w, r, "Complete provider connection", err)
			return
		}

		respondJSON(w, http.StatusOK, result)
	}
}

// HandleRefresh handles POST /integrations/{provider}/refresh
// @Summary Refresh tokens now
// @Description Renews the stored access token outside the scheduled sweep
// @Tags integrations
// @Accept json
// @Produce json
// @Param provider path string true "Provider name"
// @Param request body RefreshRequest true "User owning the integration"
// @Success 200 {object} SuccessResponse
// @Failure 409 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /api/v1/integrations/{provider}/refresh [post]
func (h *IntegrationHandlers) HandleRefresh() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RefreshRequest
		if err := DecodeAndValidateRequest(r, w, &req, "Refresh tokens"); err != nil {
			return
		}

		if !h.checkRateLimit(w, r, req.UserID, "refresh") {
			return
		}

		if err := h.svc.RefreshNow(r.Context(), req.UserID, providerParam(r)); err != nil {
			respondServiceError(w, r, "Refresh tokens", err)
			return
		}

		respondJSON(w, http.StatusOK, SuccessResponse{Message: MsgRefreshSuccess})
	}
}

// HandleStatus handles GET /integrations/{provider}/status
// @Summary Connection status
// @Description Returns the health of one provider connection for a user
// @Tags integrations
// @Produce json
// @Param provider path string true "Provider name"
// @Param user_id query string true "User ID"
// @Success 200 {object} integration.ConnectionStatus
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/integrations/{provider}/status [get]
func (h *IntegrationHandlers) HandleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := GetQueryParam(r, w, "user_id")
		if !ok {
			return
		}

		status, err := h.svc.ConnectionStatus(r.Context(), userID, providerParam(r))
		if err != nil {
			respondServiceError(w, r, "Connection status", err)
			return
		}

		respondJSON(w, http.StatusOK, status)
	}
}

// HandleList handles GET /integrations
// @Summary List connection statuses
// @Description Returns every provider's connection health for a user
// @Tags integrations
// @Produce json
// @Param user_id query string true "User ID"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/integrations [get]
func (h *IntegrationHandlers) HandleList() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := GetQueryParam(r, w, "user_id")
		if !ok {
			return
		}

		statuses, err := h.svc.ListConnectionStatuses(r.Context(), userID)
		if err != nil {
			respondServiceError(w, r, "List connections", err)
			return
		}

		respondJSON(w, http.StatusOK, map[string]interface{}{
			"integrations": statuses,
		})
	}
}

// HandleDisconnect handles DELETE /integrations/{provider}
// @Summary Disconnect a provider
// @Description Revokes the remote grant where supported and deletes the stored integration
// @Tags integrations
// @Produce json
// @Param provider path string true "Provider name"
// @Param user_id query string true "User ID"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/integrations/{provider} [delete]
func (h *IntegrationHandlers) HandleDisconnect() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := GetQueryParam(r, w, "user_id")
		if !ok {
			return
		}

		if err := h.svc.Disconnect(r.Context(), userID, providerParam(r)); err != nil {
			respondServiceError(w, r, "Disconnect provider", err)
			return
		}

		respondJSON(w, http.StatusOK, SuccessResponse{Message: MsgDisconnectedSuccess})
	}
}

// HandleRevokeAll handles DELETE /integrations
// @Summary Revoke all integrations
// @Description Best-effort teardown of every provider connection for a user
// @Tags integrations
// @Produce json
// @Param user_id query string true "User ID"
// @Success 200 {object} integration.RevocationResult
// @Router /api/v1/integrations [delete]
func (h *IntegrationHandlers) HandleRevokeAll() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := GetQueryParam(r, w, "user_id")
		if !ok {
			return
		}

		// Always 200: teardown is best effort and the result is advisory
		result := h.svc.RevokeAll(r.Context(), userID)
		respondJSON(w, http.StatusOK, result)
	}
}
