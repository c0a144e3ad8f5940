package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pedalworks/trainsync/internal/domain"
	"github.com/pedalworks/trainsync/internal/logger"
	"github.com/pedalworks/trainsync/internal/metrics"
	"github.com/pedalworks/trainsync/internal/provider"
	"github.com/pedalworks/trainsync/internal/repository"
)

// ProviderClient defines the provider-facing OAuth operations the service needs
type ProviderClient interface {
	AuthorizationURL(spec provider.Spec, creds provider.Credentials, state, codeChallenge string) string
	ExchangeCode(ctx context.Context, spec provider.Spec, creds provider.Credentials, code, codeVerifier string) (*provider.TokenResponse, error)
	Refresh(ctx context.Context, spec provider.Spec, creds provider.Credentials, refreshToken string) (*provider.TokenResponse, error)
	FetchProviderUserID(ctx context.Context, spec provider.Spec, accessToken string) (string, json.RawMessage, error)
	Revoke(ctx context.Context, spec provider.Spec, creds provider.Credentials, accessToken string) error
}

// CredentialSource resolves a provider's OAuth client configuration.
// The second return is false when the provider is not configured.
type CredentialSource interface {
	CredentialsFor(providerName string) (provider.Credentials, bool)
}

// ExchangeResult is returned by a successful code exchange
type ExchangeResult struct {
	Provider       string `json:"provider"`
	ProviderUserID string `json:"provider_user_id"`
}

// ConnectionStatus is the diagnostics view of one provider for one user
type ConnectionStatus struct {
	Provider       string           `json:"provider"`
	Configured     bool             `json:"configured"`
	Connected      bool             `json:"connected"`
	Health         HealthAssessment `json:"health"`
	ProviderUserID string           `json:"provider_user_id,omitempty"`
	SyncEnabled    bool             `json:"sync_enabled"`
	LastSyncAt     *time.Time       `json:"last_sync_at,omitempty"`
}

// ProviderError records one provider's failure inside an aggregate result
type ProviderError struct {
	Provider string `json:"provider"`
	Error    string `json:"error"`
}

// RevocationResult is the advisory outcome of a disconnect-all pass.
// It is reported, never raised: account deletion must not be blockable by a
// third party's API availability.
type RevocationResult struct {
	Attempted     int             `json:"attempted"`
	RemoteRevoked int             `json:"remote_revoked"`
	Deleted       int             `json:"deleted"`
	Errors        []ProviderError `json:"errors,omitempty"`
}

// Service defines the credential lifecycle operations
type Service interface {
	// StartAuthorization begins a PKCE flow and returns the provider's
	// authorization URL. Any earlier pending flow for the user is replaced.
	StartAuthorization(ctx context.Context, userID, providerName string) (string, error)

	// ExchangeCode completes the flow: validates state, exchanges the code,
	// resolves the provider user id, and persists the integration.
	ExchangeCode(ctx context.Context, userID, providerName, code, state string) (*ExchangeResult, error)

	// RefreshIntegration renews the access token for a stored integration.
	// Shared by the on-demand path and the maintenance sweep.
	RefreshIntegration(ctx context.Context, integration *domain.Integration) error

	// RefreshNow loads the integration and refreshes it on demand.
	RefreshNow(ctx context.Context, userID, providerName string) error

	// ConnectionStatus reports one provider's health for a user
	ConnectionStatus(ctx context.Context, userID, providerName string) (*ConnectionStatus, error)

	// ListConnectionStatuses reports every provider's health for a user
	ListConnectionStatuses(ctx context.Context, userID string) ([]ConnectionStatus, error)

	// Disconnect revokes (best effort) and deletes one integration
	Disconnect(ctx context.Context, userID, providerName string) error

	// RevokeAll tears down every integration the user has. Called from the
	// account-deletion path; the result is advisory only.
	RevokeAll(ctx context.Context, userID string) *RevocationResult
}

// profileRetryDelays is the bounded backoff for provider-user-id resolution.
// The identifier is mandatory for webhook correlation, so the exchange gets
// three chances before it fails outright.
var profileRetryDelays = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

type service struct {
	integrations repository.Integration
	pending      repository.PendingAuthorization
	client       ProviderClient
	creds        CredentialSource

	// retryDelays is overridable in tests
	retryDelays []time.Duration
	now         func() time.Time
}

// NewService creates a new integration lifecycle service
func NewService(integrations repository.Integration, pending repository.PendingAuthorization, client ProviderClient, creds CredentialSource) Service {
	return &service{
		integrations: integrations,
		pending:      pending,
		client:       client,
		creds:        creds,
		retryDelays:  profileRetryDelays,
		now:          time.Now,
	}
}

func (s *service) resolveProvider(providerName string) (provider.Spec, provider.Credentials, error) {
	spec, ok := provider.SpecFor(providerName)
	if !ok {
		return provider.Spec{}, provider.Credentials{}, fmt.Errorf("%w: %s", domain.ErrInvalidProvider, providerName)
	}
	creds, ok := s.creds.CredentialsFor(providerName)
	if !ok {
		return provider.Spec{}, provider.Credentials{}, fmt.Errorf("%w: %s", domain.ErrProviderNotConfigured, providerName)
	}
	return spec, creds, nil
}

// StartAuthorization generates the PKCE verifier/challenge pair and CSRF
// state, persists the pending flow, and returns the authorization URL.
func (s *service) StartAuthorization(ctx context.Context, userID, providerName string) (string, error) {
	log := logger.FromContext(ctx)

	spec, creds, err := s.resolveProvider(providerName)
	if err != nil {
		return "", err
	}

	verifier, err := provider.GenerateCodeVerifier()
	if err != nil {
		return "", err
	}
	state, err := provider.GenerateState()
	if err != nil {
		return "", err
	}

	pending := &domain.PendingAuthorization{
		UserID:       userID,
		Provider:     providerName,
		State:        state,
		CodeVerifier: verifier,
		CreatedAt:    s.now(),
	}
	// Persist before handing out the URL: if the store write fails the
	// caller must not redirect the user into an unfinishable flow.
	if err := s.pending.UpsertPendingAuthorization(ctx, pending); err != nil {
		return "", fmt.Errorf("failed to persist pending authorization: %w", err)
	}

	log.Info("Authorization flow started", "user_id", userID, "provider", providerName)
	return s.client.AuthorizationURL(spec, creds, state, provider.CodeChallengeS256(verifier)), nil
}

// ExchangeCode turns an authorization code into a stored integration.
// A connection without the provider's user id is worse than no connection,
// so the whole exchange fails and persists nothing when the id cannot be
// resolved.
func (s *service) ExchangeCode(ctx context.Context, userID, providerName, code, state string) (*ExchangeResult, error) {
	log := logger.FromContext(ctx)

	spec, creds, err := s.resolveProvider(providerName)
	if err != nil {
		return nil, err
	}

	pending, err := s.pending.GetPendingAuthorization(ctx, userID)
	if err != nil {
		return nil, err
	}
	if pending.Provider != providerName {
		// The pending flow was overwritten by a newer attempt at a different
		// provider; this redirect is stale.
		return nil, fmt.Errorf("%w: pending flow is for %s", domain.ErrAuthSessionNotFound, pending.Provider)
	}

	// State check must abort before any token exchange call. The pending
	// flow is retained so a correct retry within its window stays possible.
	if pending.State != state {
		log.Warn("CSRF state mismatch on token exchange, possible attack",
			"user_id", userID, "provider", providerName)
		return nil, domain.ErrStateMismatch
	}

	token, err := s.client.ExchangeCode(ctx, spec, creds, code, pending.CodeVerifier)
	if err != nil {
		metrics.TokenExchanges.WithLabelValues(providerName, metrics.OutcomeFailure).Inc()
		return nil, fmt.Errorf("code exchange failed: %w", err)
	}

	// The code is single-use at the provider: once exchanged, the pending
	// flow is spent regardless of what happens downstream.
	if err := s.pending.DeletePendingAuthorization(ctx, userID); err != nil {
		log.Warn("Failed to delete consumed pending authorization", "user_id", userID, "error", err)
	}

	providerUserID, profile, err := s.resolveProviderUserID(ctx, spec, token.AccessToken)
	if err != nil {
		metrics.TokenExchanges.WithLabelValues(providerName, metrics.OutcomeFailure).Inc()
		log.Error("Provider user id resolution failed, aborting exchange",
			"user_id", userID, "provider", providerName, "error", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderUserIDUnresolved, err)
	}

	now := s.now()
	integration := &domain.Integration{
		UserID:                userID,
		Provider:              providerName,
		ProviderUserID:        providerUserID,
		AccessToken:           token.AccessToken,
		RefreshToken:          token.RefreshToken,
		AccessTokenExpiresAt:  token.AccessExpiry(spec, now),
		RefreshTokenExpiresAt: token.RefreshExpiry(spec, now),
		SyncEnabled:           true,
		ProviderUserData:      profile,
	}
	if err := s.integrations.UpsertIntegration(ctx, integration); err != nil {
		metrics.TokenExchanges.WithLabelValues(providerName, metrics.OutcomeFailure).Inc()
		return nil, fmt.Errorf("failed to persist integration: %w", err)
	}

	metrics.TokenExchanges.WithLabelValues(providerName, metrics.OutcomeSuccess).Inc()
	log.Info("Integration connected",
		"user_id", userID, "provider", providerName, "provider_user_id", providerUserID)

	return &ExchangeResult{Provider: providerName, ProviderUserID: providerUserID}, nil
}

// resolveProviderUserID fetches the provider's identifier with bounded retry.
// Sleeps honor context cancellation.
func (s *service) resolveProviderUserID(ctx context.Context, spec provider.Spec, accessToken string) (string, json.RawMessage, error) {
	var lastErr error
	for attempt := 0; attempt <= len(s.retryDelays); attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(s.retryDelays[attempt-1]):
			case <-ctx.Done():
				return "", nil, ctx.Err()
			}
		}

		id, profile, err := s.client.FetchProviderUserID(ctx, spec, accessToken)
		if err == nil {
			return id, profile, nil
		}
		lastErr = err
		logger.FromContext(ctx).Warn("Provider user id fetch failed",
			"provider", spec.Name, "attempt", attempt+1, "error", err)
	}
	return "", nil, lastErr
}

// RefreshIntegration renews the access token from the stored refresh token.
// Idempotent under concurrent invocation: refresh is a pure function of the
// stored refresh token, so racing refreshes just produce two upserts with
// the later updated_at winning.
func (s *service) RefreshIntegration(ctx context.Context, integration *domain.Integration) error {
	log := logger.FromContext(ctx)
	providerName := integration.Provider

	spec, creds, err := s.resolveProvider(providerName)
	if err != nil {
		return err
	}

	if integration.RefreshTokenInvalid {
		return fmt.Errorf("%w: refresh token previously rejected", domain.ErrRequiresReconnect)
	}
	if integration.RefreshToken == "" {
		return fmt.Errorf("%w: %s", domain.ErrMissingRefreshToken, providerName)
	}

	token, err := s.client.Refresh(ctx, spec, creds, integration.RefreshToken)
	if err != nil {
		if errors.Is(err, domain.ErrRequiresReconnect) {
			metrics.TokenRefreshes.WithLabelValues(providerName, metrics.OutcomeTerminal).Inc()
			log.Warn("Refresh token rejected by provider, flagging integration",
				"user_id", integration.UserID, "provider", providerName)
			if markErr := s.integrations.MarkRefreshTokenInvalid(ctx, integration.UserID, providerName); markErr != nil {
				log.Error("Failed to flag invalid refresh token",
					"user_id", integration.UserID, "provider", providerName, "error", markErr)
			}
			return err
		}
		metrics.TokenRefreshes.WithLabelValues(providerName, metrics.OutcomeTransient).Inc()
		return err
	}

	now := s.now()
	integration.AccessToken = token.AccessToken
	integration.AccessTokenExpiresAt = token.AccessExpiry(spec, now)
	// Some providers rotate the refresh token on every use; others return
	// nothing and the stored token stays valid.
	if token.RefreshToken != "" {
		integration.RefreshToken = token.RefreshToken
		integration.RefreshTokenExpiresAt = token.RefreshExpiry(spec, now)
	}
	integration.RefreshTokenInvalid = false

	if err := s.integrations.UpsertIntegration(ctx, integration); err != nil {
		metrics.TokenRefreshes.WithLabelValues(providerName, metrics.OutcomeFailure).Inc()
		return fmt.Errorf("failed to persist refreshed tokens: %w", err)
	}

	metrics.TokenRefreshes.WithLabelValues(providerName, metrics.OutcomeSuccess).Inc()
	log.Info("Access token refreshed",
		"user_id", integration.UserID, "provider", providerName,
		"access_expires_at", integration.AccessTokenExpiresAt)
	return nil
}

// RefreshNow refreshes a single integration on demand
func (s *service) RefreshNow(ctx context.Context, userID, providerName string) error {
	if !domain.IsValidProvider(providerName) {
		return fmt.Errorf("%w: %s", domain.ErrInvalidProvider, providerName)
	}

	integration, err := s.integrations.GetIntegration(ctx, userID, providerName)
	if err != nil {
		return err
	}
	return s.RefreshIntegration(ctx, integration)
}

// ConnectionStatus reports one provider's diagnostics for a user
func (s *service) ConnectionStatus(ctx context.Context, userID, providerName string) (*ConnectionStatus, error) {
	if !domain.IsValidProvider(providerName) {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidProvider, providerName)
	}

	_, configured := s.creds.CredentialsFor(providerName)

	integration, err := s.integrations.GetIntegration(ctx, userID, providerName)
	if err != nil && !errors.Is(err, domain.ErrIntegrationNotFound) {
		return nil, err
	}

	status := &ConnectionStatus{
		Provider:   providerName,
		Configured: configured,
		Connected:  integration != nil,
		Health:     EvaluateHealth(integration, s.now()),
	}
	if integration != nil {
		status.ProviderUserID = integration.ProviderUserID
		status.SyncEnabled = integration.SyncEnabled
		status.LastSyncAt = integration.LastSyncAt
	}
	return status, nil
}

// ListConnectionStatuses reports every provider's diagnostics for a user
func (s *service) ListConnectionStatuses(ctx context.Context, userID string) ([]ConnectionStatus, error) {
	stored, err := s.integrations.ListIntegrationsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	byProvider := make(map[string]*domain.Integration, len(stored))
	for i := range stored {
		byProvider[stored[i].Provider] = &stored[i]
	}

	now := s.now()
	statuses := make([]ConnectionStatus, 0, len(domain.Providers))
	for _, name := range domain.Providers {
		_, configured := s.creds.CredentialsFor(name)
		integration := byProvider[name]

		status := ConnectionStatus{
			Provider:   name,
			Configured: configured,
			Connected:  integration != nil,
			Health:     EvaluateHealth(integration, now),
		}
		if integration != nil {
			status.ProviderUserID = integration.ProviderUserID
			status.SyncEnabled = integration.SyncEnabled
			status.LastSyncAt = integration.LastSyncAt
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// Disconnect revokes the provider-side grant (best effort) and deletes the
// local integration. Local deletion always proceeds.
func (s *service) Disconnect(ctx context.Context, userID, providerName string) error {
	log := logger.FromContext(ctx)

	if !domain.IsValidProvider(providerName) {
		return fmt.Errorf("%w: %s", domain.ErrInvalidProvider, providerName)
	}

	integration, err := s.integrations.GetIntegration(ctx, userID, providerName)
	if err != nil {
		if errors.Is(err, domain.ErrIntegrationNotFound) {
			return nil
		}
		return err
	}

	_ = s.revokeRemote(ctx, integration)

	if err := s.integrations.DeleteIntegration(ctx, userID, providerName); err != nil {
		return fmt.Errorf("failed to delete integration: %w", err)
	}

	log.Info("Integration disconnected", "user_id", userID, "provider", providerName)
	return nil
}

// revokeRemote attempts the provider-side revoke and reports whether it
// succeeded. The token is refreshed first when expired so the revoke call
// carries a live credential.
func (s *service) revokeRemote(ctx context.Context, integration *domain.Integration) bool {
	log := logger.FromContext(ctx)
	providerName := integration.Provider

	spec, creds, err := s.resolveProvider(providerName)
	if err != nil || !spec.SupportsRevoke() {
		// No public revoke endpoint: local deletion is the only available
		// teardown and counts as success.
		return false
	}

	if !integration.AccessTokenExpiresAt.After(s.now()) && !integration.RefreshTokenInvalid {
		if err := s.RefreshIntegration(ctx, integration); err != nil {
			log.Warn("Pre-revoke refresh failed, revoking with stale token",
				"user_id", integration.UserID, "provider", providerName, "error", err)
		}
	}

	if err := s.client.Revoke(ctx, spec, creds, integration.AccessToken); err != nil {
		metrics.Revocations.WithLabelValues(providerName, metrics.OutcomeFailure).Inc()
		log.Warn("Provider-side revoke failed, proceeding with local deletion",
			"user_id", integration.UserID, "provider", providerName, "error", err)
		return false
	}
	metrics.Revocations.WithLabelValues(providerName, metrics.OutcomeSuccess).Inc()
	return true
}

// RevokeAll tears down every integration for a user. Each provider is
// attempted independently; one failure never blocks the rest, and the
// aggregate is advisory because account deletion must always proceed.
func (s *service) RevokeAll(ctx context.Context, userID string) *RevocationResult {
	log := logger.FromContext(ctx)
	result := &RevocationResult{}

	stored, err := s.integrations.ListIntegrationsForUser(ctx, userID)
	if err != nil {
		log.Error("Failed to list integrations for revocation", "user_id", userID, "error", err)
		result.Errors = append(result.Errors, ProviderError{Provider: "*", Error: err.Error()})
		return result
	}

	for i := range stored {
		integration := &stored[i]
		result.Attempted++

		if s.revokeRemote(ctx, integration) {
			result.RemoteRevoked++
		}

		if err := s.integrations.DeleteIntegration(ctx, userID, integration.Provider); err != nil {
			result.Errors = append(result.Errors, ProviderError{
				Provider: integration.Provider,
				Error:    err.Error(),
			})
			continue
		}
		result.Deleted++
	}

	log.Info("Revocation pass complete",
		"user_id", userID,
		"attempted", result.Attempted,
		"deleted", result.Deleted,
		"errors", len(result.Errors))
	return result
}
