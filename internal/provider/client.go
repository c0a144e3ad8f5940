package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pedalworks/trainsync/internal/domain"
	"github.com/pedalworks/trainsync/internal/logger"
)

// Credentials holds one provider's OAuth client configuration
type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// TokenResponse is the normalized result of an exchange or refresh call
type TokenResponse struct {
	AccessToken           string `json:"access_token"`
	RefreshToken          string `json:"refresh_token"`
	ExpiresIn             int64  `json:"expires_in"`
	RefreshTokenExpiresIn int64  `json:"refresh_token_expires_in"`
	Scope                 string `json:"scope"`
}

// AccessExpiry computes the access token expiry instant, falling back to the
// provider default when expires_in is absent.
func (t *TokenResponse) AccessExpiry(spec Spec, now time.Time) time.Time {
	if t.ExpiresIn > 0 {
		return now.Add(time.Duration(t.ExpiresIn) * time.Second)
	}
	return now.Add(spec.DefaultAccessTTL)
}

// RefreshExpiry computes the refresh token expiry instant for providers whose
// refresh tokens expire; nil otherwise.
func (t *TokenResponse) RefreshExpiry(spec Spec, now time.Time) *time.Time {
	if !spec.SupportsRefreshExpiry() {
		return nil
	}
	ttl := spec.RefreshTokenTTL
	if t.RefreshTokenExpiresIn > 0 {
		ttl = time.Duration(t.RefreshTokenExpiresIn) * time.Second
	}
	expiry := now.Add(ttl)
	return &expiry
}

// Client performs the provider-facing OAuth HTTP calls for every provider,
// driven entirely by the Spec capability table.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a provider client
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// NewClientWithHTTP creates a provider client with a custom HTTP client (tests)
func NewClientWithHTTP(httpClient *http.Client) *Client {
	return &Client{httpClient: httpClient}
}

// AuthorizationURL builds the provider's authorization URL with PKCE
// challenge and CSRF state populated.
func (c *Client) AuthorizationURL(spec Spec, creds Credentials, state, codeChallenge string) string {
	params := url.Values{}
	params.Set("client_id", creds.ClientID)
	params.Set("redirect_uri", creds.RedirectURI)
	params.Set("response_type", "code")
	params.Set("state", state)
	params.Set("code_challenge", codeChallenge)
	params.Set("code_challenge_method", "S256")
	if spec.Scopes != "" {
		params.Set("scope", spec.Scopes)
	}
	if spec.Name == domain.ProviderGoogleCalendar {
		// Google only issues a refresh token for offline access with consent
		params.Set("access_type", "offline")
		params.Set("prompt", "consent")
	}
	return spec.AuthorizeEndpoint + "?" + params.Encode()
}

// ExchangeCode swaps an authorization code for a token pair. The code is
// single-use at the provider; callers must treat this as a point of no return
// for the pending authorization.
func (c *Client) ExchangeCode(ctx context.Context, spec Spec, creds Credentials, code, codeVerifier string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", creds.ClientID)
	form.Set("client_secret", creds.ClientSecret)
	form.Set("code", code)
	form.Set("code_verifier", codeVerifier)
	form.Set("redirect_uri", creds.RedirectURI)

	return c.postToken(ctx, spec.TokenEndpoint, form)
}

// Refresh renews an access token from a refresh token. Failures are
// classified before return: terminal rejections wrap
// domain.ErrRequiresReconnect, everything else wraps
// domain.ErrTransientRefresh so callers never mark an integration invalid on
// a network blip.
func (c *Client) Refresh(ctx context.Context, spec Spec, creds Credentials, refreshToken string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", creds.ClientID)
	form.Set("client_secret", creds.ClientSecret)
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, spec.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransientRefresh, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransientRefresh, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransientRefresh, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyRefreshFailure(resp.StatusCode, body)
	}

	var token TokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("%w: malformed token response: %v", domain.ErrTransientRefresh, err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response missing access_token", domain.ErrTransientRefresh)
	}
	return &token, nil
}

// FetchProviderUserID resolves the provider's own identifier for the
// connected account, plus the raw profile blob for display metadata.
func (c *Client) FetchProviderUserID(ctx context.Context, spec Spec, accessToken string) (string, json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, spec.ProfileEndpoint, nil)
	if err != nil {
		return "", nil, fmt.Errorf("failed to build profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("profile request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", nil, fmt.Errorf("failed to read profile response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("profile request returned status %d", resp.StatusCode)
	}

	var profile map[string]json.RawMessage
	if err := json.Unmarshal(body, &profile); err != nil {
		return "", nil, fmt.Errorf("malformed profile response: %w", err)
	}

	for _, key := range spec.ProfileIDKeys {
		raw, ok := profile[key]
		if !ok {
			continue
		}
		if id := rawToString(raw); id != "" {
			return id, body, nil
		}
	}
	return "", nil, fmt.Errorf("profile response has no usable id field")
}

// Revoke calls the provider's revoke endpoint. Only invoked for providers
// where SupportsRevoke is true; failures are reported but callers treat
// local deletion as the source of truth.
func (c *Client) Revoke(ctx context.Context, spec Spec, creds Credentials, accessToken string) error {
	if !spec.SupportsRevoke() {
		return nil
	}

	form := url.Values{}
	switch spec.Name {
	case domain.ProviderGoogleCalendar:
		form.Set("token", accessToken)
	default:
		form.Set("access_token", accessToken)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, spec.RevokeEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if spec.Name != domain.ProviderGoogleCalendar {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoke request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("revoke request returned status %d", resp.StatusCode)
	}

	logger.FromContext(ctx).Info("Provider token revoked", "provider", spec.Name)
	return nil
}

func (c *Client) postToken(ctx context.Context, endpoint string, form url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var token TokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("malformed token response: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}
	return &token, nil
}

// rawToString accepts either a JSON string or number as an identifier
func rawToString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func truncate(body []byte, limit int) string {
	if len(body) <= limit {
		return string(body)
	}
	return string(body[:limit]) + "..."
}
