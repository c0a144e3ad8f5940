package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedalworks/trainsync/internal/domain"
)

func testSpec(tokenURL, profileURL, revokeURL string) Spec {
	return Spec{
		Name:              "strava",
		AuthorizeEndpoint: "https://example.com/authorize",
		TokenEndpoint:     tokenURL,
		ProfileEndpoint:   profileURL,
		RevokeEndpoint:    revokeURL,
		Scopes:            "read",
		DefaultAccessTTL:  6 * time.Hour,
		ProfileIDKeys:     []string{"id"},
	}
}

func testCreds() Credentials {
	return Credentials{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "https://app.example.com/callback",
	}
}

func TestAuthorizationURL(t *testing.T) {
	client := NewClient()
	spec := testSpec("https://example.com/token", "", "")

	rawURL := client.AuthorizationURL(spec, testCreds(), "state-token", "challenge-value")

	parsed, err := url.Parse(rawURL)
	require.NoError(t, err)
	q := parsed.Query()
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "state-token", q.Get("state"))
	assert.Equal(t, "challenge-value", q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, "read", q.Get("scope"))
}

func TestAuthorizationURL_GoogleOfflineAccess(t *testing.T) {
	client := NewClient()
	spec, ok := SpecFor(domain.ProviderGoogleCalendar)
	require.True(t, ok)

	rawURL := client.AuthorizationURL(spec, testCreds(), "s", "c")
	parsed, err := url.Parse(rawURL)
	require.NoError(t, err)
	assert.Equal(t, "offline", parsed.Query().Get("access_type"))
	assert.Equal(t, "consent", parsed.Query().Get("prompt"))
}

func TestExchangeCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.Form.Get("grant_type"))
		assert.Equal(t, "the-code", r.Form.Get("code"))
		assert.Equal(t, "the-verifier", r.Form.Get("code_verifier"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at","refresh_token":"rt","expires_in":3600}`))
	}))
	defer server.Close()

	client := NewClientWithHTTP(server.Client())
	spec := testSpec(server.URL, "", "")

	token, err := client.ExchangeCode(context.Background(), spec, testCreds(), "the-code", "the-verifier")
	require.NoError(t, err)
	assert.Equal(t, "at", token.AccessToken)
	assert.Equal(t, "rt", token.RefreshToken)
	assert.EqualValues(t, 3600, token.ExpiresIn)
}

func TestExchangeCode_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_request"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClientWithHTTP(server.Client())
	spec := testSpec(server.URL, "", "")

	_, err := client.ExchangeCode(context.Background(), spec, testCreds(), "bad", "v")
	assert.Error(t, err)
}

func TestRefresh_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "old-refresh", r.Form.Get("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"new-at","refresh_token":"new-rt","expires_in":7200}`))
	}))
	defer server.Close()

	client := NewClientWithHTTP(server.Client())
	spec := testSpec(server.URL, "", "")

	token, err := client.Refresh(context.Background(), spec, testCreds(), "old-refresh")
	require.NoError(t, err)
	assert.Equal(t, "new-at", token.AccessToken)
	assert.Equal(t, "new-rt", token.RefreshToken)
}

func TestRefresh_TerminalRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant","error_description":"token revoked"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClientWithHTTP(server.Client())
	spec := testSpec(server.URL, "", "")

	_, err := client.Refresh(context.Background(), spec, testCreds(), "dead-token")
	assert.ErrorIs(t, err, domain.ErrRequiresReconnect)
	assert.NotErrorIs(t, err, domain.ErrTransientRefresh)
}

func TestRefresh_ServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClientWithHTTP(server.Client())
	spec := testSpec(server.URL, "", "")

	_, err := client.Refresh(context.Background(), spec, testCreds(), "token")
	assert.ErrorIs(t, err, domain.ErrTransientRefresh)
	assert.NotErrorIs(t, err, domain.ErrRequiresReconnect)
}

func TestRefresh_NetworkErrorIsTransient(t *testing.T) {
	client := NewClientWithHTTP(&http.Client{Timeout: 100 * time.Millisecond})
	spec := testSpec("http://127.0.0.1:1/token", "", "")

	_, err := client.Refresh(context.Background(), spec, testCreds(), "token")
	assert.ErrorIs(t, err, domain.ErrTransientRefresh)
}

func TestClassifyRefreshFailure(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		terminal bool
	}{
		{"invalid_grant body", 400, `{"error":"invalid_grant"}`, true},
		{"revoked body", 400, `{"message":"access revoked by user"}`, true},
		{"bare 401", 401, `{}`, true},
		{"bare 400", 400, `{"error":"temporarily_unavailable"}`, false},
		{"rate limited", 429, `slow down`, false},
		{"server error", 503, `try later`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyRefreshFailure(tt.status, []byte(tt.body))
			if tt.terminal {
				assert.ErrorIs(t, err, domain.ErrRequiresReconnect)
			} else {
				assert.ErrorIs(t, err, domain.ErrTransientRefresh)
			}
		})
	}
}

func TestFetchProviderUserID_NumericID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer the-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":12345,"firstname":"Ada"}`))
	}))
	defer server.Close()

	client := NewClientWithHTTP(server.Client())
	spec := testSpec("", server.URL, "")

	id, raw, err := client.FetchProviderUserID(context.Background(), spec, "the-token")
	require.NoError(t, err)
	assert.Equal(t, "12345", id)
	assert.Contains(t, string(raw), "Ada")
}

func TestFetchProviderUserID_StringID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"userId":"garmin-abc-123"}`))
	}))
	defer server.Close()

	client := NewClientWithHTTP(server.Client())
	spec := testSpec("", server.URL, "")
	spec.ProfileIDKeys = []string{"userId"}

	id, _, err := client.FetchProviderUserID(context.Background(), spec, "t")
	require.NoError(t, err)
	assert.Equal(t, "garmin-abc-123", id)
}

func TestFetchProviderUserID_MissingID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"nobody"}`))
	}))
	defer server.Close()

	client := NewClientWithHTTP(server.Client())
	spec := testSpec("", server.URL, "")

	_, _, err := client.FetchProviderUserID(context.Background(), spec, "t")
	assert.Error(t, err)
}

func TestRevoke_UnsupportedProviderIsNoop(t *testing.T) {
	client := NewClient()
	spec := testSpec("", "", "") // no revoke endpoint, like Garmin/Wahoo

	assert.NoError(t, client.Revoke(context.Background(), spec, testCreds(), "token"))
}

func TestRevoke_CallsEndpoint(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "the-token", r.Form.Get("access_token"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClientWithHTTP(server.Client())
	spec := testSpec("", "", server.URL)

	require.NoError(t, client.Revoke(context.Background(), spec, testCreds(), "the-token"))
	assert.True(t, called)
}

func TestSpecTable(t *testing.T) {
	for _, name := range domain.Providers {
		spec, ok := SpecFor(name)
		require.True(t, ok, "missing spec for %s", name)
		assert.Equal(t, name, spec.Name)
		assert.NotEmpty(t, spec.TokenEndpoint)
		assert.NotEmpty(t, spec.ProfileEndpoint)
		assert.Greater(t, spec.DefaultAccessTTL, time.Duration(0))
	}

	garmin, _ := SpecFor(domain.ProviderGarmin)
	assert.True(t, garmin.SupportsRefreshExpiry())
	assert.False(t, garmin.SupportsRevoke())

	strava, _ := SpecFor(domain.ProviderStrava)
	assert.False(t, strava.SupportsRefreshExpiry())
	assert.True(t, strava.SupportsRevoke())
}

func TestTokenResponseExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	spec := testSpec("", "", "")

	withExpiry := &TokenResponse{ExpiresIn: 3600}
	assert.Equal(t, now.Add(time.Hour), withExpiry.AccessExpiry(spec, now))

	// Missing expires_in falls back to the provider default
	withoutExpiry := &TokenResponse{}
	assert.Equal(t, now.Add(6*time.Hour), withoutExpiry.AccessExpiry(spec, now))

	// Providers without refresh expiry report nil
	assert.Nil(t, withExpiry.RefreshExpiry(spec, now))

	garmin, _ := SpecFor(domain.ProviderGarmin)
	expiry := withoutExpiry.RefreshExpiry(garmin, now)
	require.NotNil(t, expiry)
	assert.Equal(t, now.Add(garmin.RefreshTokenTTL), *expiry)
}
