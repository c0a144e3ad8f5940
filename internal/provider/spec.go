package provider

import (
	"time"

	"github.com/pedalworks/trainsync/internal/domain"
)

// Spec captures one provider's OAuth capabilities. A single generic engine
// consumes this table instead of duplicating per-provider token logic.
type Spec struct {
	Name              string
	AuthorizeEndpoint string
	TokenEndpoint     string
	// ProfileEndpoint returns the provider's own identifier for the
	// connected account, which webhook correlation depends on.
	ProfileEndpoint string
	// RevokeEndpoint is empty for providers with no public revoke API
	// (Garmin, Wahoo); local deletion is the only available teardown there.
	RevokeEndpoint string
	Scopes         string

	// DefaultAccessTTL is used when the token response omits expires_in
	DefaultAccessTTL time.Duration
	// AccessRefreshThreshold is how far ahead of access-token expiry the
	// maintenance sweep refreshes proactively
	AccessRefreshThreshold time.Duration

	// RefreshTokenTTL is non-zero only where refresh tokens themselves
	// expire (Garmin, ~90 days)
	RefreshTokenTTL time.Duration
	// RefreshRefreshThreshold is the lookahead for the refresh-token expiry
	// predicate, the defense against silent token death
	RefreshRefreshThreshold time.Duration

	// RotatesRefreshToken is true when every refresh response carries a new
	// refresh token. When false and the response omits one, the stored
	// token is retained.
	RotatesRefreshToken bool

	// ProfileIDKeys are the JSON keys tried, in order, when extracting the
	// provider user id from the profile response
	ProfileIDKeys []string
}

// SupportsRevoke reports whether the provider has a public revoke endpoint
func (s Spec) SupportsRevoke() bool {
	return s.RevokeEndpoint != ""
}

// SupportsRefreshExpiry reports whether the provider's refresh tokens expire
func (s Spec) SupportsRefreshExpiry() bool {
	return s.RefreshTokenTTL > 0
}

var specs = map[string]Spec{
	domain.ProviderStrava: {
		Name:                   domain.ProviderStrava,
		AuthorizeEndpoint:      "https://www.strava.com/oauth/authorize",
		TokenEndpoint:          "https://www.strava.com/oauth/token",
		ProfileEndpoint:        "https://www.strava.com/api/v3/athlete",
		RevokeEndpoint:         "https://www.strava.com/oauth/deauthorize",
		Scopes:                 "read,activity:read_all,activity:write",
		DefaultAccessTTL:       6 * time.Hour,
		AccessRefreshThreshold: 24 * time.Hour,
		RotatesRefreshToken:    true,
		ProfileIDKeys:          []string{"id"},
	},
	domain.ProviderGarmin: {
		Name:                    domain.ProviderGarmin,
		AuthorizeEndpoint:       "https://connect.garmin.com/oauth2Confirm",
		TokenEndpoint:           "https://diauth.garmin.com/di-oauth2-service/oauth/token",
		ProfileEndpoint:         "https://apis.garmin.com/wellness-api/rest/user/id",
		Scopes:                  "",
		DefaultAccessTTL:        90 * 24 * time.Hour,
		AccessRefreshThreshold:  7 * 24 * time.Hour,
		RefreshTokenTTL:         90 * 24 * time.Hour,
		RefreshRefreshThreshold: 30 * 24 * time.Hour,
		RotatesRefreshToken:     true,
		ProfileIDKeys:           []string{"userId"},
	},
	domain.ProviderWahoo: {
		Name:                   domain.ProviderWahoo,
		AuthorizeEndpoint:      "https://api.wahooligan.com/oauth/authorize",
		TokenEndpoint:          "https://api.wahooligan.com/oauth/token",
		ProfileEndpoint:        "https://api.wahooligan.com/v1/user",
		Scopes:                 "user_read workouts_read routes_read plans_write",
		DefaultAccessTTL:       2 * time.Hour,
		AccessRefreshThreshold: 24 * time.Hour,
		RotatesRefreshToken:    true,
		ProfileIDKeys:          []string{"id"},
	},
	domain.ProviderGoogleCalendar: {
		Name:                   domain.ProviderGoogleCalendar,
		AuthorizeEndpoint:      "https://accounts.google.com/o/oauth2/v2/auth",
		TokenEndpoint:          "https://oauth2.googleapis.com/token",
		ProfileEndpoint:        "https://www.googleapis.com/oauth2/v2/userinfo",
		RevokeEndpoint:         "https://oauth2.googleapis.com/revoke",
		Scopes:                 "https://www.googleapis.com/auth/calendar.events openid",
		DefaultAccessTTL:       1 * time.Hour,
		AccessRefreshThreshold: 24 * time.Hour,
		RotatesRefreshToken:    false,
		ProfileIDKeys:          []string{"id", "sub"},
	},
}

// SpecFor returns the capability spec for a provider
func SpecFor(provider string) (Spec, bool) {
	spec, ok := specs[provider]
	return spec, ok
}

// AllSpecs returns every provider spec in domain.Providers order
func AllSpecs() []Spec {
	all := make([]Spec, 0, len(domain.Providers))
	for _, name := range domain.Providers {
		all = append(all, specs[name])
	}
	return all
}
