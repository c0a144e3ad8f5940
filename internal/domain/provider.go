package domain

// Provider name constants - stable identifiers for external fitness platforms
const (
	ProviderStrava         = "strava"
	ProviderGarmin         = "garmin"
	ProviderWahoo          = "wahoo"
	ProviderGoogleCalendar = "google_calendar"
)

// Providers lists every supported provider in a stable order.
// Iteration order matters for the disconnect-all path so results are deterministic.
var Providers = []string{
	ProviderStrava,
	ProviderGarmin,
	ProviderWahoo,
	ProviderGoogleCalendar,
}

// IsValidProvider reports whether the given name is a supported provider
func IsValidProvider(provider string) bool {
	switch provider {
	case ProviderStrava, ProviderGarmin, ProviderWahoo, ProviderGoogleCalendar:
		return true
	}
	return false
}
