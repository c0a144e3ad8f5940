package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/pedalworks/trainsync/internal/domain"
)

// ProviderCredentials holds one provider's OAuth client configuration.
// A provider with an empty ClientID is simply not configured; that is a
// degraded state surfaced to callers, never a startup failure.
type ProviderCredentials struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// Configured reports whether this provider can run an OAuth flow. All three
// values are required; a missing redirect URI would produce authorization
// URLs the provider rejects.
func (pc ProviderCredentials) Configured() bool {
	return pc.ClientID != "" && pc.ClientSecret != "" && pc.RedirectURI != ""
}

// Config holds the application configuration
type Config struct {
	Port        int
	APIKey      string // API key for authentication
	Environment string
	ServiceName string
	Version     string

	LogLevel  string
	LogFormat string
	LogDir    string

	// TrustedProxies are the proxy IPs whose X-Forwarded-For is honored
	TrustedProxies []string

	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string

	DBMaxConns    int
	DBMinConns    int
	DBMaxIdleTime time.Duration
	DBMaxLifetime time.Duration

	// MaintenanceInterval is how often the token maintenance sweep runs
	MaintenanceInterval time.Duration

	// RateLimitPerWindow and RateLimitWindow bound provider-facing requests
	// per user before any provider work happens
	RateLimitPerWindow int
	RateLimitWindow    time.Duration

	Providers map[string]ProviderCredentials
}

// Load loads the configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists, but don't fail if it doesn't (could be real env vars)
	_ = godotenv.Load()

	cfg := &Config{
		APIKey:      getEnv("API_KEY", ""),
		Environment: getEnv("ENVIRONMENT", "dev"),
		ServiceName: getEnv("SERVICE_NAME", "trainsync"),
		Version:     getEnv("VERSION", "dev"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "text"),
		LogDir:      getEnv("LOG_DIR", "logs"),

		TrustedProxies: splitAndTrim(getEnv("TRUSTED_PROXIES", "")),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", "postgres"),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBName:         getEnv("DB_NAME", "trainsync"),

		DBMaxConns:    getEnvAsInt("DB_MAX_CONNS", 10),
		DBMinConns:    getEnvAsInt("DB_MIN_CONNS", 2),
		DBMaxIdleTime: getEnvAsDuration("DB_MAX_IDLE_TIME", 5*time.Minute),
		DBMaxLifetime: getEnvAsDuration("DB_MAX_LIFETIME", 30*time.Minute),

		MaintenanceInterval: getEnvAsDuration("MAINTENANCE_INTERVAL", 6*time.Hour),
		RateLimitPerWindow:  getEnvAsInt("RATE_LIMIT_PER_WINDOW", 10),
		RateLimitWindow:     getEnvAsDuration("RATE_LIMIT_WINDOW", 15*time.Minute),

		Providers: loadProviderCredentials(),
	}

	cfg.Port = getEnvAsInt("PORT", 8080)

	// Validate API key is set
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API_KEY environment variable must be set for security")
	}

	return cfg, nil
}

// loadProviderCredentials reads per-provider OAuth settings. Env var names
// follow the pattern STRAVA_CLIENT_ID, GARMIN_CLIENT_SECRET, etc.
func loadProviderCredentials() map[string]ProviderCredentials {
	prefixes := map[string]string{
		domain.ProviderStrava:         "STRAVA",
		domain.ProviderGarmin:         "GARMIN",
		domain.ProviderWahoo:          "WAHOO",
		domain.ProviderGoogleCalendar: "GOOGLE_CALENDAR",
	}

	creds := make(map[string]ProviderCredentials, len(prefixes))
	for provider, prefix := range prefixes {
		creds[provider] = ProviderCredentials{
			ClientID:     getEnv(prefix+"_CLIENT_ID", ""),
			ClientSecret: getEnv(prefix+"_CLIENT_SECRET", ""),
			RedirectURI:  getEnv(prefix+"_REDIRECT_URI", ""),
		}
	}
	return creds
}

// ProviderFor returns the credentials for a provider. The zero value is
// returned for unknown providers; callers check Configured().
func (c *Config) ProviderFor(provider string) ProviderCredentials {
	return c.Providers[provider]
}

// splitAndTrim parses a comma-separated list, dropping empty entries
func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an int or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// getEnvAsDuration retrieves an environment variable as a duration or returns a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// GetDBConnString returns the PostgreSQL connection string
func (c *Config) GetDBConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser,
		c.DBPassword,
		c.DBHost,
		c.DBPort,
		c.DBName,
	)
}
