package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGetEnvAsInt tests the getEnvAsInt helper function
func TestGetEnvAsInt(t *testing.T) {
	t.Run("returns default value when env var not set", func(t *testing.T) {
		os.Unsetenv("TEST_INT_VAR")
		result := getEnvAsInt("TEST_INT_VAR", 42)
		assert.Equal(t, 42, result)
	})

	t.Run("parses valid integer from env var", func(t *testing.T) {
		t.Setenv("TEST_INT_VAR", "100")
		result := getEnvAsInt("TEST_INT_VAR", 42)
		assert.Equal(t, 100, result)
	})

	t.Run("returns default for invalid integer", func(t *testing.T) {
		t.Setenv("TEST_INT_VAR", "not-a-number")
		result := getEnvAsInt("TEST_INT_VAR", 42)
		assert.Equal(t, 42, result, "Should return default for invalid integer")
	})
}

// TestGetEnvAsDuration tests the getEnvAsDuration helper function
func TestGetEnvAsDuration(t *testing.T) {
	t.Run("returns default value when env var not set", func(t *testing.T) {
		os.Unsetenv("TEST_DURATION_VAR")
		result := getEnvAsDuration("TEST_DURATION_VAR", 5*time.Minute)
		assert.Equal(t, 5*time.Minute, result)
	})

	t.Run("parses valid duration from env var", func(t *testing.T) {
		t.Setenv("TEST_DURATION_VAR", "10m")
		result := getEnvAsDuration("TEST_DURATION_VAR", 5*time.Minute)
		assert.Equal(t, 10*time.Minute, result)
	})

	t.Run("returns default for invalid duration", func(t *testing.T) {
		t.Setenv("TEST_DURATION_VAR", "soon")
		result := getEnvAsDuration("TEST_DURATION_VAR", 5*time.Minute)
		assert.Equal(t, 5*time.Minute, result)
	})
}

func TestLoad(t *testing.T) {
	t.Run("fails without API key", func(t *testing.T) {
		os.Unsetenv("API_KEY")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "API_KEY")
	})

	t.Run("loads defaults with API key set", func(t *testing.T) {
		t.Setenv("API_KEY", "test-key")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Port)
		assert.Equal(t, 6*time.Hour, cfg.MaintenanceInterval)
		assert.Equal(t, "trainsync", cfg.DBName)
	})

	t.Run("loads provider credentials", func(t *testing.T) {
		t.Setenv("API_KEY", "test-key")
		t.Setenv("STRAVA_CLIENT_ID", "client-1")
		t.Setenv("STRAVA_CLIENT_SECRET", "secret-1")
		t.Setenv("STRAVA_REDIRECT_URI", "https://example.com/callback")

		cfg, err := Load()
		require.NoError(t, err)

		strava := cfg.ProviderFor("strava")
		assert.True(t, strava.Configured())
		assert.Equal(t, "client-1", strava.ClientID)

		garmin := cfg.ProviderFor("garmin")
		assert.False(t, garmin.Configured(), "unset provider should report unconfigured")
	})

	t.Run("provider without redirect URI is unconfigured", func(t *testing.T) {
		t.Setenv("API_KEY", "test-key")
		t.Setenv("WAHOO_CLIENT_ID", "client-2")
		t.Setenv("WAHOO_CLIENT_SECRET", "secret-2")
		os.Unsetenv("WAHOO_REDIRECT_URI")

		cfg, err := Load()
		require.NoError(t, err)
		assert.False(t, cfg.ProviderFor("wahoo").Configured())
	})

	t.Run("parses trusted proxies list", func(t *testing.T) {
		t.Setenv("API_KEY", "test-key")
		t.Setenv("TRUSTED_PROXIES", "10.0.0.1, 10.0.0.2 ,,")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.TrustedProxies)
	})

	t.Run("unknown provider is unconfigured", func(t *testing.T) {
		t.Setenv("API_KEY", "test-key")
		cfg, err := Load()
		require.NoError(t, err)
		assert.False(t, cfg.ProviderFor("myspace").Configured())
	})
}
