package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T) (*Limiter, *time.Time) {
	t.Helper()
	limiter, err := NewLimiter()
	require.NoError(t, err)

	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return current }
	return limiter, &current
}

func TestCheck(t *testing.T) {
	t.Run("allows up to the limit then blocks", func(t *testing.T) {
		limiter, _ := newTestLimiter(t)

		for i := 0; i < 3; i++ {
			result := limiter.Check("user-1:connect", 3, time.Minute)
			assert.True(t, result.Allowed)
			assert.Equal(t, 2-i, result.Remaining)
		}

		result := limiter.Check("user-1:connect", 3, time.Minute)
		assert.False(t, result.Allowed)
		assert.Equal(t, 0, result.Remaining)
	})

	t.Run("window elapses and resets", func(t *testing.T) {
		limiter, current := newTestLimiter(t)

		for i := 0; i < 3; i++ {
			limiter.Check("user-1:connect", 3, time.Minute)
		}
		assert.False(t, limiter.Check("user-1:connect", 3, time.Minute).Allowed)

		*current = current.Add(time.Minute + time.Second)

		result := limiter.Check("user-1:connect", 3, time.Minute)
		assert.True(t, result.Allowed)
		assert.Equal(t, 2, result.Remaining)
	})

	t.Run("keys are independent", func(t *testing.T) {
		limiter, _ := newTestLimiter(t)

		for i := 0; i < 3; i++ {
			limiter.Check("user-1:connect", 3, time.Minute)
		}
		assert.False(t, limiter.Check("user-1:connect", 3, time.Minute).Allowed)
		assert.True(t, limiter.Check("user-2:connect", 3, time.Minute).Allowed)
		assert.True(t, limiter.Check("user-1:refresh", 3, time.Minute).Allowed)
	})

	t.Run("reset clears the window", func(t *testing.T) {
		limiter, _ := newTestLimiter(t)

		for i := 0; i < 3; i++ {
			limiter.Check("user-1:connect", 3, time.Minute)
		}
		limiter.Reset("user-1:connect")
		assert.True(t, limiter.Check("user-1:connect", 3, time.Minute).Allowed)
	})

	t.Run("reports reset time", func(t *testing.T) {
		limiter, current := newTestLimiter(t)

		result := limiter.Check("user-1:connect", 3, time.Minute)
		assert.Equal(t, current.Add(time.Minute), result.ResetAt)
	})
}
