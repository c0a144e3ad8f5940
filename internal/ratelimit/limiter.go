package ratelimit

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// maxTrackedKeys bounds limiter memory. Eviction of a live window slightly
// favors the client, which is the right direction to fail in.
const maxTrackedKeys = 4096

type window struct {
	count   int
	resetAt time.Time
}

// Result reports the outcome of one rate limit check
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter is a fixed-window rate limiter keyed by an arbitrary string,
// typically "user_id:operation". Windows live in a bounded LRU so abandoned
// keys age out on their own.
type Limiter struct {
	mu      sync.Mutex
	windows *lru.Cache[string, *window]
	now     func() time.Time
}

// NewLimiter creates a new fixed-window limiter
func NewLimiter() (*Limiter, error) {
	cache, err := lru.New[string, *window](maxTrackedKeys)
	if err != nil {
		return nil, err
	}
	return &Limiter{windows: cache, now: time.Now}, nil
}

// Check consumes one attempt against the key's window and reports whether it
// was allowed. A new window opens when none exists or the current one has
// elapsed.
func (l *Limiter) Check(key string, limit int, windowSize time.Duration) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows.Get(key)
	if !ok || !w.resetAt.After(now) {
		w = &window{resetAt: now.Add(windowSize)}
		l.windows.Add(key, w)
	}

	if w.count >= limit {
		return Result{Allowed: false, Remaining: 0, ResetAt: w.resetAt}
	}

	w.count++
	return Result{Allowed: true, Remaining: limit - w.count, ResetAt: w.resetAt}
}

// Reset clears the window for a key
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.windows.Remove(key)
}
