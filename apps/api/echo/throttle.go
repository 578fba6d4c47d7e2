package echoapi

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"
)

// throttler counts attempts per client IP and identifier in fixed windows.
// A limit <= 0 disables it.
type throttler struct {
	attempts *cache.Cache
	limit    int
	window   time.Duration
}

func newThrottler(limit int, window time.Duration) *throttler {
	if window <= 0 {
		window = time.Minute
	}
	return &throttler{
		attempts: cache.New(window, 2*window),
		limit:    limit,
		window:   window,
	}
}

func (t *throttler) key(ctx echo.Context, scope, id string) string {
	return scope + ":" + ctx.RealIP() + ":" + strings.ToLower(strings.TrimSpace(id))
}

// allowed reports whether key has attempts left in the current window.
func (t *throttler) allowed(key string) bool {
	if t.limit <= 0 {
		return true
	}
	return t.count(key) < t.limit
}

// hit records an attempt; the window starts at the first one.
// The window may expire between Add and IncrementInt, so both are retried until one counts.
func (t *throttler) hit(key string) {
	if t.limit <= 0 {
		return
	}
	for {
		if err := t.attempts.Add(key, 1, t.window); err == nil {
			return
		}
		if _, err := t.attempts.IncrementInt(key, 1); err == nil {
			return
		}
	}
}

// count returns the attempts of key in the current window.
func (t *throttler) count(key string) int {
	n, ok := t.attempts.Get(key)
	if !ok {
		return 0
	}
	return n.(int)
}

func (t *throttler) reset(key string) {
	t.attempts.Delete(key)
}
