package rate

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryLimiter is the single-process counterpart of RedisLimiter. Window
// counters live in a go-cache and expire with their window.
type MemoryLimiter struct {
	Max    int64
	Window time.Duration

	c   *gocache.Cache
	now func() time.Time
}

func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		Max:    int64(max),
		Window: window,
		c:      gocache.New(window, time.Minute),
		now:    time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	winStart, ttl := windowBounds(l.now().UTC(), l.Window)
	cacheKey := fmt.Sprintf("%s:%d", key, winStart.UnixNano())

	var hits int64
	for {
		// Add is a no-op when the window is already open
		_ = l.c.Add(cacheKey, int64(0), ttl)
		n, err := l.c.IncrementInt64(cacheKey, 1)
		if err == nil {
			hits = n
			break
		}
	}

	res := Result{
		Allowed:     hits <= l.Max,
		Remaining:   max(l.Max-hits, 0),
		CurrentHits: hits,
		WindowTTL:   ttl,
	}
	if !res.Allowed {
		res.RetryAfter = ttl
	}
	return res, nil
}

var _ Limiter = (*MemoryLimiter)(nil)
