package rate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiterFixedWindow(t *testing.T) {
	l := NewMemoryLimiter(2, time.Minute)
	base := time.Date(2026, 1, 1, 10, 0, 5, 0, time.UTC)
	l.now = func() time.Time { return base }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := l.Allow(ctx, "smtp")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	res, err := l.Allow(ctx, "smtp")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(0), res.Remaining)
	assert.Equal(t, 55*time.Second, res.RetryAfter)

	// other keys have their own budget
	res, err = l.Allow(ctx, "other")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	// the next window starts fresh
	l.now = func() time.Time { return base.Add(time.Minute) }
	res, err = l.Allow(ctx, "smtp")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(1), res.CurrentHits)
}

func TestWaitHonoursContext(t *testing.T) {
	l := NewMemoryLimiter(1, time.Hour)
	ctx := context.Background()
	require.NoError(t, Wait(ctx, l, "smtp"))

	ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, Wait(ctx, l, "smtp"), context.DeadlineExceeded)
}

func TestWaitNilLimiter(t *testing.T) {
	assert.NoError(t, Wait(context.Background(), nil, "smtp"))
}
