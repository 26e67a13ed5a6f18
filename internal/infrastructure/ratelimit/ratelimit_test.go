package ratelimit

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentiva/rentiva/internal/app/config"
	"github.com/rentiva/rentiva/internal/infrastructure/redis/redistest"
	"github.com/rentiva/rentiva/pkg/logger"
)

func newService(t *testing.T) *Service {
	mgr, _ := redistest.NewManager(t)
	rules := config.RateLimitConfig{
		Login:  config.RateLimitRule{Window: time.Minute, Max: 5},
		Search: config.RateLimitRule{Window: time.Minute, Max: 2},
		PerIP:  config.RateLimitRule{Window: time.Minute, Max: 3},
	}
	return NewService(mgr, rules, logger.NewForTesting())
}

func TestCheck_SlidingWindow(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	window := time.Second
	var admitted []bool
	for i := 0; i < 4; i++ {
		result, err := svc.Check(ctx, "login:a@b.com", window, 3)
		require.NoError(t, err)
		admitted = append(admitted, result.Allowed)
	}
	assert.Equal(t, []bool{true, true, true, false}, admitted)
}

func TestCheck_RemainingAndRetryAfter(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	first, err := svc.Check(ctx, "login:a@b.com", time.Minute, 3)
	require.NoError(t, err)
	assert.True(t, first.Allowed)
	assert.Equal(t, 2, first.Remaining)

	svc.Check(ctx, "login:a@b.com", time.Minute, 3)
	third, err := svc.Check(ctx, "login:a@b.com", time.Minute, 3)
	require.NoError(t, err)
	assert.True(t, third.Allowed)
	assert.Equal(t, 0, third.Remaining)

	denied, err := svc.Check(ctx, "login:a@b.com", time.Minute, 3)
	require.NoError(t, err)
	assert.False(t, denied.Allowed)
	assert.Equal(t, 0, denied.Remaining)
	assert.Greater(t, denied.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, denied.RetryAfter, time.Minute)
}

func TestCheck_RetryAfterIgnoresAgedMembers(t *testing.T) {
	mgr, _ := redistest.NewManager(t)
	svc := NewService(mgr, config.RateLimitConfig{}, logger.NewForTesting())
	ctx := context.Background()

	// Pruning only runs on admission, so a member that aged out of the
	// window can still sit at the head of the sorted set when a denial
	// computes RetryAfter.
	window := time.Minute
	now := time.Now()
	err := mgr.Command().ZAdd(ctx, "rate_limit:login:a@b.com",
		goredis.Z{Score: float64(now.Add(-2 * window).UnixMilli()), Member: "aged"},
		goredis.Z{Score: float64(now.UnixMilli()), Member: "fresh"},
	).Err()
	require.NoError(t, err)

	denied, err := svc.Check(ctx, "login:a@b.com", window, 1)
	require.NoError(t, err)
	require.False(t, denied.Allowed)
	assert.Greater(t, denied.RetryAfter, 50*time.Second)
	assert.LessOrEqual(t, denied.RetryAfter, window)
}

func TestCheck_WindowSlides(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	window := 150 * time.Millisecond
	for i := 0; i < 2; i++ {
		result, err := svc.Check(ctx, "search:u1", window, 2)
		require.NoError(t, err)
		require.True(t, result.Allowed)
	}

	denied, err := svc.Check(ctx, "search:u1", window, 2)
	require.NoError(t, err)
	require.False(t, denied.Allowed)

	time.Sleep(200 * time.Millisecond)

	again, err := svc.Check(ctx, "search:u1", window, 2)
	require.NoError(t, err)
	assert.True(t, again.Allowed)
}

func TestReset(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		svc.Check(ctx, "login:a@b.com", time.Minute, 3)
	}
	denied, err := svc.Check(ctx, "login:a@b.com", time.Minute, 3)
	require.NoError(t, err)
	require.False(t, denied.Allowed)

	require.NoError(t, svc.Reset(ctx, "login:a@b.com"))

	result, err := svc.Check(ctx, "login:a@b.com", time.Minute, 3)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestBlock(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	blocked, err := svc.IsBlocked(ctx, "login:a@b.com")
	require.NoError(t, err)
	assert.False(t, blocked)

	require.NoError(t, svc.Block(ctx, "login:a@b.com", time.Hour))

	blocked, err = svc.IsBlocked(ctx, "login:a@b.com")
	require.NoError(t, err)
	assert.True(t, blocked)

	// A blocked key is denied regardless of its window state.
	result, err := svc.Check(ctx, "login:a@b.com", time.Minute, 100)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Greater(t, result.RetryAfter, time.Duration(0))

	require.NoError(t, svc.Unblock(ctx, "login:a@b.com"))

	result, err = svc.Check(ctx, "login:a@b.com", time.Minute, 100)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestStats(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	svc.Check(ctx, "login:a@b.com", time.Minute, 5)
	svc.Check(ctx, "search:u1", time.Minute, 5)
	require.NoError(t, svc.Block(ctx, "upload:u2", time.Hour))

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalKeys)
	assert.Equal(t, 2, stats.ActiveKeys)
	assert.Equal(t, 1, stats.BlockedKeys)
}

func TestCategoryWrappers(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	result, err := svc.CheckLogin(ctx, "a@b.com")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 4, result.Remaining)

	// The configured search limit is 2.
	svc.CheckSearch(ctx, "u1")
	svc.CheckSearch(ctx, "u1")
	denied, err := svc.CheckSearch(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, denied.Allowed)

	// Per-IP windows are scoped to ip+endpoint.
	r1, err := svc.CheckIP(ctx, "10.0.0.1", "/properties")
	require.NoError(t, err)
	assert.True(t, r1.Allowed)
	r2, err := svc.CheckIP(ctx, "10.0.0.1", "/search")
	require.NoError(t, err)
	assert.Equal(t, 2, r2.Remaining)
}
