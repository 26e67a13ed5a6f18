package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentiva/rentiva/internal/app/config"
	"github.com/rentiva/rentiva/internal/domain/coordination"
	"github.com/rentiva/rentiva/internal/infrastructure/redis/redistest"
	"github.com/rentiva/rentiva/pkg/logger"
)

func newService(t *testing.T) (*Service, *miniredis.Miniredis) {
	mgr, mr := redistest.NewManager(t)
	svc := NewService(mgr, config.SessionConfig{DefaultTTL: 24 * time.Hour, ActivityMax: 100}, logger.NewForTesting())
	return svc, mr
}

func userSession(userID string) coordination.SessionData {
	return coordination.SessionData{
		UserID:    userID,
		Email:     userID + "@example.com",
		Role:      "tenant",
		IPAddress: "10.0.0.1",
		UserAgent: "test-agent",
	}
}

func TestSession_CreateAndGet(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.Create(ctx, "s1", userSession("u1"), time.Hour))

	got, err := svc.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "u1@example.com", got.Email)
	assert.Equal(t, "tenant", got.Role)
	assert.False(t, got.LastActivity.IsZero())

	ids, err := svc.SessionsForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids)
}

func TestSession_GetMissing(t *testing.T) {
	svc, _ := newService(t)

	got, err := svc.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSession_GetRefreshesActivity(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	data := userSession("u1")
	data.LastActivity = time.Now().Add(-time.Hour)
	require.NoError(t, svc.Create(ctx, "s1", data, time.Hour))

	got, err := svc.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.WithinDuration(t, time.Now(), got.LastActivity, 5*time.Second)
}

func TestSession_Update(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.Create(ctx, "s1", userSession("u1"), time.Hour))

	err := svc.Update(ctx, "s1", func(d *coordination.SessionData) {
		d.Role = "landlord"
	})
	require.NoError(t, err)

	got, err := svc.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "landlord", got.Role)

	// Updating a missing session is an error, not a silent create.
	err = svc.Update(ctx, "nope", func(d *coordination.SessionData) {})
	assert.Error(t, err)
}

func TestSession_Delete(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.Create(ctx, "s1", userSession("u1"), time.Hour))
	require.NoError(t, svc.TrackActivity(ctx, "s1", "login"))

	require.NoError(t, svc.Delete(ctx, "s1"))

	got, err := svc.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, got)

	ids, err := svc.SessionsForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSession_DeleteAllForUser(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, svc.Create(ctx, fmt.Sprintf("s%d", i), userSession("u1"), time.Hour))
	}
	require.NoError(t, svc.Create(ctx, "other", userSession("u2"), time.Hour))

	require.NoError(t, svc.DeleteAllForUser(ctx, "u1"))

	for i := 1; i <= 3; i++ {
		got, err := svc.Get(ctx, fmt.Sprintf("s%d", i))
		require.NoError(t, err)
		assert.Nil(t, got)
	}
	ids, err := svc.SessionsForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, ids)

	// The other user's session is untouched.
	got, err := svc.Get(ctx, "other")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestSession_DeleteAllForUserMixedTTLs(t *testing.T) {
	svc, mr := newService(t)
	ctx := context.Background()

	// A short-lived second login must not shrink the index below the long
	// session's remaining life, or the long session escapes bulk revocation.
	require.NoError(t, svc.Create(ctx, "s-long", userSession("u1"), 24*time.Hour))
	require.NoError(t, svc.Create(ctx, "s-short", userSession("u1"), time.Hour))

	assert.Greater(t, mr.TTL("user_sessions:u1"), time.Hour)

	mr.FastForward(2 * time.Hour)

	require.NoError(t, svc.DeleteAllForUser(ctx, "u1"))

	got, err := svc.Get(ctx, "s-long")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSession_ExtendKeepsIndexAlive(t *testing.T) {
	svc, mr := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.Create(ctx, "s1", userSession("u1"), 10*time.Hour))
	require.NoError(t, svc.Create(ctx, "s2", userSession("u1"), 10*time.Hour))

	// Shortening one session leaves the index covering the other.
	require.NoError(t, svc.Extend(ctx, "s2", time.Hour))
	assert.Greater(t, mr.TTL("user_sessions:u1"), time.Hour)

	// Extending past the index pushes it out.
	require.NoError(t, svc.Extend(ctx, "s1", 48*time.Hour))
	assert.Greater(t, mr.TTL("user_sessions:u1"), 24*time.Hour)
}

func TestSession_Extend(t *testing.T) {
	svc, mr := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.Create(ctx, "s1", userSession("u1"), time.Hour))
	require.NoError(t, svc.Extend(ctx, "s1", 3*time.Hour))

	ttl := mr.TTL("session:s1")
	assert.Greater(t, ttl, time.Hour)
}

func TestSession_TTLExpiry(t *testing.T) {
	svc, mr := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.Create(ctx, "s1", userSession("u1"), time.Minute))
	mr.FastForward(2 * time.Minute)

	got, err := svc.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSession_TrackActivityCapped(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.Create(ctx, "s1", userSession("u1"), time.Hour))

	for i := 0; i < 105; i++ {
		require.NoError(t, svc.TrackActivity(ctx, "s1", fmt.Sprintf("view_property_%d", i)))
	}

	entries, err := svc.GetActivity(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Len(t, entries, 100)
	// Newest first.
	assert.Contains(t, entries[0], "view_property_104")
}

func TestSession_TrackActivityMissingSession(t *testing.T) {
	svc, _ := newService(t)

	err := svc.TrackActivity(context.Background(), "nope", "login")
	assert.Error(t, err)
}
