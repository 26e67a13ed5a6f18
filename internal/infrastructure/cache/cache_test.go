package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentiva/rentiva/internal/app/config"
	"github.com/rentiva/rentiva/internal/infrastructure/redis/redistest"
	"github.com/rentiva/rentiva/pkg/logger"
)

type property struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Price int    `json:"price"`
}

func newService(t *testing.T) (*Service, *miniredis.Miniredis) {
	mgr, mr := redistest.NewManager(t)
	svc := NewService(mgr, config.CacheConfig{DefaultTTL: time.Minute}, logger.NewForTesting())
	return svc, mr
}

func TestCache_SetGetRoundtrip(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	original := property{ID: "p1", Title: "Sea view flat", Price: 120}
	require.NoError(t, svc.Set(ctx, "property:p1", original, time.Minute))

	var got property
	require.True(t, svc.Get(ctx, "property:p1", &got))
	assert.Equal(t, original, got)
}

func TestCache_GetMiss(t *testing.T) {
	svc, _ := newService(t)

	var got property
	assert.False(t, svc.Get(context.Background(), "property:unknown", &got))
}

func TestCache_TTLExpiry(t *testing.T) {
	svc, mr := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, "property:p1", property{ID: "p1"}, time.Second))

	var got property
	require.True(t, svc.Get(ctx, "property:p1", &got))

	mr.FastForward(2 * time.Second)
	assert.False(t, svc.Get(ctx, "property:p1", &got))
}

func TestCache_TypeMismatchIsMiss(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, "property:p1", "just a string", time.Minute))

	// A caller expecting a struct treats the mismatched payload as a miss.
	var got property
	assert.False(t, svc.Get(ctx, "property:p1", &got))
}

func TestCache_InvalidatePattern(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, "property_list:{}", []string{"p1"}, time.Minute))
	require.NoError(t, svc.Set(ctx, "property_list:{\"city\":\"lisbon\"}", []string{"p2"}, time.Minute))
	require.NoError(t, svc.Set(ctx, "property:p1", property{ID: "p1"}, time.Minute))

	count, err := svc.InvalidatePattern(ctx, "property_list:")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	var list []string
	assert.False(t, svc.Get(ctx, "property_list:{}", &list))
	assert.False(t, svc.Get(ctx, "property_list:{\"city\":\"lisbon\"}", &list))

	// Keys outside the prefix are untouched.
	var got property
	assert.True(t, svc.Get(ctx, "property:p1", &got))
}

func TestCache_InvalidateUserData(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.CacheUser(ctx, "u1", map[string]string{"id": "u1"}))
	require.NoError(t, svc.CacheFavorites(ctx, "u1", "{}", []string{"p1"}))
	require.NoError(t, svc.CacheWishlist(ctx, "u1", "{}", []string{"p2"}))
	require.NoError(t, svc.CacheFavorites(ctx, "u2", "{}", []string{"p3"}))

	require.NoError(t, svc.InvalidateUserData(ctx, "u1"))

	var m map[string]string
	assert.False(t, svc.GetCachedUser(ctx, "u1", &m))
	var list []string
	assert.False(t, svc.GetCachedFavorites(ctx, "u1", "{}", &list))
	assert.False(t, svc.GetCachedWishlist(ctx, "u1", "{}", &list))

	// Another user's favorites survive.
	assert.True(t, svc.GetCachedFavorites(ctx, "u2", "{}", &list))
}

func TestCache_InvalidateProperty(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.CacheProperty(ctx, "p1", property{ID: "p1"}))
	require.NoError(t, svc.CachePropertyList(ctx, "{}", []string{"p1"}))

	require.NoError(t, svc.InvalidateProperty(ctx, "p1"))

	var got property
	assert.False(t, svc.GetCachedProperty(ctx, "p1", &got))
	var list []string
	assert.False(t, svc.GetCachedPropertyList(ctx, "{}", &list))
}

func TestCache_DomainHelpersKeyNamespacing(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.CacheSearchSuggestions(ctx, "lisbon", []string{"lisbon center"}))
	require.NoError(t, svc.CacheLocation(ctx, "lisbon", map[string]float64{"lat": 38.72}))

	var suggestions []string
	assert.True(t, svc.Get(ctx, "search_suggestions:lisbon", &suggestions))
	var location map[string]float64
	assert.True(t, svc.Get(ctx, "location:lisbon", &location))
}
