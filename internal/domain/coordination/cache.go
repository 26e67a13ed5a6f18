package coordination

import (
	"context"
	"time"
)

// CacheService is the typed TTL cache with pattern invalidation. Reads and
// writes are best-effort: a transport failure behaves like an empty cache,
// so callers always fall through to their source of truth.
type CacheService interface {
	// Basic operations
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) bool
	Delete(ctx context.Context, key string) error
	InvalidatePattern(ctx context.Context, prefix string) (int, error)

	// Domain helpers
	CacheProperty(ctx context.Context, propertyID string, property interface{}) error
	GetCachedProperty(ctx context.Context, propertyID string, dest interface{}) bool
	InvalidateProperty(ctx context.Context, propertyID string) error
	CachePropertyList(ctx context.Context, filtersJSON string, list interface{}) error
	GetCachedPropertyList(ctx context.Context, filtersJSON string, dest interface{}) bool
	CacheUser(ctx context.Context, userID string, user interface{}) error
	GetCachedUser(ctx context.Context, userID string, dest interface{}) bool
	InvalidateUserData(ctx context.Context, userID string) error
	CacheFavorites(ctx context.Context, userID, optionsJSON string, favorites interface{}) error
	GetCachedFavorites(ctx context.Context, userID, optionsJSON string, dest interface{}) bool
	CacheWishlist(ctx context.Context, userID, optionsJSON string, wishlist interface{}) error
	GetCachedWishlist(ctx context.Context, userID, optionsJSON string, dest interface{}) bool
	CacheSearchSuggestions(ctx context.Context, query string, suggestions interface{}) error
	GetCachedSearchSuggestions(ctx context.Context, query string, dest interface{}) bool
	CacheLocation(ctx context.Context, name string, location interface{}) error
	GetCachedLocation(ctx context.Context, name string, dest interface{}) bool
}
