package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/rentiva/rentiva/internal/app/config"
	"github.com/rentiva/rentiva/internal/domain/coordination"
	redisinfra "github.com/rentiva/rentiva/internal/infrastructure/redis"
	"github.com/rentiva/rentiva/pkg/logger"
)

var _ coordination.CacheService = (*Service)(nil)

// Service is the typed TTL cache. A broken cache must never break the
// business operation using it: transport failures on reads look like
// misses, transport failures on writes are logged and dropped.
type Service struct {
	redis      *redisinfra.Manager
	logger     *logger.Logger
	defaultTTL time.Duration
}

// NewService creates the cache service backed by the shared connection manager.
func NewService(mgr *redisinfra.Manager, cfg config.CacheConfig, log *logger.Logger) *Service {
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = coordination.CacheLongTerm
	}
	return &Service{
		redis:      mgr,
		logger:     log,
		defaultTTL: ttl,
	}
}

// Set stores a JSON-serialized value under key with the given TTL
// (ttl <= 0 uses the configured default). Transport errors are swallowed.
func (s *Service) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to serialize cache value for %s: %w", key, err)
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	if err := s.redis.Command().Set(ctx, key, data, ttl).Err(); err != nil {
		s.logger.Warn("Cache write failed", "key", key, "error", err)
	}
	return nil
}

// Get loads key into dest. It returns false on miss, on a malformed stored
// payload, and on transport failure; callers fall through to the source of
// truth in all three cases.
func (s *Service) Get(ctx context.Context, key string, dest interface{}) bool {
	data, err := s.redis.Command().Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return false
	}
	if err != nil {
		s.logger.Warn("Cache read failed", "key", key, "error", err)
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		// Treat a stale or mistyped payload as a miss.
		s.logger.Warn("Cache payload mismatch", "key", key, "error", err)
		return false
	}
	return true
}

// Delete drops a single key. Best effort.
func (s *Service) Delete(ctx context.Context, key string) error {
	if err := s.redis.Command().Del(ctx, key).Err(); err != nil {
		s.logger.Warn("Cache delete failed", "key", key, "error", err)
	}
	return nil
}

// InvalidatePattern scans keys with the given prefix and deletes them in one
// pipeline. Returns the number of keys removed.
func (s *Service) InvalidatePattern(ctx context.Context, prefix string) (int, error) {
	keys, err := s.redis.ScanKeys(ctx, prefix+"*")
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate pattern %q: %w", prefix, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	pipe := s.redis.Command().Pipeline()
	for _, key := range keys {
		pipe.Del(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to delete %d keys for pattern %q: %w", len(keys), prefix, err)
	}

	s.logger.Debug("Cache pattern invalidated", "prefix", prefix, "keys", len(keys))
	return len(keys), nil
}

// Domain helpers. These pin the key namespacing used across deployments.

func (s *Service) CacheProperty(ctx context.Context, propertyID string, property interface{}) error {
	return s.Set(ctx, fmt.Sprintf(coordination.PropertyCacheKeyPattern, propertyID), property, coordination.CacheMediumTerm)
}

func (s *Service) GetCachedProperty(ctx context.Context, propertyID string, dest interface{}) bool {
	return s.Get(ctx, fmt.Sprintf(coordination.PropertyCacheKeyPattern, propertyID), dest)
}

// InvalidateProperty drops the property record and every cached listing page,
// since any of them may embed the stale property.
func (s *Service) InvalidateProperty(ctx context.Context, propertyID string) error {
	if err := s.Delete(ctx, fmt.Sprintf(coordination.PropertyCacheKeyPattern, propertyID)); err != nil {
		return err
	}
	_, err := s.InvalidatePattern(ctx, "property_list:")
	return err
}

func (s *Service) CachePropertyList(ctx context.Context, filtersJSON string, list interface{}) error {
	return s.Set(ctx, fmt.Sprintf(coordination.PropertyListKeyPattern, filtersJSON), list, coordination.CacheShortTerm)
}

func (s *Service) GetCachedPropertyList(ctx context.Context, filtersJSON string, dest interface{}) bool {
	return s.Get(ctx, fmt.Sprintf(coordination.PropertyListKeyPattern, filtersJSON), dest)
}

func (s *Service) CacheUser(ctx context.Context, userID string, user interface{}) error {
	return s.Set(ctx, fmt.Sprintf(coordination.UserCacheKeyPattern, userID), user, coordination.CacheMediumTerm)
}

func (s *Service) GetCachedUser(ctx context.Context, userID string, dest interface{}) bool {
	return s.Get(ctx, fmt.Sprintf(coordination.UserCacheKeyPattern, userID), dest)
}

// InvalidateUserData drops the user record plus the favorites and wishlist
// pages derived from it. Called after any mutation touching the user.
func (s *Service) InvalidateUserData(ctx context.Context, userID string) error {
	if err := s.Delete(ctx, fmt.Sprintf(coordination.UserCacheKeyPattern, userID)); err != nil {
		return err
	}
	if _, err := s.InvalidatePattern(ctx, fmt.Sprintf("favorites:%s:", userID)); err != nil {
		return err
	}
	_, err := s.InvalidatePattern(ctx, fmt.Sprintf("wishlist:%s:", userID))
	return err
}

func (s *Service) CacheFavorites(ctx context.Context, userID, optionsJSON string, favorites interface{}) error {
	return s.Set(ctx, fmt.Sprintf(coordination.FavoritesCacheKeyPattern, userID, optionsJSON), favorites, coordination.CacheShortTerm)
}

func (s *Service) GetCachedFavorites(ctx context.Context, userID, optionsJSON string, dest interface{}) bool {
	return s.Get(ctx, fmt.Sprintf(coordination.FavoritesCacheKeyPattern, userID, optionsJSON), dest)
}

func (s *Service) CacheWishlist(ctx context.Context, userID, optionsJSON string, wishlist interface{}) error {
	return s.Set(ctx, fmt.Sprintf(coordination.WishlistCacheKeyPattern, userID, optionsJSON), wishlist, coordination.CacheShortTerm)
}

func (s *Service) GetCachedWishlist(ctx context.Context, userID, optionsJSON string, dest interface{}) bool {
	return s.Get(ctx, fmt.Sprintf(coordination.WishlistCacheKeyPattern, userID, optionsJSON), dest)
}

func (s *Service) CacheSearchSuggestions(ctx context.Context, query string, suggestions interface{}) error {
	return s.Set(ctx, fmt.Sprintf(coordination.SearchSuggestionsKeyPattern, query), suggestions, coordination.CacheMediumTerm)
}

func (s *Service) GetCachedSearchSuggestions(ctx context.Context, query string, dest interface{}) bool {
	return s.Get(ctx, fmt.Sprintf(coordination.SearchSuggestionsKeyPattern, query), dest)
}

func (s *Service) CacheLocation(ctx context.Context, name string, location interface{}) error {
	return s.Set(ctx, fmt.Sprintf(coordination.LocationCacheKeyPattern, name), location, coordination.CacheDay)
}

func (s *Service) GetCachedLocation(ctx context.Context, name string, dest interface{}) bool {
	return s.Get(ctx, fmt.Sprintf(coordination.LocationCacheKeyPattern, name), dest)
}
