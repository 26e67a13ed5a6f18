package coordination

import "time"

// Cache key patterns for the application. These must stay stable: any
// deployment sharing the Redis instance relies on the exact prefixes.
const (
	// Property cache keys
	PropertyCacheKeyPattern = "property:%s"
	PropertyListKeyPattern  = "property_list:%s" // filters JSON

	// User cache keys
	UserCacheKeyPattern = "user:%s"

	// Per-user list caches
	FavoritesCacheKeyPattern = "favorites:%s:%s" // user:options JSON
	WishlistCacheKeyPattern  = "wishlist:%s:%s"  // user:options JSON

	// Search cache
	SearchSuggestionsKeyPattern = "search_suggestions:%s"
	LocationCacheKeyPattern     = "location:%s"

	// Rate limiting keys
	RateLimitKeyPattern      = "rate_limit:%s"
	RateLimitBlockKeyPattern = "rate_limit_block:%s"

	// Session keys
	SessionKeyPattern         = "session:%s"
	UserSessionsKeyPattern    = "user_sessions:%s"
	SessionActivityKeyPattern = "session:%s:activity"

	// Token keys
	TokenKeyPattern      = "token:%s"
	UserTokensKeyPattern = "user_tokens:%s"
)

// Pub/Sub channel patterns
const (
	PropertyChannelPattern         = "property:%s"
	UserNotificationChannelPattern = "user:%s:notifications"
	SystemNotificationChannel      = "system:notifications"
	ChatChannelPattern             = "chat:%s"
	SearchChannelPattern           = "search:%s"
	EmailChannelPattern            = "email:%s"
	AdminChannelPattern            = "admin:%s"
)

// Common cache durations
const (
	CacheShortTerm  = 5 * time.Minute
	CacheMediumTerm = 30 * time.Minute
	CacheLongTerm   = 2 * time.Hour
	CacheDay        = 24 * time.Hour

	// Session duration
	SessionDuration = 24 * time.Hour
)
