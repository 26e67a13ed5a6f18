package coordination

import (
	"context"
	"time"
)

// RateLimitResult is the outcome of a window check. A denied request is a
// normal result, not an error; transport failures are the only errors.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// RateLimitStats aggregates the state of all rate-limit windows.
type RateLimitStats struct {
	TotalKeys   int
	ActiveKeys  int
	BlockedKeys int
}

// RateLimitService is a sliding-window rate limiter keyed by logical
// identifiers (login:<email>, ip:<addr>:<endpoint>, ...), with a separate
// manual block flag for moderation.
type RateLimitService interface {
	Check(ctx context.Context, key string, window time.Duration, max int) (RateLimitResult, error)
	Reset(ctx context.Context, key string) error

	Block(ctx context.Context, key string, duration time.Duration) error
	Unblock(ctx context.Context, key string) error
	IsBlocked(ctx context.Context, key string) (bool, error)

	Stats(ctx context.Context) (RateLimitStats, error)

	// Category wrappers
	CheckLogin(ctx context.Context, email string) (RateLimitResult, error)
	CheckRegistration(ctx context.Context, ip string) (RateLimitResult, error)
	CheckPasswordReset(ctx context.Context, email string) (RateLimitResult, error)
	CheckEmailSend(ctx context.Context, email string) (RateLimitResult, error)
	CheckPropertyView(ctx context.Context, userID string) (RateLimitResult, error)
	CheckSearch(ctx context.Context, userID string) (RateLimitResult, error)
	CheckUpload(ctx context.Context, userID string) (RateLimitResult, error)
	CheckAdminAction(ctx context.Context, adminID string) (RateLimitResult, error)
	CheckIP(ctx context.Context, ip, endpoint string) (RateLimitResult, error)
	CheckAPI(ctx context.Context, apiKey string) (RateLimitResult, error)
}
