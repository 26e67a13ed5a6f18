package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/rentiva/rentiva/internal/app/config"
	"github.com/rentiva/rentiva/internal/domain/coordination"
	redisinfra "github.com/rentiva/rentiva/internal/infrastructure/redis"
	"github.com/rentiva/rentiva/pkg/logger"
)

var _ coordination.RateLimitService = (*Service)(nil)

// Service implements a sliding-window rate limiter on sorted sets. The
// window check is a read followed by a write, not a single atomic step:
// two concurrent callers racing on the same key at the limit boundary can
// both be admitted. That imprecision is accepted; this is an abuse control,
// not a billing counter.
type Service struct {
	redis  *redisinfra.Manager
	logger *logger.Logger
	rules  config.RateLimitConfig
}

// NewService creates the rate limiter with per-category defaults from config.
func NewService(mgr *redisinfra.Manager, rules config.RateLimitConfig, log *logger.Logger) *Service {
	return &Service{
		redis:  mgr,
		logger: log,
		rules:  rules,
	}
}

// Check admits or rejects one request against the window identified by key.
// Keys are logical identifiers such as "login:<email>"; the rate_limit:
// prefix is applied here.
func (s *Service) Check(ctx context.Context, key string, window time.Duration, max int) (coordination.RateLimitResult, error) {
	blocked, err := s.IsBlocked(ctx, key)
	if err != nil {
		return coordination.RateLimitResult{}, err
	}
	if blocked {
		ttl, err := s.redis.Command().TTL(ctx, fmt.Sprintf(coordination.RateLimitBlockKeyPattern, key)).Result()
		if err != nil {
			return coordination.RateLimitResult{}, fmt.Errorf("failed to read block ttl for %s: %w", key, err)
		}
		return coordination.RateLimitResult{
			Allowed:    false,
			Remaining:  0,
			ResetAt:    time.Now().Add(ttl),
			RetryAfter: ttl,
		}, nil
	}

	redisKey := fmt.Sprintf(coordination.RateLimitKeyPattern, key)
	now := time.Now()
	windowStart := now.Add(-window)
	client := s.redis.Command()

	count, err := client.ZCount(ctx, redisKey,
		strconv.FormatInt(windowStart.UnixMilli(), 10), "+inf").Result()
	if err != nil {
		return coordination.RateLimitResult{}, fmt.Errorf("failed to count window members for %s: %w", key, err)
	}

	if count >= int64(max) {
		// Pruning happens on admission, so members older than the window may
		// still be present; read the oldest in-window member only.
		oldest, err := client.ZRangeByScoreWithScores(ctx, redisKey, &goredis.ZRangeBy{
			Min:   strconv.FormatInt(windowStart.UnixMilli(), 10),
			Max:   "+inf",
			Count: 1,
		}).Result()
		if err != nil {
			return coordination.RateLimitResult{}, fmt.Errorf("failed to read oldest window member for %s: %w", key, err)
		}
		resetAt := now.Add(window)
		if len(oldest) > 0 {
			resetAt = time.UnixMilli(int64(oldest[0].Score)).Add(window)
		}
		retryAfter := time.Until(resetAt)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return coordination.RateLimitResult{
			Allowed:    false,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: retryAfter,
		}, nil
	}

	// Admit: record this request, refresh the key TTL and prune anything
	// that fell out of the window.
	pipe := client.Pipeline()
	pipe.ZAdd(ctx, redisKey, goredis.Z{
		Score:  float64(now.UnixMilli()),
		Member: strconv.FormatInt(now.UnixNano(), 10),
	})
	pipe.Expire(ctx, redisKey, window)
	pipe.ZRemRangeByScore(ctx, redisKey, "0",
		strconv.FormatInt(windowStart.UnixMilli(), 10))
	if _, err := pipe.Exec(ctx); err != nil {
		return coordination.RateLimitResult{}, fmt.Errorf("failed to record request for %s: %w", key, err)
	}

	return coordination.RateLimitResult{
		Allowed:   true,
		Remaining: max - int(count) - 1,
		ResetAt:   now.Add(window),
	}, nil
}

// Reset hard-clears a window.
func (s *Service) Reset(ctx context.Context, key string) error {
	if err := s.redis.Command().Del(ctx, fmt.Sprintf(coordination.RateLimitKeyPattern, key)).Err(); err != nil {
		return fmt.Errorf("failed to reset rate limit for %s: %w", key, err)
	}
	return nil
}

// Block denies every request for key until duration elapses, independent of
// the sliding window. Used for manual moderation.
func (s *Service) Block(ctx context.Context, key string, duration time.Duration) error {
	blockKey := fmt.Sprintf(coordination.RateLimitBlockKeyPattern, key)
	if err := s.redis.Command().Set(ctx, blockKey, "1", duration).Err(); err != nil {
		return fmt.Errorf("failed to block %s: %w", key, err)
	}
	s.logger.Info("Rate limit key blocked", "key", key, "duration", duration)
	return nil
}

// Unblock lifts a manual block.
func (s *Service) Unblock(ctx context.Context, key string) error {
	blockKey := fmt.Sprintf(coordination.RateLimitBlockKeyPattern, key)
	if err := s.redis.Command().Del(ctx, blockKey).Err(); err != nil {
		return fmt.Errorf("failed to unblock %s: %w", key, err)
	}
	return nil
}

// IsBlocked reports whether a manual block is in force for key.
func (s *Service) IsBlocked(ctx context.Context, key string) (bool, error) {
	n, err := s.redis.Command().Exists(ctx, fmt.Sprintf(coordination.RateLimitBlockKeyPattern, key)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check block for %s: %w", key, err)
	}
	return n > 0, nil
}

// Stats aggregates all rate-limit keys: total windows, windows with live
// members, and manual blocks.
func (s *Service) Stats(ctx context.Context) (coordination.RateLimitStats, error) {
	windowKeys, err := s.redis.ScanKeys(ctx, "rate_limit:*")
	if err != nil {
		return coordination.RateLimitStats{}, err
	}
	blockKeys, err := s.redis.ScanKeys(ctx, "rate_limit_block:*")
	if err != nil {
		return coordination.RateLimitStats{}, err
	}

	stats := coordination.RateLimitStats{
		TotalKeys:   len(windowKeys),
		BlockedKeys: len(blockKeys),
	}
	if len(windowKeys) == 0 {
		return stats, nil
	}

	pipe := s.redis.Command().Pipeline()
	cards := make([]*goredis.IntCmd, len(windowKeys))
	for i, key := range windowKeys {
		cards[i] = pipe.ZCard(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return coordination.RateLimitStats{}, fmt.Errorf("failed to collect rate limit stats: %w", err)
	}
	for _, card := range cards {
		if card.Val() > 0 {
			stats.ActiveKeys++
		}
	}
	return stats, nil
}

// Category wrappers. Each pins a key prefix and the configured window/limit.

func (s *Service) CheckLogin(ctx context.Context, email string) (coordination.RateLimitResult, error) {
	return s.Check(ctx, "login:"+email, s.rules.Login.Window, s.rules.Login.Max)
}

func (s *Service) CheckRegistration(ctx context.Context, ip string) (coordination.RateLimitResult, error) {
	return s.Check(ctx, "registration:"+ip, s.rules.Registration.Window, s.rules.Registration.Max)
}

func (s *Service) CheckPasswordReset(ctx context.Context, email string) (coordination.RateLimitResult, error) {
	return s.Check(ctx, "password_reset:"+email, s.rules.PasswordReset.Window, s.rules.PasswordReset.Max)
}

func (s *Service) CheckEmailSend(ctx context.Context, email string) (coordination.RateLimitResult, error) {
	return s.Check(ctx, "email:"+email, s.rules.EmailSend.Window, s.rules.EmailSend.Max)
}

func (s *Service) CheckPropertyView(ctx context.Context, userID string) (coordination.RateLimitResult, error) {
	return s.Check(ctx, "property_view:"+userID, s.rules.PropertyView.Window, s.rules.PropertyView.Max)
}

func (s *Service) CheckSearch(ctx context.Context, userID string) (coordination.RateLimitResult, error) {
	return s.Check(ctx, "search:"+userID, s.rules.Search.Window, s.rules.Search.Max)
}

func (s *Service) CheckUpload(ctx context.Context, userID string) (coordination.RateLimitResult, error) {
	return s.Check(ctx, "upload:"+userID, s.rules.Upload.Window, s.rules.Upload.Max)
}

func (s *Service) CheckAdminAction(ctx context.Context, adminID string) (coordination.RateLimitResult, error) {
	return s.Check(ctx, "admin:"+adminID, s.rules.AdminAction.Window, s.rules.AdminAction.Max)
}

func (s *Service) CheckIP(ctx context.Context, ip, endpoint string) (coordination.RateLimitResult, error) {
	return s.Check(ctx, fmt.Sprintf("ip:%s:%s", ip, endpoint), s.rules.PerIP.Window, s.rules.PerIP.Max)
}

func (s *Service) CheckAPI(ctx context.Context, apiKey string) (coordination.RateLimitResult, error) {
	return s.Check(ctx, "api:"+apiKey, s.rules.API.Window, s.rules.API.Max)
}
