package services

import (
	"context"
	"fmt"

	"github.com/rentiva/rentiva/internal/app/config"
	"github.com/rentiva/rentiva/internal/domain/coordination"
	"github.com/rentiva/rentiva/internal/infrastructure/cache"
	"github.com/rentiva/rentiva/internal/infrastructure/pubsub"
	"github.com/rentiva/rentiva/internal/infrastructure/queue"
	"github.com/rentiva/rentiva/internal/infrastructure/ratelimit"
	redisinfra "github.com/rentiva/rentiva/internal/infrastructure/redis"
	"github.com/rentiva/rentiva/internal/infrastructure/session"
	"github.com/rentiva/rentiva/internal/infrastructure/token"
	"github.com/rentiva/rentiva/pkg/logger"
)

// Infrastructure holds the one connection manager and the six coordination
// services built on it. Everything is constructed explicitly here and
// passed by reference; there is no ambient container.
type Infrastructure struct {
	Config *config.Config

	Redis     *redisinfra.Manager
	Cache     coordination.CacheService
	RateLimit coordination.RateLimitService
	Sessions  coordination.SessionService
	Tokens    coordination.TokenService
	PubSub    coordination.PubSubService
	Queues    coordination.QueueService
}

// New connects to the backing store and wires up all services.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Infrastructure, error) {
	mgr, err := redisinfra.New(ctx, cfg.Redis, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}
	return NewWithManager(cfg, mgr, log), nil
}

// NewWithManager wires the services around an existing connection manager.
// Tests use this to run against an in-process server.
func NewWithManager(cfg *config.Config, mgr *redisinfra.Manager, log *logger.Logger) *Infrastructure {
	return &Infrastructure{
		Config:    cfg,
		Redis:     mgr,
		Cache:     cache.NewService(mgr, cfg.Cache, log),
		RateLimit: ratelimit.NewService(mgr, cfg.RateLimit, log),
		Sessions:  session.NewService(mgr, cfg.Session, log),
		Tokens:    token.NewService(mgr, log),
		PubSub:    pubsub.NewService(mgr, log),
		Queues:    queue.NewService(mgr, cfg.Queue, log),
	}
}

// HealthCheck verifies the backing store is reachable.
func (inf *Infrastructure) HealthCheck(ctx context.Context) error {
	if err := inf.Redis.Ping(ctx); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Close tears everything down: the pub/sub registry drains first, then the
// connections go.
func (inf *Infrastructure) Close() error {
	if err := inf.PubSub.Close(); err != nil {
		return fmt.Errorf("failed to close pubsub service: %w", err)
	}
	if err := inf.Redis.Close(); err != nil {
		return fmt.Errorf("failed to close redis connections: %w", err)
	}
	return nil
}
