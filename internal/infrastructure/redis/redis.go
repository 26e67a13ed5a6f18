package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/rentiva/rentiva/internal/app/config"
	"github.com/rentiva/rentiva/pkg/logger"
)

// Manager owns the three long-lived connections to the backing store: one
// for ordinary commands, one dedicated to subscriptions (a subscribed
// connection cannot issue other commands on the same wire) and one for
// publishing. Services receive the manager and pick the client they need.
type Manager struct {
	command    *goredis.Client
	subscriber *goredis.Client
	publisher  *goredis.Client
	logger     *logger.Logger
}

// New connects the three clients and verifies the command connection.
func New(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (*Manager, error) {
	opts := func() *goredis.Options {
		return &goredis.Options{
			Addr:     cfg.Addr(),
			Username: cfg.Username,
			Password: cfg.Password,
			DB:       cfg.DB,
			PoolSize: cfg.PoolSize,
		}
	}

	m := &Manager{
		command:    goredis.NewClient(opts()),
		subscriber: goredis.NewClient(opts()),
		publisher:  goredis.NewClient(opts()),
		logger:     log,
	}

	if err := m.command.Ping(ctx).Err(); err != nil {
		m.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr(), err)
	}

	log.Info("Redis connections established", "addr", cfg.Addr(), "db", cfg.DB)
	return m, nil
}

// NewFromClients wires a manager around existing clients. Used by tests to
// point all three connections at an in-process server.
func NewFromClients(command, subscriber, publisher *goredis.Client, log *logger.Logger) *Manager {
	return &Manager{
		command:    command,
		subscriber: subscriber,
		publisher:  publisher,
		logger:     log,
	}
}

// Command returns the connection for ordinary commands.
func (m *Manager) Command() *goredis.Client {
	return m.command
}

// Subscriber returns the connection reserved for SUBSCRIBE/PSUBSCRIBE.
func (m *Manager) Subscriber() *goredis.Client {
	return m.subscriber
}

// Publisher returns the connection reserved for PUBLISH.
func (m *Manager) Publisher() *goredis.Client {
	return m.publisher
}

// ScanKeys collects every key matching pattern using cursor SCAN, never KEYS.
func (m *Manager) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := m.command.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys for pattern %q: %w", pattern, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

// Ping checks the command connection.
func (m *Manager) Ping(ctx context.Context) error {
	return m.command.Ping(ctx).Err()
}

// Close shuts down all three connections.
func (m *Manager) Close() error {
	var firstErr error
	for _, c := range []*goredis.Client{m.command, m.subscriber, m.publisher} {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
