package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Redis       RedisConfig
	Cache       CacheConfig
	Session     SessionConfig
	RateLimit   RateLimitConfig
	Queue       QueueConfig
	Worker      WorkerConfig
}

type RedisConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	DB       int
	PoolSize int
}

type CacheConfig struct {
	DefaultTTL time.Duration
}

type SessionConfig struct {
	DefaultTTL  time.Duration
	ActivityMax int64
}

// RateLimitRule is the window/limit pair applied to one logical category.
type RateLimitRule struct {
	Window time.Duration
	Max    int
}

type RateLimitConfig struct {
	Login         RateLimitRule
	Registration  RateLimitRule
	PasswordReset RateLimitRule
	EmailSend     RateLimitRule
	PropertyView  RateLimitRule
	Search        RateLimitRule
	Upload        RateLimitRule
	AdminAction   RateLimitRule
	PerIP         RateLimitRule
	API           RateLimitRule
}

type QueueConfig struct {
	DefaultAttempts int
	DefaultBackoff  time.Duration
	KeepCompleted   int64
	KeepFailed      int64
}

type WorkerConfig struct {
	Concurrency  int
	PollInterval time.Duration
	JobTimeout   time.Duration
}

// Load configuration from environment variables
func Load() (*Config, error) {
	// Load .env file in non-production environments
	env := os.Getenv("ENVIRONMENT")
	if env != "production" {
		if err := godotenv.Load(); err != nil {
			// .env file is optional
		}
	}

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     parseInt(getEnv("REDIS_PORT", "6379")),
			Username: getEnv("REDIS_USERNAME", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       parseInt(getEnv("REDIS_DB", "0")),
			PoolSize: parseInt(getEnv("REDIS_POOL_SIZE", "10")),
		},
		Cache: CacheConfig{
			DefaultTTL: parseDuration(getEnv("CACHE_DEFAULT_TTL", "1h")),
		},
		Session: SessionConfig{
			DefaultTTL:  parseDuration(getEnv("SESSION_TTL", "24h")),
			ActivityMax: parseInt64(getEnv("SESSION_ACTIVITY_MAX", "100")),
		},
		RateLimit: RateLimitConfig{
			Login:         parseRule(getEnv("RATE_LIMIT_LOGIN", "5/15m")),
			Registration:  parseRule(getEnv("RATE_LIMIT_REGISTRATION", "3/1h")),
			PasswordReset: parseRule(getEnv("RATE_LIMIT_PASSWORD_RESET", "3/1h")),
			EmailSend:     parseRule(getEnv("RATE_LIMIT_EMAIL", "10/1h")),
			PropertyView:  parseRule(getEnv("RATE_LIMIT_PROPERTY_VIEW", "100/1m")),
			Search:        parseRule(getEnv("RATE_LIMIT_SEARCH", "30/1m")),
			Upload:        parseRule(getEnv("RATE_LIMIT_UPLOAD", "20/1h")),
			AdminAction:   parseRule(getEnv("RATE_LIMIT_ADMIN", "50/1m")),
			PerIP:         parseRule(getEnv("RATE_LIMIT_IP", "100/1m")),
			API:           parseRule(getEnv("RATE_LIMIT_API", "60/1m")),
		},
		Queue: QueueConfig{
			DefaultAttempts: parseInt(getEnv("QUEUE_DEFAULT_ATTEMPTS", "3")),
			DefaultBackoff:  parseDuration(getEnv("QUEUE_DEFAULT_BACKOFF", "5s")),
			KeepCompleted:   parseInt64(getEnv("QUEUE_KEEP_COMPLETED", "100")),
			KeepFailed:      parseInt64(getEnv("QUEUE_KEEP_FAILED", "50")),
		},
		Worker: WorkerConfig{
			Concurrency:  parseInt(getEnv("WORKER_CONCURRENCY", "5")),
			PollInterval: parseDuration(getEnv("WORKER_POLL_INTERVAL", "1s")),
			JobTimeout:   parseDuration(getEnv("WORKER_JOB_TIMEOUT", "2m")),
		},
	}

	// Validate required configuration
	if err := validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

// Addr returns the host:port address of the backing store
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func validate(config *Config) error {
	if config.Redis.Host == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}
	if config.Redis.Port <= 0 {
		return fmt.Errorf("REDIS_PORT must be a positive integer")
	}
	if config.Session.DefaultTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be a positive duration")
	}
	if config.Queue.DefaultAttempts <= 0 {
		return fmt.Errorf("QUEUE_DEFAULT_ATTEMPTS must be a positive integer")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(value string) int {
	if i, err := strconv.Atoi(value); err == nil {
		return i
	}
	return 0
}

func parseInt64(value string) int64 {
	if i, err := strconv.ParseInt(value, 10, 64); err == nil {
		return i
	}
	return 0
}

func parseDuration(value string) time.Duration {
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	return 0
}

// parseRule parses "max/window" rate-limit shorthand, e.g. "5/15m".
func parseRule(value string) RateLimitRule {
	parts := strings.SplitN(value, "/", 2)
	if len(parts) != 2 {
		return RateLimitRule{}
	}
	return RateLimitRule{
		Max:    parseInt(parts[0]),
		Window: parseDuration(parts[1]),
	}
}
