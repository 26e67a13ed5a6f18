package coordination

import (
	"context"
	"time"
)

// SessionData is the ephemeral per-login record stored under session:<id>.
type SessionData struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	LastActivity time.Time `json:"last_activity"`
	IPAddress    string    `json:"ip_address,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
}

// SessionService manages login sessions and their per-user index. Unlike the
// cache, session writes are security critical: transport errors propagate.
type SessionService interface {
	Create(ctx context.Context, sessionID string, data SessionData, ttl time.Duration) error
	Get(ctx context.Context, sessionID string) (*SessionData, error)
	Update(ctx context.Context, sessionID string, mutate func(*SessionData)) error
	Delete(ctx context.Context, sessionID string) error
	DeleteAllForUser(ctx context.Context, userID string) error
	Extend(ctx context.Context, sessionID string, ttl time.Duration) error
	TrackActivity(ctx context.Context, sessionID, activity string) error
	GetActivity(ctx context.Context, sessionID string, limit int64) ([]string, error)
	SessionsForUser(ctx context.Context, userID string) ([]string, error)
}
