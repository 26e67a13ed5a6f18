package session

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

var _ coordination.SessionService = (*Service)(nil)

// Service stores login sessions under session:<id> with a per-user index set
// so every session of a user can be revoked in one pass. Session writes are
// security critical and always propagate transport errors; a silently failed
// create must never look like a logged-in user.
type Service struct {
	redis       *redisinfra.Manager
	logger      *logger.Logger
	defaultTTL  time.Duration
	activityMax int64
}

// NewService creates the session service.
func NewService(mgr *redisinfra.Manager, cfg config.SessionConfig, log *logger.Logger) *Service {
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = coordination.SessionDuration
	}
	max := cfg.ActivityMax
	if max <= 0 {
		max = 100
	}
	return &Service{
		redis:       mgr,
		logger:      log,
		defaultTTL:  ttl,
		activityMax: max,
	}
}

// Create stores a new session and registers it in the user's index. The
// index must live at least as long as its longest-lived member, otherwise a
// still-live session could escape DeleteAllForUser.
func (s *Service) Create(ctx context.Context, sessionID string, data coordination.SessionData, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	if data.LastActivity.IsZero() {
		data.LastActivity = time.Now()
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to serialize session %s: %w", sessionID, err)
	}

	indexKey := fmt.Sprintf(coordination.UserSessionsKeyPattern, data.UserID)
	pipe := s.redis.Command().TxPipeline()
	pipe.Set(ctx, fmt.Sprintf(coordination.SessionKeyPattern, sessionID), payload, ttl)
	pipe.SAdd(ctx, indexKey, sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to create session %s: %w", sessionID, err)
	}
	if err := s.bumpIndexTTL(ctx, indexKey, ttl); err != nil {
		return err
	}

	s.logger.Debug("Session created", "session_id", sessionID, "user_id", data.UserID)
	return nil
}

// Get returns the session, refreshing LastActivity in place while keeping
// the remaining TTL. A missing session is nil, nil.
func (s *Service) Get(ctx context.Context, sessionID string) (*coordination.SessionData, error) {
	key := fmt.Sprintf(coordination.SessionKeyPattern, sessionID)
	raw, err := s.redis.Command().Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session %s: %w", sessionID, err)
	}

	var data coordination.SessionData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", sessionID, err)
	}

	data.LastActivity = time.Now()
	if refreshed, err := json.Marshal(data); err == nil {
		if err := s.redis.Command().Set(ctx, key, refreshed, goredis.KeepTTL).Err(); err != nil {
			s.logger.Warn("Failed to refresh session activity", "session_id", sessionID, "error", err)
		}
	}

	return &data, nil
}

// Update applies a partial mutation to the stored session record.
func (s *Service) Update(ctx context.Context, sessionID string, mutate func(*coordination.SessionData)) error {
	key := fmt.Sprintf(coordination.SessionKeyPattern, sessionID)
	raw, err := s.redis.Command().Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return fmt.Errorf("session %s not found", sessionID)
	}
	if err != nil {
		return fmt.Errorf("failed to read session %s: %w", sessionID, err)
	}

	var data coordination.SessionData
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("failed to decode session %s: %w", sessionID, err)
	}

	mutate(&data)
	data.LastActivity = time.Now()

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to serialize session %s: %w", sessionID, err)
	}
	if err := s.redis.Command().Set(ctx, key, payload, goredis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("failed to update session %s: %w", sessionID, err)
	}
	return nil
}

// Delete removes one session, its activity log, and its index entry.
func (s *Service) Delete(ctx context.Context, sessionID string) error {
	data, err := s.lookup(ctx, sessionID)
	if err != nil {
		return err
	}

	pipe := s.redis.Command().TxPipeline()
	pipe.Del(ctx, fmt.Sprintf(coordination.SessionKeyPattern, sessionID))
	pipe.Del(ctx, fmt.Sprintf(coordination.SessionActivityKeyPattern, sessionID))
	if data != nil {
		pipe.SRem(ctx, fmt.Sprintf(coordination.UserSessionsKeyPattern, data.UserID), sessionID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	return nil
}

// DeleteAllForUser revokes every session of a user in a single pipeline.
// Invoked after password reset or account deletion; it must not leave an
// orphaned session reachable.
func (s *Service) DeleteAllForUser(ctx context.Context, userID string) error {
	indexKey := fmt.Sprintf(coordination.UserSessionsKeyPattern, userID)
	sessionIDs, err := s.redis.Command().SMembers(ctx, indexKey).Result()
	if err != nil {
		return fmt.Errorf("failed to list sessions for user %s: %w", userID, err)
	}

	pipe := s.redis.Command().TxPipeline()
	for _, id := range sessionIDs {
		pipe.Del(ctx, fmt.Sprintf(coordination.SessionKeyPattern, id))
		pipe.Del(ctx, fmt.Sprintf(coordination.SessionActivityKeyPattern, id))
	}
	pipe.Del(ctx, indexKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete sessions for user %s: %w", userID, err)
	}

	s.logger.Info("All sessions revoked", "user_id", userID, "count", len(sessionIDs))
	return nil
}

// Extend pushes out the TTL of the session, its activity log and the
// per-user index.
func (s *Service) Extend(ctx context.Context, sessionID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	data, err := s.lookup(ctx, sessionID)
	if err != nil {
		return err
	}
	if data == nil {
		return fmt.Errorf("session %s not found", sessionID)
	}

	pipe := s.redis.Command().TxPipeline()
	pipe.Expire(ctx, fmt.Sprintf(coordination.SessionKeyPattern, sessionID), ttl)
	pipe.Expire(ctx, fmt.Sprintf(coordination.SessionActivityKeyPattern, sessionID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to extend session %s: %w", sessionID, err)
	}
	return s.bumpIndexTTL(ctx, fmt.Sprintf(coordination.UserSessionsKeyPattern, data.UserID), ttl)
}

// bumpIndexTTL pushes the index expiry out to ttl, never in. A second,
// shorter-lived session must not shrink the index below the remaining life
// of an earlier one.
func (s *Service) bumpIndexTTL(ctx context.Context, indexKey string, ttl time.Duration) error {
	current, err := s.redis.Command().TTL(ctx, indexKey).Result()
	if err != nil {
		return fmt.Errorf("failed to read session index ttl: %w", err)
	}
	if current >= ttl {
		return nil
	}
	if err := s.redis.Command().Expire(ctx, indexKey, ttl).Err(); err != nil {
		return fmt.Errorf("failed to refresh session index ttl: %w", err)
	}
	return nil
}

// TrackActivity appends to the session's capped activity log. The log's TTL
// mirrors the session's remaining TTL.
func (s *Service) TrackActivity(ctx context.Context, sessionID, activity string) error {
	sessionKey := fmt.Sprintf(coordination.SessionKeyPattern, sessionID)
	activityKey := fmt.Sprintf(coordination.SessionActivityKeyPattern, sessionID)

	ttl, err := s.redis.Command().TTL(ctx, sessionKey).Result()
	if err != nil {
		return fmt.Errorf("failed to read session ttl for %s: %w", sessionID, err)
	}
	if ttl <= 0 {
		return fmt.Errorf("session %s not found", sessionID)
	}

	entry := fmt.Sprintf("%d:%s", time.Now().Unix(), activity)
	pipe := s.redis.Command().TxPipeline()
	pipe.LPush(ctx, activityKey, entry)
	pipe.LTrim(ctx, activityKey, 0, s.activityMax-1)
	pipe.Expire(ctx, activityKey, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to track activity for %s: %w", sessionID, err)
	}
	return nil
}

// GetActivity returns the most recent activity entries, newest first.
func (s *Service) GetActivity(ctx context.Context, sessionID string, limit int64) ([]string, error) {
	if limit <= 0 || limit > s.activityMax {
		limit = s.activityMax
	}
	entries, err := s.redis.Command().LRange(ctx,
		fmt.Sprintf(coordination.SessionActivityKeyPattern, sessionID), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read activity for %s: %w", sessionID, err)
	}
	return entries, nil
}

// SessionsForUser lists the live session ids of one user.
func (s *Service) SessionsForUser(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.redis.Command().SMembers(ctx, fmt.Sprintf(coordination.UserSessionsKeyPattern, userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions for user %s: %w", userID, err)
	}
	return ids, nil
}

// lookup reads a session without refreshing activity.
func (s *Service) lookup(ctx context.Context, sessionID string) (*coordination.SessionData, error) {
	raw, err := s.redis.Command().Get(ctx, fmt.Sprintf(coordination.SessionKeyPattern, sessionID)).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session %s: %w", sessionID, err)
	}
	var data coordination.SessionData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", sessionID, err)
	}
	return &data, nil
}
