package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/rentiva/rentiva/internal/domain/coordination"
	redisinfra "github.com/rentiva/rentiva/internal/infrastructure/redis"
	"github.com/rentiva/rentiva/pkg/logger"
)

var _ coordination.TokenService = (*Service)(nil)

// Service issues and validates single-purpose opaque tokens. The token
// string itself is the key; a per-user index set enables bulk revocation.
// Validation is uniform: unknown, expired and wrong-type tokens are all
// nil, nil so callers cannot distinguish them.
type Service struct {
	redis  *redisinfra.Manager
	logger *logger.Logger
}

// NewService creates the token service.
func NewService(mgr *redisinfra.Manager, log *logger.Logger) *Service {
	return &Service{
		redis:  mgr,
		logger: log,
	}
}

// Issue stores a new token record under a fresh opaque token string.
func (s *Service) Issue(ctx context.Context, userID, email string, typ coordination.TokenType, ttl time.Duration, metadata map[string]string) (string, error) {
	tok, err := generateToken()
	if err != nil {
		return "", err
	}

	now := time.Now()
	record := coordination.TokenRecord{
		UserID:    userID,
		Email:     email,
		Type:      typ,
		Metadata:  metadata,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("failed to serialize token record: %w", err)
	}

	indexKey := fmt.Sprintf(coordination.UserTokensKeyPattern, userID)
	pipe := s.redis.Command().TxPipeline()
	pipe.Set(ctx, fmt.Sprintf(coordination.TokenKeyPattern, tok), payload, ttl)
	pipe.SAdd(ctx, indexKey, tok)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to store %s token for user %s: %w", typ, userID, err)
	}

	// Keep the index alive at least as long as its longest-lived member.
	current, err := s.redis.Command().TTL(ctx, indexKey).Result()
	if err == nil && current < ttl {
		if err := s.redis.Command().Expire(ctx, indexKey, ttl).Err(); err != nil {
			s.logger.Warn("Failed to refresh token index ttl", "user_id", userID, "error", err)
		}
	}

	s.logger.Debug("Token issued", "user_id", userID, "type", typ, "ttl", ttl)
	return tok, nil
}

// Validate returns the record behind token if it exists, has the requested
// type, and has not passed its stored expiry. The stored ExpiresAt is
// double-checked independently of the backing TTL; a stale record found
// past its expiry is deleted on the spot.
func (s *Service) Validate(ctx context.Context, token string, typ coordination.TokenType) (*coordination.TokenRecord, error) {
	raw, err := s.redis.Command().Get(ctx, fmt.Sprintf(coordination.TokenKeyPattern, token)).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token: %w", err)
	}

	var record coordination.TokenRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("failed to decode token record: %w", err)
	}

	if time.Now().After(record.ExpiresAt) {
		if err := s.Revoke(ctx, token); err != nil {
			s.logger.Warn("Failed to delete expired token", "user_id", record.UserID, "error", err)
		}
		return nil, nil
	}
	if record.Type != typ {
		return nil, nil
	}
	return &record, nil
}

// Revoke deletes a token and its index entry.
func (s *Service) Revoke(ctx context.Context, token string) error {
	key := fmt.Sprintf(coordination.TokenKeyPattern, token)
	raw, err := s.redis.Command().Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read token for revocation: %w", err)
	}

	var record coordination.TokenRecord
	pipe := s.redis.Command().TxPipeline()
	pipe.Del(ctx, key)
	if err := json.Unmarshal(raw, &record); err == nil {
		pipe.SRem(ctx, fmt.Sprintf(coordination.UserTokensKeyPattern, record.UserID), token)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// RevokeAllForUser deletes every token of a user, optionally restricted to
// the given types.
func (s *Service) RevokeAllForUser(ctx context.Context, userID string, types ...coordination.TokenType) error {
	indexKey := fmt.Sprintf(coordination.UserTokensKeyPattern, userID)
	tokens, err := s.redis.Command().SMembers(ctx, indexKey).Result()
	if err != nil {
		return fmt.Errorf("failed to list tokens for user %s: %w", userID, err)
	}

	wanted := func(typ coordination.TokenType) bool {
		if len(types) == 0 {
			return true
		}
		for _, t := range types {
			if t == typ {
				return true
			}
		}
		return false
	}

	var revoked int
	for _, tok := range tokens {
		raw, err := s.redis.Command().Get(ctx, fmt.Sprintf(coordination.TokenKeyPattern, tok)).Bytes()
		if err == goredis.Nil {
			// Token expired naturally; drop the dangling index entry.
			s.redis.Command().SRem(ctx, indexKey, tok)
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read token for user %s: %w", userID, err)
		}
		var record coordination.TokenRecord
		if err := json.Unmarshal(raw, &record); err != nil || wanted(record.Type) {
			pipe := s.redis.Command().TxPipeline()
			pipe.Del(ctx, fmt.Sprintf(coordination.TokenKeyPattern, tok))
			pipe.SRem(ctx, indexKey, tok)
			if _, err := pipe.Exec(ctx); err != nil {
				return fmt.Errorf("failed to revoke token for user %s: %w", userID, err)
			}
			revoked++
		}
	}

	s.logger.Info("Tokens revoked", "user_id", userID, "count", revoked)
	return nil
}

// Per-type wrappers pinning the TTL policy of each token type.

func (s *Service) CreatePasswordResetToken(ctx context.Context, userID, email string) (string, error) {
	return s.Issue(ctx, userID, email, coordination.TokenPasswordReset, coordination.PasswordResetTokenTTL, nil)
}

func (s *Service) CreateEmailVerificationToken(ctx context.Context, userID, email string) (string, error) {
	return s.Issue(ctx, userID, email, coordination.TokenEmailVerification, coordination.EmailVerificationTokenTTL, nil)
}

func (s *Service) CreateAccessToken(ctx context.Context, userID, email string) (string, error) {
	return s.Issue(ctx, userID, email, coordination.TokenAccess, coordination.AccessTokenTTL, nil)
}

func (s *Service) CreateRefreshToken(ctx context.Context, userID, email string) (string, error) {
	return s.Issue(ctx, userID, email, coordination.TokenRefresh, coordination.RefreshTokenTTL, nil)
}

func (s *Service) CreateAPIToken(ctx context.Context, userID, email string, metadata map[string]string) (string, error) {
	return s.Issue(ctx, userID, email, coordination.TokenAPI, coordination.APITokenTTL, metadata)
}

func (s *Service) CreateInvitationToken(ctx context.Context, userID, email string, metadata map[string]string) (string, error) {
	return s.Issue(ctx, userID, email, coordination.TokenInvitation, coordination.InvitationTokenTTL, metadata)
}

func (s *Service) CreateTwoFactorToken(ctx context.Context, userID, email string) (string, error) {
	return s.Issue(ctx, userID, email, coordination.TokenTwoFactor, coordination.TwoFactorTokenTTL, nil)
}

func (s *Service) ValidatePasswordResetToken(ctx context.Context, token string) (*coordination.TokenRecord, error) {
	return s.Validate(ctx, token, coordination.TokenPasswordReset)
}

func (s *Service) ValidateEmailVerificationToken(ctx context.Context, token string) (*coordination.TokenRecord, error) {
	return s.Validate(ctx, token, coordination.TokenEmailVerification)
}

func (s *Service) ValidateAccessToken(ctx context.Context, token string) (*coordination.TokenRecord, error) {
	return s.Validate(ctx, token, coordination.TokenAccess)
}

func (s *Service) ValidateRefreshToken(ctx context.Context, token string) (*coordination.TokenRecord, error) {
	return s.Validate(ctx, token, coordination.TokenRefresh)
}

func (s *Service) ValidateAPIToken(ctx context.Context, token string) (*coordination.TokenRecord, error) {
	return s.Validate(ctx, token, coordination.TokenAPI)
}

func (s *Service) ValidateInvitationToken(ctx context.Context, token string) (*coordination.TokenRecord, error) {
	return s.Validate(ctx, token, coordination.TokenInvitation)
}

func (s *Service) ValidateTwoFactorToken(ctx context.Context, token string) (*coordination.TokenRecord, error) {
	return s.Validate(ctx, token, coordination.TokenTwoFactor)
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
