package coordination

import (
	"context"
	"time"
)

// TokenType identifies the single purpose a token is valid for.
type TokenType string

const (
	TokenPasswordReset     TokenType = "password_reset"
	TokenEmailVerification TokenType = "email_verification"
	TokenAccess            TokenType = "access"
	TokenRefresh           TokenType = "refresh"
	TokenAPI               TokenType = "api"
	TokenInvitation        TokenType = "invitation"
	TokenTwoFactor         TokenType = "two_factor"
)

// Default TTL per token type.
const (
	TwoFactorTokenTTL         = 5 * time.Minute
	AccessTokenTTL            = 15 * time.Minute
	PasswordResetTokenTTL     = 1 * time.Hour
	EmailVerificationTokenTTL = 24 * time.Hour
	RefreshTokenTTL           = 7 * 24 * time.Hour
	InvitationTokenTTL        = 7 * 24 * time.Hour
	APITokenTTL               = 30 * 24 * time.Hour
)

// TokenRecord is the metadata stored for one opaque token.
type TokenRecord struct {
	UserID    string            `json:"user_id"`
	Email     string            `json:"email"`
	Type      TokenType         `json:"type"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// TokenService issues and validates single-purpose opaque tokens.
// Validation never distinguishes expired from unknown: both are nil, nil.
type TokenService interface {
	Issue(ctx context.Context, userID, email string, typ TokenType, ttl time.Duration, metadata map[string]string) (string, error)
	Validate(ctx context.Context, token string, typ TokenType) (*TokenRecord, error)
	Revoke(ctx context.Context, token string) error
	RevokeAllForUser(ctx context.Context, userID string, types ...TokenType) error

	CreatePasswordResetToken(ctx context.Context, userID, email string) (string, error)
	CreateEmailVerificationToken(ctx context.Context, userID, email string) (string, error)
	CreateAccessToken(ctx context.Context, userID, email string) (string, error)
	CreateRefreshToken(ctx context.Context, userID, email string) (string, error)
	CreateAPIToken(ctx context.Context, userID, email string, metadata map[string]string) (string, error)
	CreateInvitationToken(ctx context.Context, userID, email string, metadata map[string]string) (string, error)
	CreateTwoFactorToken(ctx context.Context, userID, email string) (string, error)

	ValidatePasswordResetToken(ctx context.Context, token string) (*TokenRecord, error)
	ValidateEmailVerificationToken(ctx context.Context, token string) (*TokenRecord, error)
	ValidateAccessToken(ctx context.Context, token string) (*TokenRecord, error)
	ValidateRefreshToken(ctx context.Context, token string) (*TokenRecord, error)
	ValidateAPIToken(ctx context.Context, token string) (*TokenRecord, error)
	ValidateInvitationToken(ctx context.Context, token string) (*TokenRecord, error)
	ValidateTwoFactorToken(ctx context.Context, token string) (*TokenRecord, error)
}
