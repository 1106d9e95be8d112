package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/clientflow/internal/domain"
)

// JWTService defines operations for managing session tokens.
type JWTService interface {
	// GenerateToken creates a signed token for user. Every token carries a
	// fresh session ID in its jti claim.
	GenerateToken(ctx context.Context, user *domain.User) (string, *Claims, error)

	// ValidateToken validates the provided token string and extracts the claims.
	// Returns ErrExpiredToken, ErrTokenNotYetValid or ErrInvalidToken on failure.
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims represents the custom claims structure for the JWT tokens.
type Claims struct {
	// UserID is the unique identifier of the user the token was issued for.
	UserID uuid.UUID `json:"uid,omitempty"`

	// Role is the user's role when the token was issued.
	Role domain.Role `json:"role,omitempty"`

	// SessionID identifies the server-side session the token belongs to.
	SessionID string `json:"jti,omitempty"`

	IssuedAt  time.Time `json:"iat,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
}
