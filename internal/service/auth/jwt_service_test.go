package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/clientflow/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-that-is-long-enough-for-testing"

// newTestJWTService creates a service with a fixed clock.
func newTestJWTService(secret string, lifetime time.Duration, timeFunc func() time.Time) JWTService {
	return &hmacJWTService{
		signingKey:    []byte(secret),
		tokenLifetime: lifetime,
		timeFunc:      timeFunc,
		clockSkew:     2 * time.Minute,
	}
}

func TestGenerateToken(t *testing.T) {
	t.Parallel()

	fixedTime := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	lifetime := 60 * time.Minute
	user := &domain.User{ID: uuid.New(), Role: domain.RoleAdmin}
	svc := newTestJWTService(testSecret, lifetime, func() time.Time { return fixedTime })

	token, issued, err := svc.GenerateToken(context.Background(), user)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, domain.RoleAdmin, claims.Role)
	assert.Equal(t, issued.SessionID, claims.SessionID)
	assert.NotEmpty(t, claims.SessionID)
	assert.Equal(t, fixedTime.Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, fixedTime.Add(lifetime).Unix(), claims.ExpiresAt.Unix())

	_, second, err := svc.GenerateToken(context.Background(), user)
	require.NoError(t, err)
	assert.NotEqual(t, issued.SessionID, second.SessionID)
}

func TestValidateToken(t *testing.T) {
	t.Parallel()

	fixedTime := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	lifetime := 60 * time.Minute
	user := &domain.User{ID: uuid.New(), Role: domain.RoleClient}
	at := func(ts time.Time) func() time.Time { return func() time.Time { return ts } }

	tests := []struct {
		name      string
		setupFunc func() (JWTService, string)
		wantErr   error
	}{
		{
			name: "valid token",
			setupFunc: func() (JWTService, string) {
				svc := newTestJWTService(testSecret, lifetime, at(fixedTime))
				token, _, _ := svc.GenerateToken(context.Background(), user)
				return svc, token
			},
		},
		{
			name: "expired token",
			setupFunc: func() (JWTService, string) {
				token, _, _ := newTestJWTService(testSecret, lifetime, at(fixedTime)).
					GenerateToken(context.Background(), user)
				return newTestJWTService(testSecret, lifetime, at(fixedTime.Add(lifetime+time.Hour))), token
			},
			wantErr: ErrExpiredToken,
		},
		{
			name: "within clock skew",
			setupFunc: func() (JWTService, string) {
				token, _, _ := newTestJWTService(testSecret, lifetime, at(fixedTime)).
					GenerateToken(context.Background(), user)
				return newTestJWTService(testSecret, lifetime, at(fixedTime.Add(lifetime+time.Minute))), token
			},
		},
		{
			name: "invalid signature",
			setupFunc: func() (JWTService, string) {
				token, _, _ := newTestJWTService(testSecret, lifetime, at(fixedTime)).
					GenerateToken(context.Background(), user)
				return newTestJWTService("wrong-secret-that-is-long-enough-for-testing", lifetime, at(fixedTime)), token
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "malformed token",
			setupFunc: func() (JWTService, string) {
				return newTestJWTService(testSecret, lifetime, at(fixedTime)), "this.is.not.a.valid.jwt.token"
			},
			wantErr: ErrInvalidToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc, token := tt.setupFunc()
			claims, err := svc.ValidateToken(context.Background(), token)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, claims)
			} else {
				require.NoError(t, err)
				assert.Equal(t, user.ID, claims.UserID)
			}
		})
	}
}

func TestNewJWTServiceRejectsShortSecret(t *testing.T) {
	_, err := NewJWTService(testAuthConfig("short"))
	assert.Error(t, err)

	svc, err := NewJWTService(testAuthConfig(testSecret))
	require.NoError(t, err)
	assert.NotNil(t, svc)
}
