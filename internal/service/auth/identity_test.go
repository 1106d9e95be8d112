package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/phrazzld/clientflow/internal/config"
	"github.com/phrazzld/clientflow/internal/domain"
	"github.com/phrazzld/clientflow/internal/platform/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAuthConfig(secret string) config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:            secret,
		TokenLifetimeMinutes: 60,
		BCryptCost:           4,
	}
}

func newTestIdentity(t *testing.T) *Identity {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	tokens, err := NewJWTService(testAuthConfig(testSecret))
	require.NoError(t, err)
	return NewIdentity(sqlite.NewUserStore(db, logger), NewBcryptHasher(4), tokens, logger)
}

func TestSignUpAndSignIn(t *testing.T) {
	t.Parallel()

	id := newTestIdentity(t)
	ctx := context.Background()

	res, err := id.SignUp(ctx, SignUpRequest{
		Email:       "Dana@Example.com",
		Password:    "password123",
		DisplayName: "Dana",
		Company:     " Acme ",
	})
	require.NoError(t, err)
	assert.True(t, res.NewAccount)
	assert.Equal(t, domain.RoleClient, res.User.Role)
	assert.Equal(t, "Acme", res.User.Company)
	assert.Empty(t, res.User.Password)
	assert.NotEqual(t, "password123", res.User.HashedPassword)
	assert.NotEmpty(t, res.Token)

	in, err := id.SignIn(ctx, " dana@example.com", "password123")
	require.NoError(t, err)
	assert.False(t, in.NewAccount)
	assert.Equal(t, res.User.ID, in.User.ID)
	assert.NotEqual(t, res.Claims.SessionID, in.Claims.SessionID)

	claims, user, err := id.Authenticate(ctx, in.Token)
	require.NoError(t, err)
	assert.Equal(t, in.Claims.SessionID, claims.SessionID)
	assert.Equal(t, "Dana", user.DisplayName)
}

func TestSignUpEmailInUse(t *testing.T) {
	t.Parallel()

	id := newTestIdentity(t)
	ctx := context.Background()
	req := SignUpRequest{Email: "dana@example.com", Password: "password123", DisplayName: "Dana"}

	_, err := id.SignUp(ctx, req)
	require.NoError(t, err)

	_, err = id.SignUp(ctx, req)
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, ErrEmailInUse.Error(), authErr.Message)
	assert.ErrorIs(t, err, ErrEmailInUse)
}

func TestSignUpValidation(t *testing.T) {
	t.Parallel()

	id := newTestIdentity(t)
	_, err := id.SignUp(context.Background(), SignUpRequest{Email: "bad", Password: "password123", DisplayName: "D"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = id.SignUp(context.Background(), SignUpRequest{Email: "a@b.co", Password: "short", DisplayName: "D"})
	assert.ErrorIs(t, err, domain.ErrPasswordTooShort)
}

func TestSignInFailures(t *testing.T) {
	t.Parallel()

	id := newTestIdentity(t)
	ctx := context.Background()
	_, err := id.SignUp(ctx, SignUpRequest{Email: "dana@example.com", Password: "password123", DisplayName: "Dana"})
	require.NoError(t, err)

	_, err = id.SignIn(ctx, "dana@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = id.SignIn(ctx, "nobody@example.com", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = id.Authenticate(ctx, "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestEnsureAdmin(t *testing.T) {
	t.Parallel()

	id := newTestIdentity(t)
	ctx := context.Background()

	admin, created, err := id.EnsureAdmin(ctx, "admin@example.com", "admin-password", "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, domain.RoleAdmin, admin.Role)
	assert.Equal(t, "Admin", admin.DisplayName)

	again, created, err := id.EnsureAdmin(ctx, "ADMIN@example.com", "admin-password", "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, admin.ID, again.ID)

	res, err := id.SignIn(ctx, "admin@example.com", "admin-password")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, res.Claims.Role)

	_, err = id.SignUp(ctx, SignUpRequest{Email: "dana@example.com", Password: "password123", DisplayName: "Dana"})
	require.NoError(t, err)
	_, _, err = id.EnsureAdmin(ctx, "dana@example.com", "password123", "")
	assert.Error(t, err)
}

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(4)
	hash, err := h.Hash("password123")
	require.NoError(t, err)
	assert.NoError(t, h.Compare(hash, "password123"))
	assert.Error(t, h.Compare(hash, "password124"))

	assert.Equal(t, 10, NewBcryptHasher(99).cost)
}
