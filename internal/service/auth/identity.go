package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/phrazzld/clientflow/internal/domain"
	"github.com/phrazzld/clientflow/internal/platform/logger"
	"github.com/phrazzld/clientflow/internal/store"
)

// SignUpRequest holds the fields of a new client account.
type SignUpRequest struct {
	Email       string
	Password    string
	DisplayName string
	Company     string
}

// SignInResult is a successful sign-up or sign-in.
type SignInResult struct {
	User       *domain.User
	Token      string
	Claims     *Claims
	NewAccount bool
}

// Identity creates accounts and issues session tokens.
type Identity struct {
	users  store.UserStore
	hasher PasswordHasher
	tokens JWTService
	logger *slog.Logger
}

// NewIdentity creates an identity provider.
func NewIdentity(users store.UserStore, hasher PasswordHasher, tokens JWTService, logger *slog.Logger) *Identity {
	if logger == nil {
		logger = slog.Default()
	}
	return &Identity{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		logger: logger.With(slog.String("component", "identity")),
	}
}

// SignUp creates a client account and signs it in.
func (i *Identity) SignUp(ctx context.Context, req SignUpRequest) (*SignInResult, error) {
	log := logger.FromContextOrDefault(ctx, i.logger)

	user, err := domain.NewUser(req.Email, req.Password, req.DisplayName, domain.RoleClient)
	if err != nil {
		return nil, err
	}
	user.Company = strings.TrimSpace(req.Company)

	if err := i.setPassword(user); err != nil {
		return nil, err
	}

	if err := i.users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrEmailExists) {
			return nil, newAuthError(ErrEmailInUse)
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	log.Info("client account created", slog.String("user_id", user.ID.String()))

	return i.issue(ctx, user, true)
}

// SignIn checks credentials and issues a token.
func (i *Identity) SignIn(ctx context.Context, email, password string) (*SignInResult, error) {
	log := logger.FromContextOrDefault(ctx, i.logger)

	user, err := i.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			log.Debug("sign-in for unknown email")
			return nil, newAuthError(ErrInvalidCredentials)
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	if err := i.hasher.Compare(user.HashedPassword, password); err != nil {
		log.Debug("sign-in with wrong password", slog.String("user_id", user.ID.String()))
		return nil, newAuthError(ErrInvalidCredentials)
	}

	return i.issue(ctx, user, false)
}

// EnsureAdmin creates the administrator account if no account uses email yet.
// It reports whether an account was created. An existing non-admin account
// with that email is an error.
func (i *Identity) EnsureAdmin(ctx context.Context, email, password, displayName string) (*domain.User, bool, error) {
	existing, err := i.users.GetByEmail(ctx, normalizeEmail(email))
	switch {
	case err == nil:
		if !existing.IsAdmin() {
			return nil, false, fmt.Errorf("account %s exists without the admin role", existing.Email)
		}
		return existing, false, nil
	case !errors.Is(err, store.ErrUserNotFound):
		return nil, false, fmt.Errorf("failed to look up admin account: %w", err)
	}

	if displayName == "" {
		displayName = "Admin"
	}
	admin, err := domain.NewUser(email, password, displayName, domain.RoleAdmin)
	if err != nil {
		return nil, false, fmt.Errorf("invalid admin account settings: %w", err)
	}
	if err := i.setPassword(admin); err != nil {
		return nil, false, err
	}
	if err := i.users.Create(ctx, admin); err != nil {
		return nil, false, fmt.Errorf("failed to create admin account: %w", err)
	}

	i.logger.Info("admin account provisioned", slog.String("user_id", admin.ID.String()))
	return admin, true, nil
}

// Authenticate validates token and loads its user.
func (i *Identity) Authenticate(ctx context.Context, token string) (*Claims, *domain.User, error) {
	claims, err := i.tokens.ValidateToken(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	user, err := i.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, nil, ErrInvalidToken
		}
		return nil, nil, fmt.Errorf("failed to load account: %w", err)
	}
	return claims, user, nil
}

func (i *Identity) setPassword(user *domain.User) error {
	hash, err := i.hasher.Hash(user.Password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.HashedPassword = hash
	user.Password = ""
	return nil
}

func (i *Identity) issue(ctx context.Context, user *domain.User, newAccount bool) (*SignInResult, error) {
	token, claims, err := i.tokens.GenerateToken(ctx, user)
	if err != nil {
		return nil, err
	}
	return &SignInResult{User: user, Token: token, Claims: claims, NewAccount: newAccount}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
