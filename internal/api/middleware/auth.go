package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/phrazzld/clientflow/internal/api/shared"
	"github.com/phrazzld/clientflow/internal/domain"
	"github.com/phrazzld/clientflow/internal/platform/logger"
	"github.com/phrazzld/clientflow/internal/service/auth"
	"github.com/phrazzld/clientflow/internal/session"
)

// AccessTokenParam carries the token for clients that cannot set headers,
// such as EventSource.
const AccessTokenParam = "access_token"

// Authenticator resolves a bearer token to its claims and user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Claims, *domain.User, error)
}

// SessionLookup finds open sessions by ID.
type SessionLookup interface {
	Get(id string) (*session.Session, bool)
}

// AuthMiddleware admits requests whose token belongs to an open session.
type AuthMiddleware struct {
	authenticator Authenticator
	sessions      SessionLookup
}

// NewAuthMiddleware creates a new AuthMiddleware with the given dependencies.
func NewAuthMiddleware(authenticator Authenticator, sessions SessionLookup) *AuthMiddleware {
	return &AuthMiddleware{
		authenticator: authenticator,
		sessions:      sessions,
	}
}

// Authenticate validates the token and puts the caller's session in the
// request context. Tokens of signed-out or expired sessions are refused even
// while their signature is still valid.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Authorization header required")
			return
		}

		claims, user, err := m.authenticator.Authenticate(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrExpiredToken):
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Token expired")
			case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrTokenNotYetValid):
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid token")
			default:
				shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Authentication error", err)
			}
			return
		}

		s, ok := m.sessions.Get(claims.SessionID)
		if !ok || s.User.ID != user.ID {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Session has ended")
			return
		}

		ctx := shared.WithSession(r.Context(), s)
		ctx = logger.WithLogger(ctx, logger.FromContext(ctx).With(
			slog.String("user_id", user.ID.String()),
			slog.String("session_id", s.ID)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin refuses non-admin sessions. It must run after Authenticate.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := shared.SessionFrom(r.Context())
		if !ok || !s.User.IsAdmin() {
			shared.RespondWithError(w, r, http.StatusForbidden, "Administrator access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if token := r.URL.Query().Get(AccessTokenParam); token != "" && r.Method == http.MethodGet {
			return token, true
		}
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || scheme != "Bearer" || token == "" {
		return "", false
	}
	return token, true
}
