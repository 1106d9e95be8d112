package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/clientflow/internal/api/shared"
	"github.com/phrazzld/clientflow/internal/domain"
	"github.com/phrazzld/clientflow/internal/platform/logger"
	"github.com/phrazzld/clientflow/internal/service/auth"
	"github.com/phrazzld/clientflow/internal/session"
)

// IdentityService creates accounts and issues tokens.
type IdentityService interface {
	SignUp(ctx context.Context, req auth.SignUpRequest) (*auth.SignInResult, error)
	SignIn(ctx context.Context, email, password string) (*auth.SignInResult, error)
}

// SessionRegistry opens and closes sessions.
type SessionRegistry interface {
	Open(ctx context.Context, user *domain.User, sessionID string, expiresAt time.Time, newAccount bool) (*session.Session, error)
	Close(id string) bool
}

// AuthHandler handles sign-up, sign-in and sign-out.
type AuthHandler struct {
	identity IdentityService
	sessions SessionRegistry
	logger   *slog.Logger
}

// NewAuthHandler creates a new AuthHandler with the given dependencies.
func NewAuthHandler(identity IdentityService, sessions SessionRegistry, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		identity: identity,
		sessions: sessions,
		logger:   logger.With(slog.String("component", "auth_handler")),
	}
}

// SignUp handles POST /auth/signup. New accounts are always clients.
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	result, err := h.identity.SignUp(r.Context(), auth.SignUpRequest{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Company:     req.Company,
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create account")
		return
	}

	h.startSession(w, r, result, http.StatusCreated)
}

// SignIn handles POST /auth/signin.
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	result, err := h.identity.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to sign in")
		return
	}

	h.startSession(w, r, result, http.StatusOK)
}

// SignOut handles POST /auth/signout. The session and everything it owns is
// torn down; its token stops working immediately.
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	h.sessions.Close(s.ID)
	logger.FromContextOrDefault(r.Context(), h.logger).Info("signed out")
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, result *auth.SignInResult, status int) {
	_, err := h.sessions.Open(r.Context(), result.User, result.Claims.SessionID, result.Claims.ExpiresAt, result.NewAccount)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to start session")
		return
	}

	logger.FromContextOrDefault(r.Context(), h.logger).Info("signed in",
		slog.String("user_id", result.User.ID.String()),
		slog.String("role", string(result.User.Role)),
		slog.Bool("new_account", result.NewAccount))

	shared.RespondWithJSON(w, r, status, AuthResponse{
		User:      result.User,
		Token:     result.Token,
		ExpiresAt: result.Claims.ExpiresAt,
	})
}
