package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Role is fixed when the account is created.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleClient Role = "client"
)

// Common validation errors
var (
	ErrEmptyUserID         = errors.New("user ID cannot be empty")
	ErrInvalidEmail        = errors.New("invalid email format")
	ErrEmptyEmail          = errors.New("email cannot be empty")
	ErrEmptyDisplayName    = errors.New("display name cannot be empty")
	ErrPasswordTooShort    = errors.New("password must be at least 8 characters long")
	ErrPasswordTooLong     = errors.New("password must be at most 72 characters long")
	ErrEmptyPassword       = errors.New("password cannot be empty")
	ErrEmptyHashedPassword = errors.New("hashed password cannot be empty")
)

const (
	minPasswordLength = 8
	maxPasswordLength = 72 // bcrypt ignores anything longer
)

var emailValidator = validator.New()

// User is an account holder: the single administrator or one of the clients.
type User struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	DisplayName    string    `json:"display_name"`
	Role           Role      `json:"role"`
	AvatarURL      string    `json:"avatar_url,omitempty"`
	Company        string    `json:"company,omitempty"`
	Password       string    `json:"-"` // plaintext, only set during sign-up
	HashedPassword string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewUser creates a new User with the given identity and role.
//
// The plaintext password is kept on the struct only so it can be validated;
// the caller hashes it before storage.
func NewUser(email, password, displayName string, role Role) (*User, error) {
	now := time.Now().UTC()
	user := &User{
		ID:          uuid.New(),
		Email:       strings.ToLower(strings.TrimSpace(email)),
		DisplayName: strings.TrimSpace(displayName),
		Role:        role,
		Password:    password,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := user.Validate(); err != nil {
		return nil, err
	}

	return user, nil
}

// Validate checks if the User has valid data.
func (u *User) Validate() error {
	if u.ID == uuid.Nil {
		return NewValidationError("id", ErrEmptyUserID.Error(), ErrEmptyUserID)
	}

	if u.Email == "" {
		return NewValidationError("email", ErrEmptyEmail.Error(), ErrEmptyEmail)
	}
	if err := emailValidator.Var(u.Email, "email"); err != nil {
		return NewValidationError("email", ErrInvalidEmail.Error(), ErrInvalidEmail)
	}

	if u.DisplayName == "" {
		return NewValidationError("display_name", ErrEmptyDisplayName.Error(), ErrEmptyDisplayName)
	}

	if !u.Role.Valid() {
		return NewValidationError("role", ErrInvalidRole.Error(), ErrInvalidRole)
	}

	if u.Password != "" {
		switch {
		case len(u.Password) < minPasswordLength:
			return NewValidationError("password", ErrPasswordTooShort.Error(), ErrPasswordTooShort)
		case len(u.Password) > maxPasswordLength:
			return NewValidationError("password", ErrPasswordTooLong.Error(), ErrPasswordTooLong)
		}
	} else if u.HashedPassword == "" {
		// existing users loaded from storage only carry the hash
		return NewValidationError("password", ErrEmptyPassword.Error(), ErrEmptyPassword)
	}

	return nil
}

// Valid reports whether r is admin or client.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleClient
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// CanView reports whether the user may see task t.
func (u *User) CanView(t *Task) bool {
	return u.IsAdmin() || t.ClientID == u.ID
}
