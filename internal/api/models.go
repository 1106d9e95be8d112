package api

import (
	"time"

	"github.com/phrazzld/clientflow/internal/attachment"
	"github.com/phrazzld/clientflow/internal/domain"
)

// SignUpRequest defines the payload for the client sign-up endpoint.
type SignUpRequest struct {
	Email       string `json:"email"        validate:"required,email"`
	Password    string `json:"password"     validate:"required,min=8,max=72"`
	DisplayName string `json:"display_name" validate:"required,max=100"`
	Company     string `json:"company"      validate:"max=100"`
}

// SignInRequest defines the payload for the sign-in endpoint.
type SignInRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse is returned by sign-up and sign-in.
type AuthResponse struct {
	User      *domain.User `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// TaskListResponse wraps a task listing.
type TaskListResponse struct {
	Tasks []*domain.Task `json:"tasks"`
}

// StagedUploadsResponse lists the attachments staged for the next submission.
type StagedUploadsResponse struct {
	Images []attachment.Staged `json:"images"`
	Videos []attachment.Staged `json:"videos"`
	Limits attachment.Limits   `json:"limits"`
}

// NotificationResponse is a feed entry with its display age.
type NotificationResponse struct {
	domain.Notification
	Age string `json:"age"`
}

// NotificationListResponse lists a session's feed, newest first.
type NotificationListResponse struct {
	Notifications []NotificationResponse `json:"notifications"`
}
