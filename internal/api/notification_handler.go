package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/clientflow/internal/api/shared"
	"github.com/phrazzld/clientflow/internal/domain"
	"github.com/phrazzld/clientflow/internal/notify"
)

// NotificationHandler serves the caller's notification feed.
type NotificationHandler struct {
	now    func() time.Time
	logger *slog.Logger
}

// NewNotificationHandler creates a NotificationHandler. A nil now uses time.Now.
func NewNotificationHandler(now func() time.Time, logger *slog.Logger) *NotificationHandler {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationHandler{
		now:    now,
		logger: logger.With(slog.String("component", "notification_handler")),
	}
}

// List handles GET /notifications, newest first.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	now := h.now()
	entries := s.Feed.List()
	out := make([]NotificationResponse, 0, len(entries))
	for _, n := range entries {
		out = append(out, toNotificationResponse(n, now))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, NotificationListResponse{Notifications: out})
}

// Clear handles DELETE /notifications.
func (h *NotificationHandler) Clear(w http.ResponseWriter, r *http.Request) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	s.Feed.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func toNotificationResponse(n domain.Notification, now time.Time) NotificationResponse {
	return NotificationResponse{Notification: n, Age: notify.FormatAge(n.CreatedAt, now)}
}
