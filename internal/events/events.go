package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/clientflow/internal/domain"
)

// Kind identifies what happened to a task.
type Kind string

const (
	KindTaskSubmitted          Kind = "task.submitted"
	KindTaskSubmittedForReview Kind = "task.submitted_for_review"
	KindTaskApproved           Kind = "task.approved"
	KindTaskChangesRequested   Kind = "task.changes_requested"
	KindTaskDeleted            Kind = "task.deleted"
	KindTaskReminder           Kind = "task.reminder"
)

// notificationKinds maps event kinds to the feed entry kind they produce.
var notificationKinds = map[Kind]domain.NotificationKind{
	KindTaskSubmitted:          domain.NotificationSubmitted,
	KindTaskSubmittedForReview: domain.NotificationSubmittedReview,
	KindTaskApproved:           domain.NotificationApproved,
	KindTaskChangesRequested:   domain.NotificationChangesRequested,
	KindTaskDeleted:            domain.NotificationDeleted,
	KindTaskReminder:           domain.NotificationReminder,
}

// Event is a workflow occurrence. It carries enough of the task to route it
// without another store read.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Kind       Kind      `json:"kind"`
	TaskID     uuid.UUID `json:"task_id"`
	TaskTitle  string    `json:"task_title"`
	ClientID   uuid.UUID `json:"client_id"`
	ClientName string    `json:"client_name"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewTaskEvent builds an event of kind about task.
func NewTaskEvent(kind Kind, task *domain.Task, message string, now time.Time) *Event {
	return &Event{
		ID:         uuid.New(),
		Kind:       kind,
		TaskID:     task.ID,
		TaskTitle:  task.Title,
		ClientID:   task.ClientID,
		ClientName: task.ClientName,
		Message:    message,
		CreatedAt:  now,
	}
}

// AdminOnly reports whether only admin sessions should see the event.
func (e *Event) AdminOnly() bool {
	return e.Kind == KindTaskReminder
}

// VisibleTo reports whether user should be told about the event.
func (e *Event) VisibleTo(user *domain.User) bool {
	if user.IsAdmin() {
		return true
	}
	return !e.AdminOnly() && e.ClientID == user.ID
}

// NotificationKind returns the feed entry kind for the event.
func (e *Event) NotificationKind() domain.NotificationKind {
	return notificationKinds[e.Kind]
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *Event) error
}

// EventEmitter defines an interface for components that can emit events.
// This allows services to publish events without direct knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *Event) error
}

// HandlerFunc adapts a function to EventHandler.
type HandlerFunc func(ctx context.Context, event *Event) error

// HandleEvent implements EventHandler.
func (f HandlerFunc) HandleEvent(ctx context.Context, event *Event) error {
	return f(ctx, event)
}
