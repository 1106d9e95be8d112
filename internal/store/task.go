package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/clientflow/internal/domain"
)

// TaskFilter narrows List results. Zero values match everything.
type TaskFilter struct {
	ClientID *uuid.UUID
	Statuses []domain.TaskStatus
}

// Matches reports whether t passes the filter.
func (f TaskFilter) Matches(t *domain.Task) bool {
	if f.ClientID != nil && t.ClientID != *f.ClientID {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if t.Status == s {
			return true
		}
	}
	return false
}

// TaskStore defines the interface for task persistence.
type TaskStore interface {
	// Create saves a new task.
	Create(ctx context.Context, task *domain.Task) error

	// GetByID retrieves a task. Returns ErrTaskNotFound if it does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// List returns tasks matching filter, newest first by creation time.
	List(ctx context.Context, filter TaskFilter) ([]*domain.Task, error)

	// UpdateStatus writes the workflow fields of task (status, timestamps)
	// only if the stored status still equals from. Returns ErrStatusConflict
	// when it does not and ErrTaskNotFound when the task is gone.
	// last_reminder is never moved backwards.
	UpdateStatus(ctx context.Context, task *domain.Task, from domain.TaskStatus) error

	// TouchReminder sets last_reminder to now if the task is still pending and
	// its last_reminder still equals prev. It reports whether the row changed.
	TouchReminder(ctx context.Context, id uuid.UUID, prev, now time.Time) (bool, error)

	// Delete removes a task. Returns ErrTaskNotFound if it does not exist.
	Delete(ctx context.Context, id uuid.UUID) error
}
