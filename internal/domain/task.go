package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the workflow position of a task.
type TaskStatus string

const (
	// TaskStatusPending is the initial state: the admin still has work to do.
	TaskStatusPending TaskStatus = "pending"

	// TaskStatusPendingReview means the admin finished and the client must review.
	TaskStatusPendingReview TaskStatus = "pending_review"

	// TaskStatusCompleted is terminal.
	TaskStatusCompleted TaskStatus = "completed"
)

// Task validation errors
var (
	ErrTaskIDEmpty          = errors.New("task ID cannot be empty")
	ErrTaskClientIDEmpty    = errors.New("task client ID cannot be empty")
	ErrTaskTitleEmpty       = errors.New("title is required")
	ErrTaskDescriptionEmpty = errors.New("description is required")
)

// MediaRef points at an uploaded attachment.
type MediaRef struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// Task is a client's update request and the unit the workflow operates on.
type Task struct {
	ID                 uuid.UUID  `json:"id"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	Images             []MediaRef `json:"images"`
	Videos             []MediaRef `json:"videos"`
	Status             TaskStatus `json:"status"`
	ClientID           uuid.UUID  `json:"client_id"`
	ClientName         string     `json:"client_name"`
	ClientCompany      string     `json:"client_company,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	LastReminder       time.Time  `json:"last_reminder"`
	SubmittedForReview *time.Time `json:"submitted_for_review,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

// NewTask creates a pending task owned by clientID. Title and description are
// trimmed and must be non-empty. CreatedAt and LastReminder both start at now.
func NewTask(clientID uuid.UUID, clientName, clientCompany, title, description string, now time.Time) (*Task, error) {
	task := &Task{
		ID:            uuid.New(),
		Title:         strings.TrimSpace(title),
		Description:   strings.TrimSpace(description),
		Images:        []MediaRef{},
		Videos:        []MediaRef{},
		Status:        TaskStatusPending,
		ClientID:      clientID,
		ClientName:    clientName,
		ClientCompany: clientCompany,
		CreatedAt:     now,
		UpdatedAt:     now,
		LastReminder:  now,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the Task has valid data.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return NewValidationError("id", ErrTaskIDEmpty.Error(), ErrTaskIDEmpty)
	}
	if t.ClientID == uuid.Nil {
		return NewValidationError("client_id", ErrTaskClientIDEmpty.Error(), ErrTaskClientIDEmpty)
	}
	if strings.TrimSpace(t.Title) == "" {
		return NewValidationError("title", ErrTaskTitleEmpty.Error(), ErrTaskTitleEmpty)
	}
	if strings.TrimSpace(t.Description) == "" {
		return NewValidationError("description", ErrTaskDescriptionEmpty.Error(), ErrTaskDescriptionEmpty)
	}
	if !t.Status.Valid() {
		return NewValidationError("status", ErrInvalidTaskStatus.Error(), ErrInvalidTaskStatus)
	}
	return nil
}

// Valid reports whether s is one of the known statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusPendingReview, TaskStatusCompleted:
		return true
	}
	return false
}

// CanTransition reports whether the workflow graph has an edge from -> to.
func CanTransition(from, to TaskStatus) bool {
	switch from {
	case TaskStatusPending:
		return to == TaskStatusPendingReview
	case TaskStatusPendingReview:
		return to == TaskStatusCompleted || to == TaskStatusPending
	}
	return false
}

// SubmitForReview moves a pending task to pending_review.
func (t *Task) SubmitForReview(now time.Time) error {
	if !CanTransition(t.Status, TaskStatusPendingReview) {
		return ErrInvalidTransition
	}
	t.Status = TaskStatusPendingReview
	t.SubmittedForReview = &now
	t.UpdatedAt = now
	return nil
}

// Approve completes a task that is pending review.
func (t *Task) Approve(now time.Time) error {
	if t.Status != TaskStatusPendingReview {
		return ErrInvalidTransition
	}
	t.Status = TaskStatusCompleted
	t.CompletedAt = &now
	t.UpdatedAt = now
	return nil
}

// RequestChanges sends a task under review back to pending and restarts its
// reminder clock.
func (t *Task) RequestChanges(now time.Time) error {
	if t.Status != TaskStatusPendingReview {
		return ErrInvalidTransition
	}
	t.Status = TaskStatusPending
	t.SubmittedForReview = nil
	t.UpdatedAt = now
	if now.After(t.LastReminder) {
		t.LastReminder = now
	}
	return nil
}

// ReminderDue reports whether a pending task has waited at least threshold
// since its last reminder.
func (t *Task) ReminderDue(now time.Time, threshold time.Duration) bool {
	return t.Status == TaskStatusPending && now.Sub(t.LastReminder) >= threshold
}

// CompletedWithin reports whether the task was completed no earlier than
// window before now.
func (t *Task) CompletedWithin(now time.Time, window time.Duration) bool {
	if t.Status != TaskStatusCompleted || t.CompletedAt == nil {
		return false
	}
	return !t.CompletedAt.Before(now.Add(-window))
}
