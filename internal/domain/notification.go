package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NotificationKind classifies a feed entry.
type NotificationKind string

const (
	NotificationSubmitted        NotificationKind = "submitted"
	NotificationSubmittedReview  NotificationKind = "submitted_for_review"
	NotificationApproved         NotificationKind = "approved"
	NotificationChangesRequested NotificationKind = "changes_requested"
	NotificationDeleted          NotificationKind = "deleted"
	NotificationReminder         NotificationKind = "reminder"
	NotificationWelcome          NotificationKind = "welcome"
)

// Notification is one entry in a session's feed.
type Notification struct {
	ID        uint64           `json:"id"`
	Kind      NotificationKind `json:"kind"`
	Message   string           `json:"message"`
	TaskID    *uuid.UUID       `json:"task_id,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// SubmittedMessage is shown when a client creates a task.
func SubmittedMessage(title string) string {
	return fmt.Sprintf("New update request submitted: \"%s\"", title)
}

// SubmittedForReviewMessage is shown when the admin hands a task back to its client.
func SubmittedForReviewMessage(title, clientName string) string {
	return fmt.Sprintf("Task \"%s\" submitted for %s's review", title, clientName)
}

// ApprovedMessage is shown when the client approves a task.
func ApprovedMessage(title string) string {
	return fmt.Sprintf("Task \"%s\" approved and completed!", title)
}

// ChangesRequestedMessage is shown when the client rejects a review.
func ChangesRequestedMessage(title string) string {
	return fmt.Sprintf("Changes requested for \"%s\" - back to in progress", title)
}

// DeletedMessage is shown after a task is removed.
func DeletedMessage() string {
	return "Task deleted"
}

// ReminderMessage nudges the admin about a stale pending task.
func ReminderMessage(title, clientName string) string {
	return fmt.Sprintf("Reminder: \"%s\" from %s needs attention", title, clientName)
}

// WelcomeMessage greets a user when a session opens.
func WelcomeMessage(displayName string, newAccount bool) string {
	if newAccount {
		return fmt.Sprintf("Welcome %s! Your account has been created.", displayName)
	}
	return fmt.Sprintf("Welcome back, %s!", displayName)
}
