package workflow

import "github.com/phrazzld/clientflow/internal/domain"

// Operation names a workflow action for authorization and metrics.
type Operation string

const (
	OpCreate          Operation = "create"
	OpView            Operation = "view"
	OpSubmitForReview Operation = "submit_for_review"
	OpApprove         Operation = "approve"
	OpRequestChanges  Operation = "request_changes"
	OpDelete          Operation = "delete"
	OpSummary         Operation = "summary"
)

// Authorize decides whether actor may perform op on task. Task may be nil
// for operations that do not target one.
//
// Only clients create tasks and only the admin hands work back for review.
// Everything else on a task is open to the admin and the owning client.
func Authorize(actor *domain.User, task *domain.Task, op Operation) error {
	if actor == nil {
		return ErrForbidden
	}

	switch op {
	case OpCreate:
		if actor.Role != domain.RoleClient {
			return ErrForbidden
		}
		return nil
	case OpSummary, OpSubmitForReview:
		if !actor.IsAdmin() {
			return ErrForbidden
		}
		return nil
	case OpView, OpApprove, OpRequestChanges, OpDelete:
		if task == nil || !actor.CanView(task) {
			return ErrForbidden
		}
		return nil
	}
	return ErrForbidden
}
