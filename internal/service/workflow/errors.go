package workflow

import (
	"errors"
	"fmt"

	"github.com/phrazzld/clientflow/internal/domain"
	"github.com/phrazzld/clientflow/internal/store"
)

// Sentinel errors returned by the workflow service. The API maps them to
// 404 and 403.
var (
	ErrTaskNotFound = errors.New("task not found")
	ErrForbidden    = errors.New("operation not permitted")
)

// SubmissionError reports that a task could not be submitted because an
// attachment failed to upload. No task record exists afterwards.
type SubmissionError struct {
	File string
	Err  error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("failed to upload %s: %v", e.File, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// WorkflowError wraps unexpected failures with the operation that hit them.
type WorkflowError struct {
	Operation string
	Message   string
	Err       error
}

// Error implements the error interface for WorkflowError.
func (e *WorkflowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("workflow %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("workflow %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// NewWorkflowError creates a WorkflowError. Known conditions come back as
// their sentinel instead of being wrapped.
func NewWorkflowError(operation, message string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, store.ErrTaskNotFound):
		return ErrTaskNotFound
	case errors.Is(err, store.ErrStatusConflict):
		return domain.ErrInvalidTransition
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, ErrForbidden),
		errors.Is(err, ErrTaskNotFound):
		return err
	}

	return &WorkflowError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
