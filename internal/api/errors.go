package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/clientflow/internal/api/shared"
	"github.com/phrazzld/clientflow/internal/domain"
	"github.com/phrazzld/clientflow/internal/service/auth"
	"github.com/phrazzld/clientflow/internal/service/workflow"
	"github.com/phrazzld/clientflow/internal/session"
	"github.com/phrazzld/clientflow/internal/store"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes. It is the
// only place that decides what an error means to a client.
func MapErrorToStatusCode(err error) int {
	var (
		authErr       *auth.AuthError
		submissionErr *workflow.SubmissionError
		fieldErrs     validator.ValidationErrors
	)

	switch {
	case errors.Is(err, auth.ErrEmailInUse):
		return http.StatusConflict

	case errors.As(err, &authErr),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken):
		return http.StatusUnauthorized

	case errors.Is(err, workflow.ErrForbidden),
		errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden

	case errors.Is(err, workflow.ErrTaskNotFound),
		errors.Is(err, store.ErrTaskNotFound),
		errors.Is(err, store.ErrUserNotFound):
		return http.StatusNotFound

	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, store.ErrStatusConflict),
		errors.Is(err, store.ErrEmailExists):
		return http.StatusConflict

	case errors.Is(err, domain.ErrValidation),
		errors.As(err, &fieldErrs),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	case errors.As(err, &submissionErr):
		return http.StatusBadGateway

	case errors.Is(err, session.ErrShuttingDown):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a user-facing message for err that leaks no
// internal detail.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var (
		authErr       *auth.AuthError
		validationErr *domain.ValidationError
		submissionErr *workflow.SubmissionError
		fieldErrs     validator.ValidationErrors
	)

	switch {
	case errors.As(err, &authErr):
		return authErr.Message

	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"

	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken):
		return "Invalid token"

	case errors.Is(err, workflow.ErrForbidden),
		errors.Is(err, domain.ErrUnauthorized):
		return "You do not have access to this task"

	case errors.Is(err, workflow.ErrTaskNotFound),
		errors.Is(err, store.ErrTaskNotFound):
		return "Task not found"

	case errors.Is(err, store.ErrUserNotFound):
		return "User not found"

	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, store.ErrStatusConflict):
		return "Task is not in a state that allows this action"

	case errors.As(err, &validationErr):
		return validationErr.Error()

	case errors.As(err, &fieldErrs):
		return SanitizeValidationError(fieldErrs)

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity):
		return "Invalid request data"

	case errors.As(err, &submissionErr):
		return fmt.Sprintf("Failed to upload %s, the task was not submitted", submissionErr.File)

	case errors.Is(err, session.ErrShuttingDown):
		return "Server is shutting down, try again shortly"

	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError turns validator field errors into a short message
// naming the first bad field.
func SanitizeValidationError(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "Validation error"
	}
	fe := fieldErrs[0]
	return fmt.Sprintf("Invalid %s: %s", strings.ToLower(fe.Field()), getValidationTagMessage(fe.Tag()))
}

func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "email":
		return "invalid email format"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}

// HandleAPIError writes the mapped status and safe message for err. When the
// mapping gives nothing better than the generic message, defaultMsg is used.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, defaultMsg string) {
	status := MapErrorToStatusCode(err)
	msg := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && defaultMsg != "" {
		msg = defaultMsg
	}

	var opts []shared.ResponseOption
	if errors.Is(err, auth.ErrInvalidCredentials) {
		opts = append(opts, shared.WithElevatedLogLevel())
	}
	shared.RespondWithErrorAndLog(w, r, status, msg, err, opts...)
}
