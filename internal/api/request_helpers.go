package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/clientflow/internal/api/shared"
	"github.com/phrazzld/clientflow/internal/domain"
	"github.com/phrazzld/clientflow/internal/session"
)

// getPathUUID extracts and parses a UUID path parameter.
func getPathUUID(r *http.Request, paramName string) (uuid.UUID, error) {
	pathParam := chi.URLParam(r, paramName)
	if pathParam == "" {
		return uuid.Nil, domain.NewValidationError(paramName, "is required", domain.ErrValidation)
	}

	id, err := uuid.Parse(pathParam)
	if err != nil {
		return uuid.Nil, domain.NewValidationError(paramName, "has invalid format", domain.ErrInvalidID)
	}
	return id, nil
}

// requireSession returns the caller's session or writes 401.
func requireSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, ok := shared.SessionFrom(r.Context())
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Not signed in")
		return nil, false
	}
	return s, true
}

// parseStatuses reads repeated ?status= query values.
func parseStatuses(r *http.Request) ([]domain.TaskStatus, error) {
	raw := r.URL.Query()["status"]
	statuses := make([]domain.TaskStatus, 0, len(raw))
	for _, v := range raw {
		st := domain.TaskStatus(v)
		if !st.Valid() {
			return nil, domain.NewValidationError("status", "must be pending, pending_review or completed", domain.ErrInvalidTaskStatus)
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}
