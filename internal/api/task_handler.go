package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/clientflow/internal/api/shared"
	"github.com/phrazzld/clientflow/internal/attachment"
	"github.com/phrazzld/clientflow/internal/domain"
	"github.com/phrazzld/clientflow/internal/platform/logger"
	"github.com/phrazzld/clientflow/internal/service/workflow"
	"github.com/phrazzld/clientflow/internal/session"
)

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temp files.
const multipartMemory = 32 << 20

// multipart fields that carry attachments
var uploadFields = []string{"images", "videos", "files"}

// TaskService is the workflow surface used by the HTTP layer.
type TaskService interface {
	Create(ctx context.Context, actor *domain.User, req workflow.CreateRequest) (*domain.Task, error)
	SubmitForReview(ctx context.Context, actor *domain.User, id uuid.UUID) (*domain.Task, error)
	Approve(ctx context.Context, actor *domain.User, id uuid.UUID) (*domain.Task, error)
	RequestChanges(ctx context.Context, actor *domain.User, id uuid.UUID) (*domain.Task, error)
	Delete(ctx context.Context, actor *domain.User, id uuid.UUID) error
	Get(ctx context.Context, actor *domain.User, id uuid.UUID) (*domain.Task, error)
	List(ctx context.Context, actor *domain.User, statuses ...domain.TaskStatus) ([]*domain.Task, error)
	Summary(ctx context.Context, actor *domain.User) (*workflow.Summary, error)
}

// TaskHandler serves task endpoints and the per-session attachment staging
// area that feeds task submission.
type TaskHandler struct {
	tasks     TaskService
	limits    attachment.Limits
	previewer attachment.Previewer
	logger    *slog.Logger

	mu      sync.Mutex
	staging map[string]*attachment.Staging
}

// NewTaskHandler creates a TaskHandler.
func NewTaskHandler(
	tasks TaskService,
	limits attachment.Limits,
	previewer attachment.Previewer,
	logger *slog.Logger,
) *TaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskHandler{
		tasks:     tasks,
		limits:    limits,
		previewer: previewer,
		logger:    logger.With(slog.String("component", "task_handler")),
		staging:   make(map[string]*attachment.Staging),
	}
}

// HandleSessionChange drops the staging area of closed sessions. Register it
// with session.Manager.OnSessionChange.
func (h *TaskHandler) HandleSessionChange(c session.Change) {
	if c.Kind != session.Closed {
		return
	}
	h.mu.Lock()
	delete(h.staging, c.SessionID)
	h.mu.Unlock()
}

func (h *TaskHandler) stagingFor(s *session.Session) *attachment.Staging {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.staging[s.ID]
	if !ok {
		st = attachment.NewStaging(h.limits, h.previewer)
		h.staging[s.ID] = st
	}
	return st
}

// ListTasks handles GET /tasks. Clients see their own tasks, the admin sees
// all of them. Repeated ?status= values narrow the listing.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	statuses, err := parseStatuses(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	tasks, err := h.tasks.List(r.Context(), s.User, statuses...)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list tasks")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, TaskListResponse{Tasks: tasks})
}

// GetTask handles GET /tasks/{id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	s, id, ok := sessionAndTaskID(w, r)
	if !ok {
		return
	}
	task, err := h.tasks.Get(r.Context(), s.User, id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load task")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, task)
}

// CreateTask handles POST /tasks. The multipart body carries title and
// description plus optional files, which are submitted together with whatever
// is already staged. Inline files never enter the staging area, so a rejected
// submission can be retried as is. On success the staging area is emptied.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	files, err := h.readMultipart(w, r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	staging := h.stagingFor(s)
	submission := staging.Clone()
	if len(files) > 0 {
		if err := submission.Add(files...); err != nil {
			HandleAPIError(w, r, err, "")
			return
		}
	}

	task, err := h.tasks.Create(r.Context(), s.User, workflow.CreateRequest{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Images:      submission.Images(),
		Videos:      submission.Videos(),
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to submit task")
		return
	}
	staging.Reset()

	log.Info("task submitted via API",
		slog.String("task_id", task.ID.String()),
		slog.Int("images", len(task.Images)),
		slog.Int("videos", len(task.Videos)))
	shared.RespondWithJSON(w, r, http.StatusCreated, task)
}

// SubmitForReview handles POST /tasks/{id}/submit-review.
func (h *TaskHandler) SubmitForReview(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.tasks.SubmitForReview, "Failed to submit task for review")
}

// Approve handles POST /tasks/{id}/approve.
func (h *TaskHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.tasks.Approve, "Failed to approve task")
}

// RequestChanges handles POST /tasks/{id}/request-changes.
func (h *TaskHandler) RequestChanges(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.tasks.RequestChanges, "Failed to request changes")
}

func (h *TaskHandler) transition(
	w http.ResponseWriter,
	r *http.Request,
	op func(context.Context, *domain.User, uuid.UUID) (*domain.Task, error),
	failMsg string,
) {
	s, id, ok := sessionAndTaskID(w, r)
	if !ok {
		return
	}
	task, err := op(r.Context(), s.User, id)
	if err != nil {
		HandleAPIError(w, r, err, failMsg)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, task)
}

// DeleteTask handles DELETE /tasks/{id}.
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	s, id, ok := sessionAndTaskID(w, r)
	if !ok {
		return
	}
	if err := h.tasks.Delete(r.Context(), s.User, id); err != nil {
		HandleAPIError(w, r, err, "Failed to delete task")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Summary handles GET /summary.
func (h *TaskHandler) Summary(w http.ResponseWriter, r *http.Request) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	summary, err := h.tasks.Summary(r.Context(), s.User)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load summary")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, summary)
}

// StageUploads handles POST /uploads. The selection is accepted or rejected
// as a whole.
func (h *TaskHandler) StageUploads(w http.ResponseWriter, r *http.Request) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	files, err := h.readMultipart(w, r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if len(files) == 0 {
		shared.RespondWithError(w, r, http.StatusBadRequest, "No files selected")
		return
	}

	staging := h.stagingFor(s)
	if err := staging.Add(files...); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	h.respondStaged(w, r, staging, http.StatusCreated)
}

// ListUploads handles GET /uploads.
func (h *TaskHandler) ListUploads(w http.ResponseWriter, r *http.Request) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	h.respondStaged(w, r, h.stagingFor(s), http.StatusOK)
}

// RemoveUpload handles DELETE /uploads/{kind}/{index}.
func (h *TaskHandler) RemoveUpload(w http.ResponseWriter, r *http.Request) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	kind := attachment.Kind(chi.URLParam(r, "kind"))
	if kind != attachment.KindImage && kind != attachment.KindVideo {
		HandleAPIError(w, r, domain.NewValidationError("kind", "must be image or video", domain.ErrValidation), "")
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		HandleAPIError(w, r, domain.NewValidationError("index", "must be a number", domain.ErrValidation), "")
		return
	}

	staging := h.stagingFor(s)
	if err := staging.Remove(kind, index); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	h.respondStaged(w, r, staging, http.StatusOK)
}

// ClearUploads handles DELETE /uploads.
func (h *TaskHandler) ClearUploads(w http.ResponseWriter, r *http.Request) {
	s, ok := requireSession(w, r)
	if !ok {
		return
	}
	h.stagingFor(s).Reset()
	w.WriteHeader(http.StatusNoContent)
}

func (h *TaskHandler) respondStaged(w http.ResponseWriter, r *http.Request, staging *attachment.Staging, status int) {
	shared.RespondWithJSON(w, r, status, StagedUploadsResponse{
		Images: staging.Images(),
		Videos: staging.Videos(),
		Limits: h.limits,
	})
}

// readMultipart parses a multipart body bounded by the staging limits and
// returns the files of every upload field.
func (h *TaskHandler) readMultipart(w http.ResponseWriter, r *http.Request) ([]attachment.File, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.limits.MaxUploadBytes()+shared.MaxJSONBodyBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, domain.NewValidationError("files", "upload is larger than the attachment limits allow", attachment.ErrFileTooLarge)
		}
		return nil, domain.NewValidationError("body", "must be multipart/form-data", domain.ErrValidation)
	}

	var files []attachment.File
	for _, field := range uploadFields {
		for _, fh := range r.MultipartForm.File[field] {
			data, err := readPart(fh)
			if err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", fh.Filename, err)
			}
			files = append(files, attachment.File{Name: fh.Filename, Data: data})
		}
	}
	return files, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}

func sessionAndTaskID(w http.ResponseWriter, r *http.Request) (*session.Session, uuid.UUID, bool) {
	s, ok := requireSession(w, r)
	if !ok {
		return nil, uuid.Nil, false
	}
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return nil, uuid.Nil, false
	}
	return s, id, true
}
