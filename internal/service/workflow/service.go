// Package workflow implements the task lifecycle: client submissions with
// attachments, the admin/client review loop, deletion and the admin summary.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/clientflow/internal/attachment"
	"github.com/phrazzld/clientflow/internal/domain"
	"github.com/phrazzld/clientflow/internal/events"
	"github.com/phrazzld/clientflow/internal/metrics"
	"github.com/phrazzld/clientflow/internal/platform/logger"
	"github.com/phrazzld/clientflow/internal/store"
	"golang.org/x/sync/errgroup"
)

// CompletedWindow is how far back the summary counts completed tasks.
const CompletedWindow = 30 * 24 * time.Hour

const uploadConcurrency = 4

// ClientCounter counts accounts by role.
type ClientCounter interface {
	CountByRole(ctx context.Context, role domain.Role) (int, error)
}

// CreateRequest is a client submission. Attachments must already have passed
// staging.
type CreateRequest struct {
	Title       string
	Description string
	Images      []attachment.Staged
	Videos      []attachment.Staged
}

// Summary is the admin dashboard.
type Summary struct {
	Pending         int `json:"pending"`
	PendingReview   int `json:"pending_review"`
	CompletedRecent int `json:"completed_recent"`
	TotalClients    int `json:"total_clients"`
}

// Service runs workflow operations against the task store.
type Service struct {
	tasks    store.TaskStore
	users    ClientCounter
	blobs    store.BlobStore
	emitter  events.EventEmitter
	logger   *slog.Logger
	timeFunc func() time.Time
}

// NewService creates a workflow service.
func NewService(
	tasks store.TaskStore,
	users ClientCounter,
	blobs store.BlobStore,
	emitter events.EventEmitter,
	logger *slog.Logger,
) (*Service, error) {
	if tasks == nil {
		return nil, errors.New("tasks cannot be nil")
	}
	if users == nil {
		return nil, errors.New("users cannot be nil")
	}
	if blobs == nil {
		return nil, errors.New("blobs cannot be nil")
	}
	if emitter == nil {
		return nil, errors.New("emitter cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		tasks:    tasks,
		users:    users,
		blobs:    blobs,
		emitter:  emitter,
		logger:   logger.With(slog.String("component", "workflow_service")),
		timeFunc: time.Now,
	}, nil
}

// WithTimeFunc replaces the clock. Intended for tests.
func (s *Service) WithTimeFunc(fn func() time.Time) *Service {
	s.timeFunc = fn
	return s
}

// stores keep microseconds
func (s *Service) now() time.Time {
	return s.timeFunc().UTC().Truncate(time.Microsecond)
}

// Create submits a new task for actor. Attachments are uploaded first, in
// parallel, and the record is written only once all of them succeeded.
func (s *Service) Create(ctx context.Context, actor *domain.User, req CreateRequest) (task *domain.Task, err error) {
	defer func() { record(OpCreate, err) }()
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := Authorize(actor, nil, OpCreate); err != nil {
		return nil, err
	}

	now := s.now()
	task, err = domain.NewTask(actor.ID, actor.DisplayName, actor.Company, req.Title, req.Description, now)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	images, videos, uploaded, err := s.upload(ctx, task.ID, req.Images, req.Videos)
	metrics.AttachmentUploadDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		s.cleanup(ctx, uploaded)
		log.Warn("task submission aborted",
			slog.String("error", err.Error()),
			slog.String("client_id", actor.ID.String()))
		return nil, err
	}
	task.Images = images
	task.Videos = videos

	if err := s.tasks.Create(ctx, task); err != nil {
		s.cleanup(ctx, uploaded)
		return nil, NewWorkflowError(string(OpCreate), "failed to save task", err)
	}

	s.emit(ctx, events.KindTaskSubmitted, task, domain.SubmittedMessage(task.Title), now)
	return task, nil
}

type uploadJob struct {
	staged attachment.Staged
	path   string
	dest   *domain.MediaRef
}

// upload writes every attachment and returns the refs in input order plus the
// paths that were written, for cleanup.
func (s *Service) upload(
	ctx context.Context,
	taskID uuid.UUID,
	images, videos []attachment.Staged,
) ([]domain.MediaRef, []domain.MediaRef, []string, error) {
	imageRefs := make([]domain.MediaRef, len(images))
	videoRefs := make([]domain.MediaRef, len(videos))

	jobs := make([]uploadJob, 0, len(images)+len(videos))
	for i, f := range images {
		jobs = append(jobs, uploadJob{staged: f, path: blobPath(taskID, "images", i, f.Name), dest: &imageRefs[i]})
	}
	for i, f := range videos {
		jobs = append(jobs, uploadJob{staged: f, path: blobPath(taskID, "videos", i, f.Name), dest: &videoRefs[i]})
	}

	var (
		mu      sync.Mutex
		written []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uploadConcurrency)
	for _, job := range jobs {
		g.Go(func() error {
			url, err := s.blobs.Put(gctx, job.path, job.staged.ContentType, bytesReader(job.staged.Data))
			if err != nil {
				return &SubmissionError{File: job.staged.Name, Err: err}
			}
			mu.Lock()
			written = append(written, job.path)
			mu.Unlock()
			*job.dest = domain.MediaRef{URL: url, Name: job.staged.Name}
			return nil
		})
	}
	err := g.Wait()
	return imageRefs, videoRefs, written, err
}

func (s *Service) cleanup(ctx context.Context, paths []string) {
	ctx = context.WithoutCancel(ctx)
	for _, p := range paths {
		if err := s.blobs.Delete(ctx, p); err != nil {
			s.logger.Warn("failed to remove orphaned attachment",
				slog.String("error", err.Error()),
				slog.String("path", p))
		}
	}
}

// SubmitForReview hands a pending task back to its client.
func (s *Service) SubmitForReview(ctx context.Context, actor *domain.User, id uuid.UUID) (*domain.Task, error) {
	return s.transition(ctx, actor, id, OpSubmitForReview, (*domain.Task).SubmitForReview,
		events.KindTaskSubmittedForReview,
		func(t *domain.Task) string { return domain.SubmittedForReviewMessage(t.Title, t.ClientName) })
}

// Approve completes a task under review.
func (s *Service) Approve(ctx context.Context, actor *domain.User, id uuid.UUID) (*domain.Task, error) {
	return s.transition(ctx, actor, id, OpApprove, (*domain.Task).Approve,
		events.KindTaskApproved,
		func(t *domain.Task) string { return domain.ApprovedMessage(t.Title) })
}

// RequestChanges sends a task under review back to pending.
func (s *Service) RequestChanges(ctx context.Context, actor *domain.User, id uuid.UUID) (*domain.Task, error) {
	return s.transition(ctx, actor, id, OpRequestChanges, (*domain.Task).RequestChanges,
		events.KindTaskChangesRequested,
		func(t *domain.Task) string { return domain.ChangesRequestedMessage(t.Title) })
}

func (s *Service) transition(
	ctx context.Context,
	actor *domain.User,
	id uuid.UUID,
	op Operation,
	apply func(*domain.Task, time.Time) error,
	kind events.Kind,
	message func(*domain.Task) string,
) (task *domain.Task, err error) {
	defer func() { record(op, err) }()

	task, err = s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, NewWorkflowError(string(op), "failed to load task", err)
	}
	if err := Authorize(actor, task, op); err != nil {
		return nil, err
	}

	now := s.now()
	from := task.Status
	if err := apply(task, now); err != nil {
		return nil, err
	}
	if err := s.tasks.UpdateStatus(ctx, task, from); err != nil {
		return nil, NewWorkflowError(string(op), "failed to update task", err)
	}

	s.emit(ctx, kind, task, message(task), now)
	return task, nil
}

// Delete removes a task in any status.
func (s *Service) Delete(ctx context.Context, actor *domain.User, id uuid.UUID) (err error) {
	defer func() { record(OpDelete, err) }()

	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return NewWorkflowError(string(OpDelete), "failed to load task", err)
	}
	if err := Authorize(actor, task, OpDelete); err != nil {
		return err
	}
	if err := s.tasks.Delete(ctx, id); err != nil {
		return NewWorkflowError(string(OpDelete), "failed to delete task", err)
	}

	s.emit(ctx, events.KindTaskDeleted, task, domain.DeletedMessage(), s.now())
	return nil
}

// Get returns a task actor may see.
func (s *Service) Get(ctx context.Context, actor *domain.User, id uuid.UUID) (*domain.Task, error) {
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, NewWorkflowError("get", "failed to load task", err)
	}
	if err := Authorize(actor, task, OpView); err != nil {
		return nil, err
	}
	return task, nil
}

// List returns the tasks actor may see, newest first. Clients only get their
// own.
func (s *Service) List(ctx context.Context, actor *domain.User, statuses ...domain.TaskStatus) ([]*domain.Task, error) {
	if actor == nil {
		return nil, ErrForbidden
	}
	tasks, err := s.tasks.List(ctx, VisibleFilter(actor, statuses...))
	if err != nil {
		return nil, NewWorkflowError("list", "failed to list tasks", err)
	}
	return tasks, nil
}

// VisibleFilter is the store filter for the tasks user may see.
func VisibleFilter(user *domain.User, statuses ...domain.TaskStatus) store.TaskFilter {
	filter := store.TaskFilter{Statuses: statuses}
	if !user.IsAdmin() {
		id := user.ID
		filter.ClientID = &id
	}
	return filter
}

// Summary counts pending and in-review tasks, tasks completed in the last
// CompletedWindow and client accounts.
func (s *Service) Summary(ctx context.Context, actor *domain.User) (*Summary, error) {
	if err := Authorize(actor, nil, OpSummary); err != nil {
		return nil, err
	}

	tasks, err := s.tasks.List(ctx, store.TaskFilter{})
	if err != nil {
		return nil, NewWorkflowError(string(OpSummary), "failed to list tasks", err)
	}
	clients, err := s.users.CountByRole(ctx, domain.RoleClient)
	if err != nil {
		return nil, NewWorkflowError(string(OpSummary), "failed to count clients", err)
	}

	now := s.now()
	sum := &Summary{TotalClients: clients}
	for _, t := range tasks {
		switch {
		case t.Status == domain.TaskStatusPending:
			sum.Pending++
		case t.Status == domain.TaskStatusPendingReview:
			sum.PendingReview++
		case t.CompletedWithin(now, CompletedWindow):
			sum.CompletedRecent++
		}
	}
	return sum, nil
}

func (s *Service) emit(ctx context.Context, kind events.Kind, task *domain.Task, message string, now time.Time) {
	event := events.NewTaskEvent(kind, task, message, now)
	if err := s.emitter.EmitEvent(ctx, event); err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Warn("failed to deliver workflow event",
			slog.String("error", err.Error()),
			slog.String("event_kind", string(kind)),
			slog.String("task_id", task.ID.String()))
	}
}

func record(op Operation, err error) {
	metrics.TransitionsTotal.WithLabelValues(string(op), metrics.Result(err)).Inc()
}

func blobPath(taskID uuid.UUID, dir string, index int, name string) string {
	return fmt.Sprintf("tasks/%s/%s/%02d-%s", taskID, dir, index, safeName(name))
}
