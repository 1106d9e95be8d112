package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/phrazzld/clientflow/internal/domain"
	"github.com/phrazzld/clientflow/internal/platform/logger"
	"github.com/phrazzld/clientflow/internal/store"
)

// taskRow is the column layout of the tasks table.
type taskRow struct {
	ID                 string        `db:"id"`
	Title              string        `db:"title"`
	Description        string        `db:"description"`
	Images             string        `db:"images"`
	Videos             string        `db:"videos"`
	Status             string        `db:"status"`
	ClientID           string        `db:"client_id"`
	ClientName         string        `db:"client_name"`
	ClientCompany      string        `db:"client_company"`
	CreatedAt          int64         `db:"created_at"`
	UpdatedAt          int64         `db:"updated_at"`
	LastReminder       int64         `db:"last_reminder"`
	SubmittedForReview sql.NullInt64 `db:"submitted_for_review"`
	CompletedAt        sql.NullInt64 `db:"completed_at"`
}

// TaskStore implements store.TaskStore on SQLite.
type TaskStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewTaskStore creates a TaskStore on db. If logger is nil, slog.Default is used.
func NewTaskStore(db *sqlx.DB, logger *slog.Logger) *TaskStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

var _ store.TaskStore = (*TaskStore)(nil)

// Create implements store.TaskStore.Create
func (s *TaskStore) Create(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		return err
	}

	row, err := toTaskRow(task)
	if err != nil {
		return store.NewStoreError("task", "create", "failed to encode task", err)
	}

	const query = `
		INSERT INTO tasks (
			id, title, description, images, videos, status,
			client_id, client_name, client_company,
			created_at, updated_at, last_reminder, submitted_for_review, completed_at
		) VALUES (
			:id, :title, :description, :images, :videos, :status,
			:client_id, :client_name, :client_company,
			:created_at, :updated_at, :last_reminder, :submitted_for_review, :completed_at
		)`
	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		log.Error("failed to create task",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return store.NewStoreError("task", "create", "failed to insert task", mapError(err))
	}

	log.Info("task created successfully",
		slog.String("task_id", task.ID.String()),
		slog.String("client_id", task.ClientID.String()))
	return nil
}

// GetByID implements store.TaskStore.GetByID
func (s *TaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	var row taskRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM tasks WHERE id = ?`, id.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		return nil, store.NewStoreError("task", "get", "failed to query task", err)
	}
	return row.toDomain()
}

// List implements store.TaskStore.List
func (s *TaskStore) List(ctx context.Context, filter store.TaskFilter) ([]*domain.Task, error) {
	var (
		where []string
		args  []any
	)
	if filter.ClientID != nil {
		where = append(where, "client_id = ?")
		args = append(args, filter.ClientID.String())
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		in, inArgs, err := sqlx.In("status IN (?)", statuses)
		if err != nil {
			return nil, store.NewStoreError("task", "list", "failed to build filter", err)
		}
		where = append(where, in)
		args = append(args, inArgs...)
	}

	query := `SELECT * FROM tasks`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id`

	var rows []taskRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, store.NewStoreError("task", "list", "failed to query tasks", err)
	}

	tasks := make([]*domain.Task, 0, len(rows))
	for i := range rows {
		task, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// UpdateStatus implements store.TaskStore.UpdateStatus. last_reminder only
// moves forward, so a sweep that landed after task was read is kept.
func (s *TaskStore) UpdateStatus(ctx context.Context, task *domain.Task, from domain.TaskStatus) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	const query = `
		UPDATE tasks
		SET status = ?, updated_at = ?, last_reminder = MAX(last_reminder, ?),
			submitted_for_review = ?, completed_at = ?
		WHERE id = ? AND status = ?`
	result, err := s.db.ExecContext(ctx, query,
		string(task.Status),
		task.UpdatedAt.UnixMicro(),
		task.LastReminder.UnixMicro(),
		nullMicros(task.SubmittedForReview),
		nullMicros(task.CompletedAt),
		task.ID.String(),
		string(from),
	)
	if err != nil {
		return store.NewStoreError("task", "update", "failed to update status", mapError(err))
	}

	n, err := result.RowsAffected()
	if err != nil {
		return store.NewStoreError("task", "update", "failed to get rows affected", err)
	}
	if n == 0 {
		if _, err := s.GetByID(ctx, task.ID); err != nil {
			return err
		}
		log.Warn("task status changed concurrently",
			slog.String("task_id", task.ID.String()),
			slog.String("expected_status", string(from)))
		return store.ErrStatusConflict
	}

	log.Info("task status updated",
		slog.String("task_id", task.ID.String()),
		slog.String("from", string(from)),
		slog.String("to", string(task.Status)))
	return nil
}

// TouchReminder implements store.TaskStore.TouchReminder
func (s *TaskStore) TouchReminder(ctx context.Context, id uuid.UUID, prev, now time.Time) (bool, error) {
	if !now.After(prev) {
		return false, nil
	}
	const query = `
		UPDATE tasks SET last_reminder = ?
		WHERE id = ? AND status = ? AND last_reminder = ?`
	result, err := s.db.ExecContext(ctx, query,
		now.UnixMicro(), id.String(), string(domain.TaskStatusPending), prev.UnixMicro())
	if err != nil {
		return false, store.NewStoreError("task", "touch_reminder", "failed to update reminder", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, store.NewStoreError("task", "touch_reminder", "failed to get rows affected", err)
	}
	return n == 1, nil
}

// Delete implements store.TaskStore.Delete
func (s *TaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id.String())
	if err != nil {
		return store.NewStoreError("task", "delete", "failed to delete task", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return store.NewStoreError("task", "delete", "failed to get rows affected", err)
	}
	if n == 0 {
		return store.ErrTaskNotFound
	}
	logger.FromContextOrDefault(ctx, s.logger).Info("task deleted", slog.String("task_id", id.String()))
	return nil
}

func toTaskRow(t *domain.Task) (*taskRow, error) {
	images, err := json.Marshal(nonNilMedia(t.Images))
	if err != nil {
		return nil, fmt.Errorf("marshaling images: %w", err)
	}
	videos, err := json.Marshal(nonNilMedia(t.Videos))
	if err != nil {
		return nil, fmt.Errorf("marshaling videos: %w", err)
	}
	return &taskRow{
		ID:                 t.ID.String(),
		Title:              t.Title,
		Description:        t.Description,
		Images:             string(images),
		Videos:             string(videos),
		Status:             string(t.Status),
		ClientID:           t.ClientID.String(),
		ClientName:         t.ClientName,
		ClientCompany:      t.ClientCompany,
		CreatedAt:          t.CreatedAt.UnixMicro(),
		UpdatedAt:          t.UpdatedAt.UnixMicro(),
		LastReminder:       t.LastReminder.UnixMicro(),
		SubmittedForReview: nullMicros(t.SubmittedForReview),
		CompletedAt:        nullMicros(t.CompletedAt),
	}, nil
}

func (r *taskRow) toDomain() (*domain.Task, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("parsing task id %q: %w", r.ID, err)
	}
	clientID, err := uuid.Parse(r.ClientID)
	if err != nil {
		return nil, fmt.Errorf("parsing client id %q: %w", r.ClientID, err)
	}

	t := &domain.Task{
		ID:            id,
		Title:         r.Title,
		Description:   r.Description,
		Status:        domain.TaskStatus(r.Status),
		ClientID:      clientID,
		ClientName:    r.ClientName,
		ClientCompany: r.ClientCompany,
		CreatedAt:     fromMicros(r.CreatedAt),
		UpdatedAt:     fromMicros(r.UpdatedAt),
		LastReminder:  fromMicros(r.LastReminder),
	}
	if r.SubmittedForReview.Valid {
		ts := fromMicros(r.SubmittedForReview.Int64)
		t.SubmittedForReview = &ts
	}
	if r.CompletedAt.Valid {
		ts := fromMicros(r.CompletedAt.Int64)
		t.CompletedAt = &ts
	}
	if err := json.Unmarshal([]byte(r.Images), &t.Images); err != nil {
		return nil, fmt.Errorf("unmarshaling images for task %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.Videos), &t.Videos); err != nil {
		return nil, fmt.Errorf("unmarshaling videos for task %s: %w", r.ID, err)
	}
	return t, nil
}

func nonNilMedia(m []domain.MediaRef) []domain.MediaRef {
	if m == nil {
		return []domain.MediaRef{}
	}
	return m
}

func nullMicros(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMicro(), Valid: true}
}

func fromMicros(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}
