package postgres

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
	"github.com/phrazzld/clientflow/internal/domain"
	"github.com/phrazzld/clientflow/internal/platform/logger"
	"github.com/phrazzld/clientflow/internal/store"
)

const taskColumns = `id, title, description, images, videos, status, client_id, client_name,
	client_company, created_at, updated_at, last_reminder, submitted_for_review, completed_at`

// PostgresTaskStore implements store.TaskStore on a PostgreSQL table with
// JSONB attachment columns.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a task store. If logger is nil, slog.Default is used.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

// Ensure PostgresTaskStore implements store.TaskStore interface
var _ store.TaskStore = (*PostgresTaskStore)(nil)

// Create implements store.TaskStore.Create
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		log.Warn("task validation failed during create",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return err
	}

	images, videos, err := encodeMedia(task)
	if err != nil {
		return store.NewStoreError("task", "create", "failed to encode attachments", err)
	}

	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = s.db.ExecContext(ctx, query,
		task.ID,
		task.Title,
		task.Description,
		images,
		videos,
		string(task.Status),
		task.ClientID,
		task.ClientName,
		nullString(task.ClientCompany),
		task.CreatedAt,
		task.UpdatedAt,
		task.LastReminder,
		task.SubmittedForReview,
		task.CompletedAt,
	)
	if err != nil {
		log.Error("failed to create task",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()),
			slog.String("client_id", task.ClientID.String()))
		return store.NewStoreError("task", "create", "failed to insert task", MapError(err))
	}

	log.Info("task created successfully",
		slog.String("task_id", task.ID.String()),
		slog.String("client_id", task.ClientID.String()))
	return nil
}

// GetByID implements store.TaskStore.GetByID
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("task not found", slog.String("task_id", id.String()))
			return nil, store.ErrTaskNotFound
		}
		log.Error("failed to get task by ID",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return nil, store.NewStoreError("task", "get", "failed to query task", MapError(err))
	}
	return task, nil
}

// List implements store.TaskStore.List
func (s *PostgresTaskStore) List(ctx context.Context, filter store.TaskFilter) ([]*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var (
		where []string
		args  []any
	)
	if filter.ClientID != nil {
		args = append(args, *filter.ClientID)
		where = append(where, fmt.Sprintf("client_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			args = append(args, string(st))
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		where = append(where, "status IN ("+strings.Join(placeholders, ", ")+")")
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to list tasks", slog.String("error", err.Error()))
		return nil, store.NewStoreError("task", "list", "failed to query tasks", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	tasks := []*domain.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, store.NewStoreError("task", "list", "failed to scan task", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("task", "list", "failed to iterate tasks", err)
	}
	return tasks, nil
}

// UpdateStatus implements store.TaskStore.UpdateStatus. last_reminder only
// moves forward, so a sweep that landed after task was read is kept.
func (s *PostgresTaskStore) UpdateStatus(ctx context.Context, task *domain.Task, from domain.TaskStatus) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE tasks
		SET status = $1, updated_at = $2, last_reminder = GREATEST(last_reminder, $3),
			submitted_for_review = $4, completed_at = $5
		WHERE id = $6 AND status = $7
	`
	result, err := s.db.ExecContext(ctx, query,
		string(task.Status),
		task.UpdatedAt,
		task.LastReminder,
		task.SubmittedForReview,
		task.CompletedAt,
		task.ID,
		string(from),
	)
	if err != nil {
		log.Error("failed to update task status",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return store.NewStoreError("task", "update", "failed to update status", MapError(err))
	}

	if err := CheckRowsAffected(result, "task"); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return store.NewStoreError("task", "update", "failed to check result", err)
		}
		// distinguish a vanished row from a lost race
		if _, getErr := s.GetByID(ctx, task.ID); getErr != nil {
			return getErr
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
func (s *PostgresTaskStore) TouchReminder(ctx context.Context, id uuid.UUID, prev, now time.Time) (bool, error) {
	query := `
		UPDATE tasks
		SET last_reminder = $1
		WHERE id = $2 AND status = $3 AND last_reminder = $4 AND $1 > last_reminder
	`
	result, err := s.db.ExecContext(ctx, query, now, id, string(domain.TaskStatusPending), prev)
	if err != nil {
		return false, store.NewStoreError("task", "touch_reminder", "failed to update reminder", MapError(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, store.NewStoreError("task", "touch_reminder", "failed to get rows affected", err)
	}
	return n == 1, nil
}

// Delete implements store.TaskStore.Delete
func (s *PostgresTaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		log.Error("failed to delete task",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return store.NewStoreError("task", "delete", "failed to delete task", MapError(err))
	}
	if err := CheckRowsAffected(result, "task"); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.ErrTaskNotFound
		}
		return store.NewStoreError("task", "delete", "failed to check result", err)
	}

	log.Info("task deleted", slog.String("task_id", id.String()))
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		task           domain.Task
		images, videos []byte
		status         string
		company        sql.NullString
		submitted      sql.NullTime
		completed      sql.NullTime
	)
	err := row.Scan(
		&task.ID,
		&task.Title,
		&task.Description,
		&images,
		&videos,
		&status,
		&task.ClientID,
		&task.ClientName,
		&company,
		&task.CreatedAt,
		&task.UpdatedAt,
		&task.LastReminder,
		&submitted,
		&completed,
	)
	if err != nil {
		return nil, err
	}

	task.Status = domain.TaskStatus(status)
	task.ClientCompany = company.String
	if submitted.Valid {
		t := submitted.Time.UTC()
		task.SubmittedForReview = &t
	}
	if completed.Valid {
		t := completed.Time.UTC()
		task.CompletedAt = &t
	}
	task.CreatedAt = task.CreatedAt.UTC()
	task.UpdatedAt = task.UpdatedAt.UTC()
	task.LastReminder = task.LastReminder.UTC()

	if err := json.Unmarshal(images, &task.Images); err != nil {
		return nil, fmt.Errorf("failed to decode images: %w", err)
	}
	if err := json.Unmarshal(videos, &task.Videos); err != nil {
		return nil, fmt.Errorf("failed to decode videos: %w", err)
	}
	return &task, nil
}

func encodeMedia(task *domain.Task) (string, string, error) {
	images := task.Images
	if images == nil {
		images = []domain.MediaRef{}
	}
	videos := task.Videos
	if videos == nil {
		videos = []domain.MediaRef{}
	}
	ib, err := json.Marshal(images)
	if err != nil {
		return "", "", err
	}
	vb, err := json.Marshal(videos)
	if err != nil {
		return "", "", err
	}
	return string(ib), string(vb), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
