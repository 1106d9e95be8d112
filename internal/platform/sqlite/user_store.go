package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/phrazzld/clientflow/internal/domain"
	"github.com/phrazzld/clientflow/internal/platform/logger"
	"github.com/phrazzld/clientflow/internal/store"
)

type userRow struct {
	ID             string `db:"id"`
	Email          string `db:"email"`
	DisplayName    string `db:"display_name"`
	Role           string `db:"role"`
	AvatarURL      string `db:"avatar_url"`
	Company        string `db:"company"`
	HashedPassword string `db:"hashed_password"`
	CreatedAt      int64  `db:"created_at"`
	UpdatedAt      int64  `db:"updated_at"`
}

// UserStore implements store.UserStore on SQLite.
type UserStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewUserStore creates a UserStore on db. If logger is nil, slog.Default is used.
func NewUserStore(db *sqlx.DB, logger *slog.Logger) *UserStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserStore{
		db:     db,
		logger: logger.With(slog.String("component", "user_store")),
	}
}

var _ store.UserStore = (*UserStore)(nil)

// Create implements store.UserStore.Create
func (s *UserStore) Create(ctx context.Context, user *domain.User) error {
	if user.HashedPassword == "" {
		return store.NewStoreError("user", "create", "password must be hashed before storage", store.ErrInvalidEntity)
	}

	row := userRow{
		ID:             user.ID.String(),
		Email:          user.Email,
		DisplayName:    user.DisplayName,
		Role:           string(user.Role),
		AvatarURL:      user.AvatarURL,
		Company:        user.Company,
		HashedPassword: user.HashedPassword,
		CreatedAt:      user.CreatedAt.UnixMicro(),
		UpdatedAt:      user.UpdatedAt.UnixMicro(),
	}
	const query = `
		INSERT INTO users (id, email, display_name, role, avatar_url, company, hashed_password, created_at, updated_at)
		VALUES (:id, :email, :display_name, :role, :avatar_url, :company, :hashed_password, :created_at, :updated_at)`
	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		mapped := mapError(err)
		if errors.Is(mapped, store.ErrDuplicate) {
			return store.ErrEmailExists
		}
		return store.NewStoreError("user", "create", "failed to insert user", mapped)
	}

	logger.FromContextOrDefault(ctx, s.logger).Info("user created successfully",
		slog.String("user_id", user.ID.String()),
		slog.String("role", string(user.Role)))
	return nil
}

// GetByID implements store.UserStore.GetByID
func (s *UserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.getOne(ctx, `SELECT * FROM users WHERE id = ?`, id.String())
}

// GetByEmail implements store.UserStore.GetByEmail
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.getOne(ctx, `SELECT * FROM users WHERE email = ?`, email)
}

// CountByRole implements store.UserStore.CountByRole
func (s *UserStore) CountByRole(ctx context.Context, role domain.Role) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM users WHERE role = ?`, string(role)); err != nil {
		return 0, store.NewStoreError("user", "count", "failed to count users", err)
	}
	return n, nil
}

func (s *UserStore) getOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	var row userRow
	if err := s.db.GetContext(ctx, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrUserNotFound
		}
		return nil, store.NewStoreError("user", "get", "failed to query user", err)
	}

	id, err := uuid.Parse(row.ID)
	if err != nil {
		return nil, fmt.Errorf("parsing user id %q: %w", row.ID, err)
	}
	return &domain.User{
		ID:             id,
		Email:          row.Email,
		DisplayName:    row.DisplayName,
		Role:           domain.Role(row.Role),
		AvatarURL:      row.AvatarURL,
		Company:        row.Company,
		HashedPassword: row.HashedPassword,
		CreatedAt:      fromMicros(row.CreatedAt),
		UpdatedAt:      fromMicros(row.UpdatedAt),
	}, nil
}
