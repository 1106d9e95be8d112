package postgres_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/clientflow/internal/domain"
	"github.com/phrazzld/clientflow/internal/platform/postgres"
	"github.com/phrazzld/clientflow/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testDatabaseURLEnv names the database used by these tests. They are skipped
// when it is unset.
const testDatabaseURLEnv = "CLIENTFLOW_TEST_DATABASE_URL"

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	url := os.Getenv(testDatabaseURLEnv)
	if url == "" {
		t.Skipf("%s not set", testDatabaseURLEnv)
	}

	ctx := context.Background()
	db, err := postgres.Open(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, postgres.Migrate(ctx, db, "reset", nil))
	require.NoError(t, postgres.Migrate(ctx, db, "up", nil))
	return db
}

func createClient(t *testing.T, users *postgres.PostgresUserStore) *domain.User {
	t.Helper()
	user, err := domain.NewUser(uuid.NewString()+"@example.com", "password123", "Dana", domain.RoleClient)
	require.NoError(t, err)
	user.HashedPassword = "hashed"
	require.NoError(t, users.Create(context.Background(), user))
	return user
}

func TestPostgresStores(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	users := postgres.NewPostgresUserStore(db, nil)
	tasks := postgres.NewPostgresTaskStore(db, nil)

	client := createClient(t, users)
	now := time.Now().UTC().Truncate(time.Microsecond)

	task, err := domain.NewTask(client.ID, client.DisplayName, "", "Fix header", "Logo is blurry", now)
	require.NoError(t, err)
	task.Images = []domain.MediaRef{{URL: "https://cdn/1.png", Name: "1.png"}}
	require.NoError(t, tasks.Create(ctx, task))

	t.Run("get round trip", func(t *testing.T) {
		got, err := tasks.GetByID(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, task.Title, got.Title)
		assert.Equal(t, task.Images, got.Images)
		assert.Empty(t, got.Videos)
		assert.True(t, task.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("duplicate email", func(t *testing.T) {
		dup := *client
		dup.ID = uuid.New()
		assert.ErrorIs(t, users.Create(ctx, &dup), store.ErrEmailExists)
	})

	t.Run("conditional status update", func(t *testing.T) {
		require.NoError(t, task.SubmitForReview(now.Add(time.Minute)))
		require.NoError(t, tasks.UpdateStatus(ctx, task, domain.TaskStatusPending))

		err := tasks.UpdateStatus(ctx, task, domain.TaskStatusPending)
		assert.ErrorIs(t, err, store.ErrStatusConflict)
	})

	t.Run("status update keeps a newer reminder", func(t *testing.T) {
		other, err := domain.NewTask(client.ID, client.DisplayName, "", "Swap photo", "Use the new one", now)
		require.NoError(t, err)
		require.NoError(t, tasks.Create(ctx, other))
		t.Cleanup(func() { _ = tasks.Delete(ctx, other.ID) })

		swept := now.Add(5 * time.Hour)
		ok, err := tasks.TouchReminder(ctx, other.ID, other.LastReminder, swept)
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, other.SubmitForReview(swept.Add(time.Minute)))
		require.NoError(t, tasks.UpdateStatus(ctx, other, domain.TaskStatusPending))

		got, err := tasks.GetByID(ctx, other.ID)
		require.NoError(t, err)
		assert.True(t, swept.Equal(got.LastReminder), "got %s", got.LastReminder)
	})

	t.Run("count clients", func(t *testing.T) {
		n, err := users.CountByRole(ctx, domain.RoleClient)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, tasks.Delete(ctx, task.ID))
		assert.ErrorIs(t, tasks.Delete(ctx, task.ID), store.ErrTaskNotFound)
		_, err := tasks.GetByID(ctx, task.ID)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}
