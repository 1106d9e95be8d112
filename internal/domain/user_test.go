package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUser(t *testing.T) {
	t.Run("valid client", func(t *testing.T) {
		user, err := NewUser(" Dana@Example.com ", "password123", "Dana", RoleClient)
		require.NoError(t, err)

		assert.NotEqual(t, uuid.Nil, user.ID)
		assert.Equal(t, "dana@example.com", user.Email)
		assert.Equal(t, "Dana", user.DisplayName)
		assert.Equal(t, RoleClient, user.Role)
		assert.False(t, user.IsAdmin())
		assert.False(t, user.CreatedAt.IsZero())
	})

	tests := []struct {
		name     string
		email    string
		password string
		display  string
		role     Role
		wantErr  error
	}{
		{"empty email", "", "password123", "Dana", RoleClient, ErrEmptyEmail},
		{"bad email", "not-an-email", "password123", "Dana", RoleClient, ErrInvalidEmail},
		{"short password", "a@b.co", "short", "Dana", RoleClient, ErrPasswordTooShort},
		{"long password", "a@b.co", strings.Repeat("x", 73), "Dana", RoleClient, ErrPasswordTooLong},
		{"no name", "a@b.co", "password123", " ", RoleClient, ErrEmptyDisplayName},
		{"unknown role", "a@b.co", "password123", "Dana", Role("owner"), ErrInvalidRole},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			user, err := NewUser(tc.email, tc.password, tc.display, tc.role)
			assert.Nil(t, user)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestUserValidateStoredUser(t *testing.T) {
	user := &User{ID: uuid.New(), Email: "a@b.co", DisplayName: "A", Role: RoleAdmin}
	assert.ErrorIs(t, user.Validate(), ErrEmptyPassword)

	user.HashedPassword = "$2a$10$hash"
	assert.NoError(t, user.Validate())
}

func TestUserCanView(t *testing.T) {
	admin := &User{ID: uuid.New(), Role: RoleAdmin}
	owner := &User{ID: uuid.New(), Role: RoleClient}
	other := &User{ID: uuid.New(), Role: RoleClient}
	task := &Task{ID: uuid.New(), ClientID: owner.ID}

	assert.True(t, admin.CanView(task))
	assert.True(t, owner.CanView(task))
	assert.False(t, other.CanView(task))
}

func TestMessages(t *testing.T) {
	assert.Equal(t, `New update request submitted: "Fix header"`, SubmittedMessage("Fix header"))
	assert.Equal(t, `Task "Fix header" submitted for Dana's review`, SubmittedForReviewMessage("Fix header", "Dana"))
	assert.Equal(t, `Task "Fix header" approved and completed!`, ApprovedMessage("Fix header"))
	assert.Equal(t, `Changes requested for "Fix header" - back to in progress`, ChangesRequestedMessage("Fix header"))
	assert.Equal(t, "Task deleted", DeletedMessage())
	assert.Equal(t, `Reminder: "Fix header" from Dana needs attention`, ReminderMessage("Fix header", "Dana"))
	assert.Equal(t, "Welcome Dana! Your account has been created.", WelcomeMessage("Dana", true))
	assert.Equal(t, "Welcome back, Dana!", WelcomeMessage("Dana", false))
}
