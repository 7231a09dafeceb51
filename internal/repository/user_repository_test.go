package repository_test

import (
	"context"
	"testing"

	"github.com/stanstork/ssd/internal/models"
	"github.com/stanstork/ssd/internal/repository"
	"github.com/stanstork/ssd/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepositoryAuthenticate(t *testing.T) {
	users := repository.NewUserRepository(testutil.NewDB(t))
	ctx := context.Background()

	created, err := users.CreateUser(ctx, "admin", "s3cret", "Ada", "Admin", models.RoleStaff)
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	_, err = users.CreateUser(ctx, "admin", "other", "", "", models.RoleStaff)
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	got, err := users.AuthenticateUser(ctx, "admin", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, models.RoleStaff, got.Role)
	assert.True(t, got.IsActive)

	_, err = users.AuthenticateUser(ctx, "admin", "wrong")
	assert.ErrorIs(t, err, repository.ErrInvalidCredentials)
	_, err = users.AuthenticateUser(ctx, "nobody", "s3cret")
	assert.ErrorIs(t, err, repository.ErrInvalidCredentials)

	require.NoError(t, users.SetPassword(ctx, "admin", "rotated"))
	_, err = users.AuthenticateUser(ctx, "admin", "rotated")
	assert.NoError(t, err)
}
