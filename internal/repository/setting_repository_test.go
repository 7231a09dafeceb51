package repository_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stanstork/ssd/internal/repository"
	"github.com/stanstork/ssd/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func settingValue(t *testing.T, repo repository.SettingRepository, name string) string {
	t.Helper()
	all, err := repo.List(context.Background(), "")
	require.NoError(t, err)
	for _, s := range all {
		if s.Name == name {
			return s.Value
		}
	}
	t.Fatalf("setting %s not seeded", name)
	return ""
}

func TestSettingRepositoryListByCategory(t *testing.T) {
	repo := repository.NewSettingRepository(testutil.NewDB(t))

	messages, err := repo.List(context.Background(), "messages")
	require.NoError(t, err)
	require.NotEmpty(t, messages)
	for _, s := range messages {
		assert.Equal(t, "messages", s.Category)
	}

	all, err := repo.List(context.Background(), "")
	require.NoError(t, err)
	assert.Greater(t, len(all), len(messages))
}

func TestSettingRepositoryUpdate(t *testing.T) {
	repo := repository.NewSettingRepository(testutil.NewDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Update(ctx, map[string]string{
		"alert_enabled": "1",
		"alert":         "Network maintenance tonight",
	}))
	assert.Equal(t, "1", settingValue(t, repo, "alert_enabled"))
	assert.Equal(t, "Network maintenance tonight", settingValue(t, repo, "alert"))

	err := repo.Update(ctx, map[string]string{"no_such_setting": "x"})
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
