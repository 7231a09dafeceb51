package settings

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanstork/ssd/internal/models"
	"github.com/stanstork/ssd/internal/repository"
	"github.com/stanstork/ssd/internal/testutil"
)

func TestFromRows(t *testing.T) {
	s, err := FromRows([]models.Setting{
		{Name: "notify", Value: "1"},
		{Name: "alert_enabled", Value: "0"},
		{Name: "alert", Value: "Heads up"},
		{Name: "file_upload_size", Value: "2048"},
		{Name: "retired_setting", Value: "whatever"},
	})
	require.NoError(t, err)
	assert.True(t, s.Notify)
	assert.False(t, s.AlertEnabled)
	assert.Equal(t, "Heads up", s.Alert)
	assert.Equal(t, int64(2048), s.FileUploadSize)

	_, err = FromRows([]models.Setting{{Name: "file_upload_size", Value: "big"}})
	assert.Error(t, err)
}

func TestStoreReloadAndUpdate(t *testing.T) {
	db := testutil.NewDB(t)
	store := NewStore(repository.NewSettingRepository(db), zerolog.Nop())
	ctx := context.Background()

	assert.Equal(t, Settings{}, store.Current())

	require.NoError(t, store.Reload(ctx))
	current := store.Current()
	assert.True(t, current.Notify)
	assert.True(t, current.EscalationDisplay)
	assert.Equal(t, int64(1048576), current.FileUploadSize)
	assert.Equal(t, "Enter a description of the incident", current.InstrIncidentDescription)

	require.NoError(t, store.Update(ctx, map[string]string{
		"information_enabled": "1",
		"information_main":    "Planned upgrade on Friday",
	}))
	current = store.Current()
	assert.True(t, current.InformationEnabled)
	assert.Equal(t, "Planned upgrade on Friday", current.InformationMain)
}
