package events

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stanstork/ssd/internal/models"
	"github.com/stanstork/ssd/internal/repository"
	"github.com/stanstork/ssd/internal/settings"
	"github.com/stanstork/ssd/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentNotice struct {
	eventType   models.EventType
	eventID     int64
	recipientID int64
	isNew       bool
}

type fakeNotifier struct {
	sent []sentNotice
	err  error
}

func (f *fakeNotifier) Incident(_ context.Context, eventID, recipientID int64, _ *time.Location, isNew bool) error {
	f.sent = append(f.sent, sentNotice{models.EventTypeIncident, eventID, recipientID, isNew})
	return f.err
}

func (f *fakeNotifier) Maintenance(_ context.Context, eventID, recipientID int64, _ *time.Location, isNew bool) error {
	f.sent = append(f.sent, sentNotice{models.EventTypeMaintenance, eventID, recipientID, isNew})
	return f.err
}

type countingCache struct{ n int }

func (c *countingCache) Invalidate() { c.n++ }

type staticSettings settings.Settings

func (s staticSettings) Current() settings.Settings { return settings.Settings(s) }

type fixture struct {
	svc       *Service
	db        *sql.DB
	notifier  *fakeNotifier
	cache     *countingCache
	serviceID int64
	recipient int64
}

func newFixture(t *testing.T, notify bool) fixture {
	t.Helper()
	db := testutil.NewDB(t)
	ctx := context.Background()

	svc, err := repository.NewServiceRepository(db).Create(ctx, "API")
	require.NoError(t, err)
	rcpt, err := repository.NewRecipientRepository(db).Create(ctx, "ops@example.com")
	require.NoError(t, err)

	f := fixture{
		db:        db,
		notifier:  &fakeNotifier{},
		cache:     &countingCache{},
		serviceID: svc.ID,
		recipient: rcpt.ID,
	}
	f.svc = NewService(repository.NewEventRepository(db), f.notifier, f.cache, staticSettings{Notify: notify}, zerolog.Nop())
	f.svc.now = func() time.Time { return time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC) }
	return f
}

func (f fixture) broadcast() Broadcast {
	id := f.recipient
	return Broadcast{Enabled: true, RecipientID: &id}
}

func TestCreateIncidentNotifiesWhenBroadcasting(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	id, status, err := f.svc.CreateIncident(ctx, IncidentInput{
		Start:       time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC),
		Description: "API errors",
		ServiceIDs:  []int64{f.serviceID},
		Author:      "Jane Admin",
		Broadcast:   f.broadcast(),
	})
	require.NoError(t, err)
	assert.True(t, status.Attempted)
	assert.True(t, status.OK())
	assert.Equal(t, 1, f.cache.n)
	assert.Equal(t, []sentNotice{{models.EventTypeIncident, id, f.recipient, true}}, f.notifier.sent)

	detail, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Jane Admin", detail.User)
	require.NotNil(t, detail.Recipient)
	assert.Equal(t, f.recipient, detail.Recipient.ID)
}

func TestCreateIncidentWithoutBroadcastDropsRecipient(t *testing.T) {
	f := newFixture(t, true)
	id := f.recipient

	eventID, status, err := f.svc.CreateIncident(context.Background(), IncidentInput{
		Start:       time.Now(),
		Description: "Quiet",
		ServiceIDs:  []int64{f.serviceID},
		Broadcast:   Broadcast{RecipientID: &id},
	})
	require.NoError(t, err)
	assert.False(t, status.Attempted)
	assert.Empty(t, f.notifier.sent)

	detail, err := f.svc.Get(context.Background(), eventID)
	require.NoError(t, err)
	assert.Nil(t, detail.Recipient)
}

func TestNotificationsDisabledSkipsNotifier(t *testing.T) {
	f := newFixture(t, false)

	_, status, err := f.svc.CreateIncident(context.Background(), IncidentInput{
		Start:       time.Now(),
		Description: "API errors",
		ServiceIDs:  []int64{f.serviceID},
		Broadcast:   f.broadcast(),
	})
	require.NoError(t, err)
	assert.False(t, status.Attempted)
	assert.Empty(t, f.notifier.sent)
}

func TestNotifierFailureDoesNotUndoWrite(t *testing.T) {
	f := newFixture(t, true)
	f.notifier.err = errors.New("smtp down")

	id, status, err := f.svc.CreateIncident(context.Background(), IncidentInput{
		Start:       time.Now(),
		Description: "API errors",
		ServiceIDs:  []int64{f.serviceID},
		Broadcast:   f.broadcast(),
	})
	require.NoError(t, err)
	assert.True(t, status.Attempted)
	assert.False(t, status.OK())
	assert.EqualError(t, status.Err, "smtp down")

	_, err = f.svc.Get(context.Background(), id)
	require.NoError(t, err)
}

func TestFailedWriteLeavesCacheAlone(t *testing.T) {
	f := newFixture(t, true)

	_, _, err := f.svc.CreateIncident(context.Background(), IncidentInput{
		Start:       time.Now(),
		Description: "No services",
	})
	require.ErrorIs(t, err, repository.ErrNoServices)
	assert.Zero(t, f.cache.n)
}

func TestUpdateIncidentClosesAndNotifies(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	id, _, err := f.svc.CreateIncident(ctx, IncidentInput{
		Start:       time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC),
		Description: "API errors",
		ServiceIDs:  []int64{f.serviceID},
	})
	require.NoError(t, err)

	status, err := f.svc.UpdateIncident(ctx, IncidentUpdate{
		ID:         id,
		UpdatedAt:  time.Date(2024, 1, 10, 11, 0, 0, 0, time.UTC),
		Text:       "Fixed",
		ServiceIDs: []int64{f.serviceID},
		Closed:     true,
		Author:     "Jane Admin",
		Broadcast:  f.broadcast(),
	})
	require.NoError(t, err)
	assert.True(t, status.OK())
	assert.Equal(t, 2, f.cache.n)
	assert.Equal(t, []sentNotice{{models.EventTypeIncident, id, f.recipient, false}}, f.notifier.sent)

	detail, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, detail.Status)
	require.Len(t, detail.Updates, 1)
	assert.Equal(t, "Fixed", detail.Updates[0].Text)
}

func TestMaintenanceLifecycle(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	start := time.Date(2024, 2, 1, 22, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)

	in := MaintenanceInput{
		Start:       start,
		End:         end,
		Description: "DB upgrade",
		Impact:      "Read only",
		Coordinator: "Jane",
		ServiceIDs:  []int64{f.serviceID},
		Broadcast:   f.broadcast(),
	}
	id, status, err := f.svc.CreateMaintenance(ctx, in)
	require.NoError(t, err)
	assert.True(t, status.OK())

	_, err = f.svc.UpdateMaintenance(ctx, MaintenanceUpdate{
		ID:               id,
		UpdatedAt:        start,
		Text:             "Done early",
		Completed:        true,
		MaintenanceInput: in,
	})
	require.ErrorIs(t, err, repository.ErrCompletedNotStarted)

	_, err = f.svc.UpdateMaintenance(ctx, MaintenanceUpdate{
		ID:               id,
		UpdatedAt:        start,
		Text:             "Under way",
		Started:          true,
		MaintenanceInput: in,
	})
	require.NoError(t, err)

	detail, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusStarted, detail.Status)
	assert.Equal(t, "Read only", detail.Impact)
	require.NotNil(t, detail.End)
	assert.True(t, end.Equal(*detail.End))

	require.NoError(t, f.svc.Delete(ctx, id, models.EventTypeMaintenance))
	_, err = f.svc.Get(ctx, id)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestEmailMaintenance(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		f := newFixture(t, false)
		id, _, err := f.svc.CreateMaintenance(ctx, MaintenanceInput{
			Start:       time.Now(),
			End:         time.Now().Add(time.Hour),
			Description: "Patch",
			ServiceIDs:  []int64{f.serviceID},
			Broadcast:   f.broadcast(),
		})
		require.NoError(t, err)
		assert.ErrorIs(t, f.svc.EmailMaintenance(ctx, id, time.UTC), ErrNotificationsDisabled)
		assert.Empty(t, f.notifier.sent)
	})

	t.Run("no recipient", func(t *testing.T) {
		f := newFixture(t, true)
		id, _, err := f.svc.CreateMaintenance(ctx, MaintenanceInput{
			Start:       time.Now(),
			End:         time.Now().Add(time.Hour),
			Description: "Patch",
			ServiceIDs:  []int64{f.serviceID},
		})
		require.NoError(t, err)
		assert.ErrorIs(t, f.svc.EmailMaintenance(ctx, id, time.UTC), ErrNoRecipient)
	})

	t.Run("incident", func(t *testing.T) {
		f := newFixture(t, true)
		id, _, err := f.svc.CreateIncident(ctx, IncidentInput{
			Start:       time.Now(),
			Description: "Outage",
			ServiceIDs:  []int64{f.serviceID},
		})
		require.NoError(t, err)
		assert.ErrorIs(t, f.svc.EmailMaintenance(ctx, id, time.UTC), ErrNotMaintenance)
	})

	t.Run("sends", func(t *testing.T) {
		f := newFixture(t, true)
		id, _, err := f.svc.CreateMaintenance(ctx, MaintenanceInput{
			Start:       time.Now(),
			End:         time.Now().Add(time.Hour),
			Description: "Patch",
			ServiceIDs:  []int64{f.serviceID},
			Broadcast:   f.broadcast(),
		})
		require.NoError(t, err)
		f.notifier.sent = nil

		require.NoError(t, f.svc.EmailMaintenance(ctx, id, time.UTC))
		assert.Equal(t, []sentNotice{{models.EventTypeMaintenance, id, f.recipient, false}}, f.notifier.sent)
	})
}
