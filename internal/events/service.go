// Package events runs the incident and maintenance lifecycle: persist the
// aggregate, refresh the dashboard, then notify on a best-effort basis.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/stanstork/ssd/internal/models"
	"github.com/stanstork/ssd/internal/repository"
	"github.com/stanstork/ssd/internal/settings"
)

var (
	ErrNoRecipient           = errors.New("There is no recipient defined for this maintenance.  Please go back and add one.")
	ErrNotificationsDisabled = errors.New("Email functionality is disabled")
	ErrNotMaintenance        = errors.New("event is not a maintenance")
)

// Notifier sends event notices. notification.Service implements it.
type Notifier interface {
	Incident(ctx context.Context, eventID, recipientID int64, loc *time.Location, isNew bool) error
	Maintenance(ctx context.Context, eventID, recipientID int64, loc *time.Location, isNew bool) error
}

// Invalidator drops cached views after a write.
type Invalidator interface {
	Invalidate()
}

type SettingsSource interface {
	Current() settings.Settings
}

// NotifyStatus reports the outcome of the notification step separately from the write.
type NotifyStatus struct {
	Attempted bool
	Err       error
}

func (s NotifyStatus) OK() bool {
	return s.Err == nil
}

// Broadcast asks for a notice to RecipientID. Without Broadcast the recipient is not stored.
type Broadcast struct {
	Enabled     bool
	RecipientID *int64
}

func (b Broadcast) recipient() *int64 {
	if !b.Enabled {
		return nil
	}
	return b.RecipientID
}

type IncidentInput struct {
	Start       time.Time
	Description string
	ServiceIDs  []int64
	Author      string
	Broadcast   Broadcast
	Location    *time.Location
}

type IncidentUpdate struct {
	ID         int64
	UpdatedAt  time.Time
	Text       string
	ServiceIDs []int64
	Closed     bool
	Author     string
	Broadcast  Broadcast
	Location   *time.Location
}

type MaintenanceInput struct {
	Start       time.Time
	End         time.Time
	Description string
	Impact      string
	Coordinator string
	ServiceIDs  []int64
	Author      string
	Broadcast   Broadcast
	Location    *time.Location
}

type MaintenanceUpdate struct {
	ID        int64
	UpdatedAt time.Time
	Text      string
	Started   bool
	Completed bool
	MaintenanceInput
}

type Service struct {
	repo     repository.EventRepository
	notifier Notifier
	cache    Invalidator
	settings SettingsSource
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo repository.EventRepository, notifier Notifier, cache Invalidator, source SettingsSource, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		cache:    cache,
		settings: source,
		logger:   logger.With().Str("component", "events").Logger(),
		now:      time.Now,
	}
}

func (s *Service) CreateIncident(ctx context.Context, in IncidentInput) (int64, NotifyStatus, error) {
	id, err := s.repo.Create(ctx, repository.CreateEventParams{
		Type:        models.EventTypeIncident,
		Start:       in.Start,
		Description: in.Description,
		RecipientID: in.Broadcast.recipient(),
		Username:    in.Author,
		ServiceIDs:  in.ServiceIDs,
		CreatedAt:   s.now(),
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to create incident")
		return 0, NotifyStatus{}, err
	}
	s.cache.Invalidate()
	s.logger.Info().Int64("event_id", id).Str("user", in.Author).Msg("Incident created")

	return id, s.notify(ctx, models.EventTypeIncident, id, in.Broadcast, in.Location, true), nil
}

func (s *Service) UpdateIncident(ctx context.Context, in IncidentUpdate) (NotifyStatus, error) {
	err := s.repo.Update(ctx, repository.UpdateEventParams{
		ID:          in.ID,
		Type:        models.EventTypeIncident,
		UpdatedAt:   in.UpdatedAt,
		UpdateText:  in.Text,
		Author:      in.Author,
		RecipientID: in.Broadcast.recipient(),
		ServiceIDs:  in.ServiceIDs,
		Closed:      in.Closed,
	})
	if err != nil {
		s.logger.Error().Err(err).Int64("event_id", in.ID).Msg("Failed to update incident")
		return NotifyStatus{}, err
	}
	s.cache.Invalidate()
	s.logger.Info().Int64("event_id", in.ID).Bool("closed", in.Closed).Msg("Incident updated")

	return s.notify(ctx, models.EventTypeIncident, in.ID, in.Broadcast, in.Location, false), nil
}

func (s *Service) CreateMaintenance(ctx context.Context, in MaintenanceInput) (int64, NotifyStatus, error) {
	end := in.End
	id, err := s.repo.Create(ctx, repository.CreateEventParams{
		Type:        models.EventTypeMaintenance,
		Start:       in.Start,
		End:         &end,
		Description: in.Description,
		Impact:      in.Impact,
		Coordinator: in.Coordinator,
		RecipientID: in.Broadcast.recipient(),
		Username:    in.Author,
		ServiceIDs:  in.ServiceIDs,
		CreatedAt:   s.now(),
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to create maintenance")
		return 0, NotifyStatus{}, err
	}
	s.cache.Invalidate()
	s.logger.Info().Int64("event_id", id).Str("user", in.Author).Msg("Maintenance scheduled")

	return id, s.notify(ctx, models.EventTypeMaintenance, id, in.Broadcast, in.Location, true), nil
}

func (s *Service) UpdateMaintenance(ctx context.Context, in MaintenanceUpdate) (NotifyStatus, error) {
	err := s.repo.Update(ctx, repository.UpdateEventParams{
		ID:          in.ID,
		Type:        models.EventTypeMaintenance,
		UpdatedAt:   in.UpdatedAt,
		UpdateText:  in.Text,
		Author:      in.Author,
		RecipientID: in.Broadcast.recipient(),
		ServiceIDs:  in.ServiceIDs,
		Start:       in.Start,
		End:         in.End,
		Description: in.Description,
		Impact:      in.Impact,
		Coordinator: in.Coordinator,
		Started:     in.Started,
		Completed:   in.Completed,
	})
	if err != nil {
		s.logger.Error().Err(err).Int64("event_id", in.ID).Msg("Failed to update maintenance")
		return NotifyStatus{}, err
	}
	s.cache.Invalidate()
	s.logger.Info().
		Int64("event_id", in.ID).
		Bool("started", in.Started).
		Bool("completed", in.Completed).
		Msg("Maintenance updated")

	return s.notify(ctx, models.EventTypeMaintenance, in.ID, in.Broadcast, in.Location, false), nil
}

func (s *Service) Delete(ctx context.Context, id int64, eventType models.EventType) error {
	if err := s.repo.Delete(ctx, id, eventType); err != nil {
		return err
	}
	s.cache.Invalidate()
	s.logger.Info().Int64("event_id", id).Str("type", string(eventType)).Msg("Event deleted")
	return nil
}

func (s *Service) Get(ctx context.Context, id int64) (models.EventDetail, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) Search(ctx context.Context, search models.EventSearch) ([]models.EventSummary, error) {
	return s.repo.Search(ctx, search)
}

// EmailMaintenance resends the notice for an existing maintenance to its stored recipient.
func (s *Service) EmailMaintenance(ctx context.Context, id int64, loc *time.Location) error {
	detail, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if detail.Type != models.EventTypeMaintenance {
		return ErrNotMaintenance
	}
	if detail.Recipient == nil {
		return ErrNoRecipient
	}
	if !s.settings.Current().Notify {
		return ErrNotificationsDisabled
	}
	if err := s.notifier.Maintenance(ctx, id, detail.Recipient.ID, loc, false); err != nil {
		s.logger.Warn().Err(err).Int64("event_id", id).Msg("Maintenance email failed")
		return err
	}
	return nil
}

// notify sends the notice when a broadcast was requested and notifications are on.
// The write has already committed; failures only surface in the returned status.
func (s *Service) notify(ctx context.Context, eventType models.EventType, id int64, b Broadcast, loc *time.Location, isNew bool) NotifyStatus {
	if !b.Enabled || b.RecipientID == nil || !s.settings.Current().Notify {
		return NotifyStatus{}
	}
	if loc == nil {
		loc = time.UTC
	}

	var err error
	switch eventType {
	case models.EventTypeIncident:
		err = s.notifier.Incident(ctx, id, *b.RecipientID, loc, isNew)
	case models.EventTypeMaintenance:
		err = s.notifier.Maintenance(ctx, id, *b.RecipientID, loc, isNew)
	}
	if err != nil {
		s.logger.Warn().Err(err).Int64("event_id", id).Str("type", string(eventType)).Msg("Event notification failed")
	}
	return NotifyStatus{Attempted: true, Err: err}
}
