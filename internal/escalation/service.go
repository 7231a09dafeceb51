// Package escalation manages the ordered list of escalation contacts.
package escalation

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/stanstork/ssd/internal/models"
	"github.com/stanstork/ssd/internal/repository"
)

// Contact list actions accepted by Modify.
const (
	ActionUp     = "up"
	ActionDown   = "down"
	ActionHide   = "hide"
	ActionShow   = "show"
	ActionDelete = "delete"
)

var ErrUnknownAction = errors.New("unknown contact action")

type Service struct {
	repo   repository.EscalationRepository
	logger zerolog.Logger
}

func NewService(repo repository.EscalationRepository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger.With().Str("component", "escalation").Logger()}
}

// Visible returns the contacts shown on the public escalation page.
func (s *Service) Visible(ctx context.Context) ([]models.Contact, error) {
	return s.repo.List(ctx, false)
}

func (s *Service) All(ctx context.Context) ([]models.Contact, error) {
	return s.repo.List(ctx, true)
}

// Add appends a hidden contact. Re-adding an existing name and details pair is a no-op.
func (s *Service) Add(ctx context.Context, name, details string) error {
	contact, err := s.repo.Create(ctx, name, details)
	if errors.Is(err, repository.ErrDuplicate) {
		s.logger.Debug().Str("name", name).Msg("Contact already present")
		return nil
	}
	if err != nil {
		return err
	}
	s.logger.Info().Int64("contact_id", contact.ID).Int("order", contact.Order).Msg("Contact added")
	return nil
}

func (s *Service) Modify(ctx context.Context, id int64, action string) error {
	var err error
	switch action {
	case ActionUp:
		err = s.repo.Move(ctx, id, repository.MoveUp)
	case ActionDown:
		err = s.repo.Move(ctx, id, repository.MoveDown)
	case ActionHide:
		err = s.repo.SetHidden(ctx, id, true)
	case ActionShow:
		err = s.repo.SetHidden(ctx, id, false)
	case ActionDelete:
		err = s.repo.Delete(ctx, id)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if err != nil {
		s.logger.Error().Err(err).Int64("contact_id", id).Str("action", action).Msg("Failed to modify contact")
		return err
	}
	s.logger.Info().Int64("contact_id", id).Str("action", action).Msg("Contact modified")
	return nil
}
