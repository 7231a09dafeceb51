package notification

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/rs/zerolog"

	"github.com/stanstork/ssd/internal/models"
	"github.com/stanstork/ssd/internal/repository"
	"github.com/stanstork/ssd/internal/settings"
)

const (
	pageSubject  = "Incident Alert"
	displayTime  = "2006-01-02 15:04 MST"
	templateRoot = "templates/"
)

//go:embed templates/*.html templates/*.txt
var templateFS embed.FS

var (
	htmlTemplates = htmltemplate.Must(htmltemplate.ParseFS(templateFS, templateRoot+"*.html"))
	textTemplates = texttemplate.Must(texttemplate.ParseFS(templateFS, templateRoot+"*.txt"))
)

type SettingsSource interface {
	Current() settings.Settings
}

// Service renders incident and maintenance notices and pages the on-call address.
type Service struct {
	events     repository.EventRepository
	recipients repository.RecipientRepository
	settings   SettingsSource
	mailer     Mailer
	from       string
	logger     zerolog.Logger
}

// NewService wires the notifier. from is the sender used when the email_from setting is empty.
func NewService(
	events repository.EventRepository,
	recipients repository.RecipientRepository,
	source SettingsSource,
	mailer Mailer,
	from string,
	logger zerolog.Logger,
) *Service {
	return &Service{
		events:     events,
		recipients: recipients,
		settings:   source,
		mailer:     mailer,
		from:       from,
		logger:     logger.With().Str("component", "notification_service").Logger(),
	}
}

type updateView struct {
	When   string
	Text   string
	Author string
}

type eventView struct {
	ID            int64
	Status        string
	Start         string
	End           string
	Description   string
	Impact        string
	Coordinator   string
	Services      []string
	Updates       []updateView
	RecipientName string
	Greeting      string
	URL           string
	Timezone      string
}

// Incident mails the incident to the recipient. isNew picks the greeting.
func (s *Service) Incident(ctx context.Context, eventID, recipientID int64, loc *time.Location, isNew bool) error {
	current := s.settings.Current()
	greeting := current.GreetingIncidentUpdate
	if isNew {
		greeting = current.GreetingIncidentNew
	}
	return s.sendEvent(ctx, eventID, recipientID, loc, "incident", current.EmailSubjectIncident, greeting, current.EmailHTMLIncident)
}

func (s *Service) Maintenance(ctx context.Context, eventID, recipientID int64, loc *time.Location, isNew bool) error {
	current := s.settings.Current()
	greeting := current.GreetingMaintenanceUpdate
	if isNew {
		greeting = current.GreetingMaintenanceNew
	}
	return s.sendEvent(ctx, eventID, recipientID, loc, "maintenance", current.EmailSubjectMaintenance, greeting, current.EmailHTMLMaintenance)
}

func (s *Service) sendEvent(ctx context.Context, eventID, recipientID int64, loc *time.Location, kind, subject, greeting string, html bool) error {
	detail, err := s.events.Get(ctx, eventID)
	if err != nil {
		return fmt.Errorf("load event %d: %w", eventID, err)
	}
	recipient, err := s.recipients.Get(ctx, recipientID)
	if err != nil {
		return fmt.Errorf("load recipient %d: %w", recipientID, err)
	}

	current := s.settings.Current()
	view := newEventView(detail, loc)
	view.RecipientName = current.RecipientName
	view.Greeting = greeting
	view.URL = strings.TrimRight(current.SSDURL, "/")

	body, err := render(kind, html, view)
	if err != nil {
		return err
	}

	err = s.mailer.Send(ctx, Message{
		From:    s.sender(current),
		To:      []string{recipient.Address},
		Subject: subject,
		Body:    body,
		HTML:    html,
	})
	if err != nil {
		return err
	}
	s.logger.Debug().Int64("event_id", eventID).Str("recipient", recipient.Address).Msg("Event notification sent")
	return nil
}

// Page sends a short plain-text alert to the configured pager address.
func (s *Service) Page(ctx context.Context, message string) error {
	current := s.settings.Current()
	if strings.TrimSpace(current.RecipientPager) == "" {
		return fmt.Errorf("no pager address configured")
	}
	return s.mailer.Send(ctx, Message{
		From:    s.sender(current),
		To:      []string{current.RecipientPager},
		Subject: pageSubject,
		Body:    message,
	})
}

func (s *Service) sender(current settings.Settings) string {
	if from := strings.TrimSpace(current.EmailFrom); from != "" {
		return from
	}
	return s.from
}

func newEventView(detail models.EventDetail, loc *time.Location) eventView {
	view := eventView{
		ID:          detail.ID,
		Status:      string(detail.Status),
		Start:       detail.Start.In(loc).Format(displayTime),
		Description: detail.Description,
		Impact:      detail.Impact,
		Coordinator: detail.Coordinator,
		Timezone:    loc.String(),
	}
	if detail.End != nil {
		view.End = detail.End.In(loc).Format(displayTime)
	}
	for _, svc := range detail.Services {
		view.Services = append(view.Services, svc.Name)
	}
	for _, u := range detail.Updates {
		view.Updates = append(view.Updates, updateView{
			When:   u.CreatedAt.In(loc).Format(displayTime),
			Text:   u.Text,
			Author: u.Author,
		})
	}
	return view
}

func render(kind string, html bool, view eventView) (string, error) {
	var buf bytes.Buffer
	var err error
	if html {
		err = htmlTemplates.ExecuteTemplate(&buf, kind+".html", view)
	} else {
		err = textTemplates.ExecuteTemplate(&buf, kind+".txt", view)
	}
	if err != nil {
		return "", fmt.Errorf("render %s email: %w", kind, err)
	}
	return buf.String(), nil
}
