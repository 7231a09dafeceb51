// Package dashboard aggregates services, events and reports into the public
// status grid, the activity histogram and the open-event timelines.
package dashboard

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"github.com/stanstork/ssd/internal/cache"
	"github.com/stanstork/ssd/internal/models"
	"github.com/stanstork/ssd/internal/repository"
	"github.com/stanstork/ssd/internal/settings"
)

const dateLayout = "2006-01-02"

var referencePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ErrBadReference is returned when the ref parameter is not a YYYY-MM-DD date.
var ErrBadReference = errors.New("improperly formatted reference date")

type SettingsSource interface {
	Current() settings.Settings
}

type View struct {
	Reference time.Time
	Location  *time.Location
	Dates     []time.Time
	Rows      []Row

	Histogram []Bucket
	ShowGraph bool

	OpenIncidents      []models.EventSummary
	ActiveMaintenances []models.EventSummary

	Backward string
	Forward  string

	Alert       string
	Information string
}

type Service struct {
	services repository.ServiceRepository
	events   repository.EventRepository
	reports  repository.ReportRepository
	settings SettingsSource
	cache    *cache.TTL[string, View]
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(
	services repository.ServiceRepository,
	events repository.EventRepository,
	reports repository.ReportRepository,
	source SettingsSource,
	ttl time.Duration,
	logger zerolog.Logger,
) *Service {
	return &Service{
		services: services,
		events:   events,
		reports:  reports,
		settings: source,
		cache:    cache.NewTTL[string, View](ttl),
		logger:   logger.With().Str("component", "dashboard").Logger(),
		now:      time.Now,
	}
}

// Invalidate drops every cached view. Called after any write that changes what the dashboard shows.
func (s *Service) Invalidate() {
	s.cache.Invalidate()
}

// ParseReference resolves ref to local midnight in loc. An empty ref means today.
func ParseReference(ref string, loc *time.Location, now time.Time) (time.Time, error) {
	if ref == "" {
		y, m, d := now.In(loc).Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc), nil
	}
	if !referencePattern.MatchString(ref) {
		return time.Time{}, ErrBadReference
	}
	t, err := time.ParseInLocation(dateLayout, ref, loc)
	if err != nil {
		return time.Time{}, ErrBadReference
	}
	return t, nil
}

// endOfDay returns the last whole second of the local day starting at midnight.
func endOfDay(midnight time.Time) time.Time {
	return midnight.AddDate(0, 0, 1).Add(-time.Second)
}

func (s *Service) Build(ctx context.Context, ref string, loc *time.Location) (View, error) {
	refDate, err := ParseReference(ref, loc, s.now())
	if err != nil {
		return View{}, err
	}

	key := refDate.Format(dateLayout) + "|" + loc.String()
	view, ok := s.cache.Get(key)
	if !ok {
		view, err = s.build(ctx, refDate, loc)
		if err != nil {
			return View{}, err
		}
		s.cache.Set(key, view)
	}

	current := s.settings.Current()
	view.Alert, view.Information = "", ""
	if current.AlertEnabled {
		view.Alert = current.Alert
	}
	if current.InformationEnabled {
		view.Information = current.InformationMain
	}
	return view, nil
}

func (s *Service) build(ctx context.Context, ref time.Time, loc *time.Location) (View, error) {
	dates := gridDates(ref)

	services, err := s.services.List(ctx)
	if err != nil {
		return View{}, err
	}
	gridEvents, err := s.events.ListServiceEventsBetween(ctx, dates[0], endOfDay(ref))
	if err != nil {
		return View{}, err
	}
	activeByService, err := s.events.ListActiveServiceEvents(ctx)
	if err != nil {
		return View{}, err
	}

	histFrom := ref.AddDate(0, 0, -DayRange)
	histTo := endOfDay(ref.AddDate(0, 0, DayRange))
	histEvents, err := s.events.ListStartedBetween(ctx, histFrom, histTo)
	if err != nil {
		return View{}, err
	}
	reportTimes, err := s.reports.ListCreatedBetween(ctx, histFrom, histTo)
	if err != nil {
		return View{}, err
	}

	active, err := s.events.ListActive(ctx)
	if err != nil {
		return View{}, err
	}

	view := View{
		Reference: ref,
		Location:  loc,
		Dates:     dates,
		Rows:      buildGrid(services, gridEvents, activeByService, dates, loc),
		Backward:  ref.AddDate(0, 0, -GridDays).Format(dateLayout),
		Forward:   ref.AddDate(0, 0, GridDays).Format(dateLayout),
	}
	view.Histogram, view.ShowGraph = buildHistogram(ref, histEvents, reportTimes, loc)
	for _, evt := range active {
		if evt.Type == models.EventTypeIncident {
			view.OpenIncidents = append(view.OpenIncidents, evt)
		} else {
			view.ActiveMaintenances = append(view.ActiveMaintenances, evt)
		}
	}

	s.logger.Debug().
		Str("ref", ref.Format(dateLayout)).
		Str("timezone", loc.String()).
		Int("services", len(services)).
		Int("events", len(gridEvents)).
		Msg("Dashboard built")
	return view, nil
}
