package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/stanstork/ssd/internal/dashboard"
	"github.com/stanstork/ssd/internal/events"
	"github.com/stanstork/ssd/internal/forms"
	"github.com/stanstork/ssd/internal/models"
)

const (
	msgNoID          = "No incident ID given"
	msgBadID         = "Improperly formatted id"
	msgBadReference  = "Improperly formatted reference date."
	msgEventNotFound = "The requested event does not exist"
)

type PublicHandler struct {
	dashboard *dashboard.Service
	events    *events.Service
	render    *Renderer
	logger    zerolog.Logger
}

func NewPublicHandler(dash *dashboard.Service, ev *events.Service, render *Renderer, logger zerolog.Logger) *PublicHandler {
	return &PublicHandler{
		dashboard: dash,
		events:    ev,
		render:    render,
		logger:    logger.With().Str("handler", "public").Logger(),
	}
}

func (h *PublicHandler) Index(w http.ResponseWriter, r *http.Request) {
	view, err := h.dashboard.Build(r.Context(), r.URL.Query().Get("ref"), h.render.Location(r))
	if errors.Is(err, dashboard.ErrBadReference) {
		h.render.Error(w, r, http.StatusBadRequest, msgBadReference)
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to build dashboard")
		h.render.Error(w, r, http.StatusInternalServerError, "Unable to load the dashboard")
		return
	}
	h.render.Render(w, r, http.StatusOK, "index", page{Data: view})
}

func (h *PublicHandler) IncidentDetail(w http.ResponseWriter, r *http.Request) {
	h.detail(w, r, models.EventTypeIncident, "i_detail", "Incident Detail")
}

func (h *PublicHandler) MaintenanceDetail(w http.ResponseWriter, r *http.Request) {
	h.detail(w, r, models.EventTypeMaintenance, "m_detail", "Maintenance Detail")
}

func (h *PublicHandler) detail(w http.ResponseWriter, r *http.Request, eventType models.EventType, name, title string) {
	detail, ok := loadEvent(w, r, h.render, h.events, r.URL.Query(), eventType, h.logger)
	if !ok {
		return
	}
	h.render.Render(w, r, http.StatusOK, name, page{Title: title, Data: detail})
}

type searchResults struct {
	Searched bool
	Events   []models.EventSummary
}

// Search shows the event search form; results appear once a date window is submitted.
func (h *PublicHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	p := page{Title: "Search", Values: query, Data: searchResults{}}
	if query.Get("date_from") == "" && query.Get("date_to") == "" {
		h.render.Render(w, r, http.StatusOK, "search", p)
		return
	}

	search, errs := forms.ParseEventSearch(query, h.render.Location(r))
	if !errs.Valid() {
		p.Errors = errs
		h.render.Render(w, r, http.StatusOK, "search", p)
		return
	}
	found, err := h.events.Search(r.Context(), search)
	if err != nil {
		h.logger.Error().Err(err).Msg("Event search failed")
		h.render.Error(w, r, http.StatusInternalServerError, "Search failed")
		return
	}
	p.Data = searchResults{Searched: true, Events: found}
	h.render.Render(w, r, http.StatusOK, "search", p)
}

// loadEvent reads the id parameter and loads the event, rendering the system
// message page on any failure.
func loadEvent(w http.ResponseWriter, r *http.Request, render *Renderer, svc *events.Service, values url.Values, eventType models.EventType, logger zerolog.Logger) (models.EventDetail, bool) {
	raw := values.Get("id")
	if raw == "" {
		render.Error(w, r, http.StatusBadRequest, msgNoID)
		return models.EventDetail{}, false
	}
	id, ok := forms.ParseID(raw)
	if !ok {
		render.Error(w, r, http.StatusBadRequest, msgBadID)
		return models.EventDetail{}, false
	}

	detail, err := svc.Get(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && detail.Type != eventType) {
		render.Error(w, r, http.StatusNotFound, msgEventNotFound)
		return models.EventDetail{}, false
	}
	if err != nil {
		logger.Error().Err(err).Int64("event_id", id).Msg("Failed to load event")
		render.Error(w, r, http.StatusInternalServerError, "Unable to load the event")
		return models.EventDetail{}, false
	}
	return detail, true
}
