package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/stanstork/ssd/internal/authz"
	"github.com/stanstork/ssd/internal/events"
	"github.com/stanstork/ssd/internal/forms"
	"github.com/stanstork/ssd/internal/models"
	"github.com/stanstork/ssd/internal/repository"
)

const msgBadDelete = "Invalid delete request"

// confirmation backs the GET step of every delete flow.
type confirmation struct {
	Action  string
	ID      int64
	Kind    string
	Summary string
}

// eventForm is the data every incident and maintenance form renders with.
type eventForm struct {
	Event      models.EventDetail
	Services   []models.Service
	Recipients []models.Recipient
}

type EventHandler struct {
	events     *events.Service
	services   repository.ServiceRepository
	recipients repository.RecipientRepository
	settings   SettingsSource
	render     *Renderer
	logger     zerolog.Logger
	now        func() time.Time
}

func NewEventHandler(
	ev *events.Service,
	services repository.ServiceRepository,
	recipients repository.RecipientRepository,
	source SettingsSource,
	render *Renderer,
	logger zerolog.Logger,
) *EventHandler {
	return &EventHandler{
		events:     ev,
		services:   services,
		recipients: recipients,
		settings:   source,
		render:     render,
		logger:     logger.With().Str("handler", "events").Logger(),
		now:        time.Now,
	}
}

func (h *EventHandler) formData(w http.ResponseWriter, r *http.Request, detail models.EventDetail) (eventForm, bool) {
	services, err := h.services.List(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list services")
		h.render.Error(w, r, http.StatusInternalServerError, "Unable to load services")
		return eventForm{}, false
	}
	recipients, err := h.recipients.List(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list recipients")
		h.render.Error(w, r, http.StatusInternalServerError, "Unable to load recipients")
		return eventForm{}, false
	}
	return eventForm{Event: detail, Services: services, Recipients: recipients}, true
}

func (h *EventHandler) show(w http.ResponseWriter, r *http.Request, name, title string, detail models.EventDetail, p page) {
	data, ok := h.formData(w, r, detail)
	if !ok {
		return
	}
	p.Title = title
	p.Data = data
	h.render.Render(w, r, http.StatusOK, name, p)
}

// setNow pre-fills a date and time field pair with the current time in loc.
func (h *EventHandler) setNow(values url.Values, loc *time.Location, dateField, timeField string) {
	now := h.now().In(loc)
	values.Set(dateField, now.Format(forms.DateLayout))
	values.Set(timeField, now.Format(forms.TimeLayout))
}

func author(r *http.Request) (username, name string) {
	id, _ := authz.IdentityFromRequest(r)
	return id.Username, id.Name
}

func broadcast(n forms.Notification) events.Broadcast {
	return events.Broadcast{Enabled: n.Broadcast, RecipientID: n.RecipientID}
}

// finish redirects to the detail page, or reports a failed notification.
func (h *EventHandler) finish(w http.ResponseWriter, r *http.Request, detailPath string, id int64, status events.NotifyStatus) {
	if status.Attempted && !status.OK() {
		h.render.Error(w, r, http.StatusOK, "The change was saved but the email failed: "+status.Err.Error())
		return
	}
	http.Redirect(w, r, detailPath+"?id="+strconv.FormatInt(id, 10), http.StatusSeeOther)
}

func (h *EventHandler) writeFailed(w http.ResponseWriter, r *http.Request, err error, id int64) {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		h.render.Error(w, r, http.StatusNotFound, msgEventNotFound)
	case errors.Is(err, repository.ErrNoServices):
		h.render.Error(w, r, http.StatusBadRequest, "No service entered")
	case errors.Is(err, repository.ErrCompletedNotStarted):
		h.render.Error(w, r, http.StatusBadRequest, "Maintenance cannot be completed if not started")
	default:
		h.logger.Error().Err(err).Int64("event_id", id).Msg("Event write failed")
		h.render.Error(w, r, http.StatusInternalServerError, err.Error())
	}
}

func (h *EventHandler) Incident(w http.ResponseWriter, r *http.Request) {
	loc := h.render.Location(r)
	if r.Method == http.MethodGet {
		values := url.Values{}
		h.setNow(values, loc, "date", "time")
		h.show(w, r, "incident", "Create Incident", models.EventDetail{}, page{Values: values})
		return
	}

	if err := r.ParseForm(); err != nil {
		h.render.Error(w, r, http.StatusBadRequest, "Invalid request")
		return
	}
	form, errs := forms.ParseIncident(r.PostForm, h.settings.Current(), loc)
	if !errs.Valid() {
		h.show(w, r, "incident", "Create Incident", models.EventDetail{}, page{Values: r.PostForm, Errors: errs})
		return
	}

	username, _ := author(r)
	id, status, err := h.events.CreateIncident(r.Context(), events.IncidentInput{
		Start:       form.Start,
		Description: form.Description,
		ServiceIDs:  form.ServiceIDs,
		Author:      username,
		Broadcast:   broadcast(form.Notification),
		Location:    loc,
	})
	if err != nil {
		h.writeFailed(w, r, err, 0)
		return
	}
	h.finish(w, r, "/i_detail", id, status)
}

func (h *EventHandler) IncidentUpdate(w http.ResponseWriter, r *http.Request) {
	loc := h.render.Location(r)
	if r.Method == http.MethodGet {
		detail, ok := loadEvent(w, r, h.render, h.events, r.URL.Query(), models.EventTypeIncident, h.logger)
		if !ok {
			return
		}
		values := eventValues(detail)
		h.setNow(values, loc, "date", "time")
		values.Set("closed", flagValue(detail.Status == models.StatusClosed))
		h.show(w, r, "i_update", "Update Incident", detail, page{Values: values})
		return
	}

	if err := r.ParseForm(); err != nil {
		h.render.Error(w, r, http.StatusBadRequest, "Invalid request")
		return
	}
	form, errs := forms.ParseIncidentUpdate(r.PostForm, h.settings.Current(), loc)
	if !errs.Valid() {
		detail, ok := loadEvent(w, r, h.render, h.events, r.PostForm, models.EventTypeIncident, h.logger)
		if !ok {
			return
		}
		h.show(w, r, "i_update", "Update Incident", detail, page{Values: r.PostForm, Errors: errs})
		return
	}

	_, name := author(r)
	status, err := h.events.UpdateIncident(r.Context(), events.IncidentUpdate{
		ID:         form.ID,
		UpdatedAt:  form.UpdatedAt,
		Text:       form.Update,
		ServiceIDs: form.ServiceIDs,
		Closed:     form.Closed,
		Author:     name,
		Broadcast:  broadcast(form.Notification),
		Location:   loc,
	})
	if err != nil {
		h.writeFailed(w, r, err, form.ID)
		return
	}
	h.finish(w, r, "/i_detail", form.ID, status)
}

func (h *EventHandler) Maintenance(w http.ResponseWriter, r *http.Request) {
	loc := h.render.Location(r)
	if r.Method == http.MethodGet {
		values := url.Values{}
		h.setNow(values, loc, "s_date", "s_time")
		h.setNow(values, loc, "e_date", "e_time")
		h.show(w, r, "maintenance", "Schedule Maintenance", models.EventDetail{}, page{Values: values})
		return
	}

	if err := r.ParseForm(); err != nil {
		h.render.Error(w, r, http.StatusBadRequest, "Invalid request")
		return
	}
	form, errs := forms.ParseMaintenance(r.PostForm, h.settings.Current(), loc)
	if !errs.Valid() {
		h.show(w, r, "maintenance", "Schedule Maintenance", models.EventDetail{}, page{Values: r.PostForm, Errors: errs})
		return
	}

	username, _ := author(r)
	id, status, err := h.events.CreateMaintenance(r.Context(), maintenanceInput(form, username, loc))
	if err != nil {
		h.writeFailed(w, r, err, 0)
		return
	}
	h.finish(w, r, "/m_detail", id, status)
}

func (h *EventHandler) MaintenanceUpdate(w http.ResponseWriter, r *http.Request) {
	loc := h.render.Location(r)
	if r.Method == http.MethodGet {
		detail, ok := loadEvent(w, r, h.render, h.events, r.URL.Query(), models.EventTypeMaintenance, h.logger)
		if !ok {
			return
		}
		values := eventValues(detail)
		values.Set("s_date", detail.Start.In(loc).Format(forms.DateLayout))
		values.Set("s_time", detail.Start.In(loc).Format(forms.TimeLayout))
		if detail.End != nil {
			values.Set("e_date", detail.End.In(loc).Format(forms.DateLayout))
			values.Set("e_time", detail.End.In(loc).Format(forms.TimeLayout))
		}
		values.Set("description", detail.Description)
		values.Set("impact", detail.Impact)
		values.Set("coordinator", detail.Coordinator)
		values.Set("started", flagValue(detail.Status == models.StatusStarted || detail.Status == models.StatusCompleted))
		values.Set("completed", flagValue(detail.Status == models.StatusCompleted))
		h.show(w, r, "m_update", "Update Maintenance", detail, page{Values: values})
		return
	}

	if err := r.ParseForm(); err != nil {
		h.render.Error(w, r, http.StatusBadRequest, "Invalid request")
		return
	}
	form, errs := forms.ParseMaintenanceUpdate(r.PostForm, h.settings.Current(), loc, h.now())
	if !errs.Valid() {
		detail, ok := loadEvent(w, r, h.render, h.events, r.PostForm, models.EventTypeMaintenance, h.logger)
		if !ok {
			return
		}
		h.show(w, r, "m_update", "Update Maintenance", detail, page{Values: r.PostForm, Errors: errs})
		return
	}

	_, name := author(r)
	status, err := h.events.UpdateMaintenance(r.Context(), events.MaintenanceUpdate{
		ID:               form.ID,
		UpdatedAt:        form.UpdatedAt,
		Text:             form.Update,
		Started:          form.Started,
		Completed:        form.Completed,
		MaintenanceInput: maintenanceInput(form.MaintenanceForm, name, loc),
	})
	if err != nil {
		h.writeFailed(w, r, err, form.ID)
		return
	}
	h.finish(w, r, "/m_detail", form.ID, status)
}

// MaintenanceEmail resends the notice for a maintenance to its stored recipient.
func (h *EventHandler) MaintenanceEmail(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render.Error(w, r, http.StatusBadRequest, "Invalid request - please go back and try again.")
		return
	}
	id, errs := forms.ParseDelete(r.PostForm)
	if !errs.Valid() {
		h.render.Error(w, r, http.StatusBadRequest, "Invalid request - please go back and try again.")
		return
	}

	err := h.events.EmailMaintenance(r.Context(), id, h.render.Location(r))
	switch {
	case err == nil:
		h.render.Message(w, r, http.StatusOK, false, "Email successfully sent")
	case errors.Is(err, events.ErrNoRecipient), errors.Is(err, events.ErrNotificationsDisabled):
		h.render.Error(w, r, http.StatusOK, err.Error())
	case errors.Is(err, sql.ErrNoRows), errors.Is(err, events.ErrNotMaintenance):
		h.render.Error(w, r, http.StatusNotFound, msgEventNotFound)
	default:
		h.render.Error(w, r, http.StatusOK, "Email failed: "+err.Error())
	}
}

func (h *EventHandler) IncidentDelete(w http.ResponseWriter, r *http.Request) {
	h.delete(w, r, models.EventTypeIncident, "/admin/i_delete")
}

func (h *EventHandler) MaintenanceDelete(w http.ResponseWriter, r *http.Request) {
	h.delete(w, r, models.EventTypeMaintenance, "/admin/m_delete")
}

// delete asks for confirmation on GET and removes the event on POST.
func (h *EventHandler) delete(w http.ResponseWriter, r *http.Request, eventType models.EventType, action string) {
	if r.Method == http.MethodGet {
		detail, ok := loadEvent(w, r, h.render, h.events, r.URL.Query(), eventType, h.logger)
		if !ok {
			return
		}
		h.render.Render(w, r, http.StatusOK, "confirm", page{
			Title: "Delete Event",
			Data:  confirmation{Action: action, ID: detail.ID, Kind: string(eventType), Summary: detail.Description},
		})
		return
	}

	if err := r.ParseForm(); err != nil {
		h.render.Error(w, r, http.StatusBadRequest, msgBadDelete)
		return
	}
	id, errs := forms.ParseDelete(r.PostForm)
	if !errs.Valid() {
		h.render.Error(w, r, http.StatusBadRequest, msgBadDelete)
		return
	}
	if err := h.events.Delete(r.Context(), id, eventType); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.render.Error(w, r, http.StatusNotFound, msgBadDelete)
			return
		}
		h.logger.Error().Err(err).Int64("event_id", id).Msg("Failed to delete event")
		h.render.Error(w, r, http.StatusInternalServerError, "Unable to delete the event")
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func maintenanceInput(form forms.MaintenanceForm, by string, loc *time.Location) events.MaintenanceInput {
	return events.MaintenanceInput{
		Start:       form.Start,
		End:         form.End,
		Description: form.Description,
		Impact:      form.Impact,
		Coordinator: form.Coordinator,
		ServiceIDs:  form.ServiceIDs,
		Author:      by,
		Broadcast:   broadcast(form.Notification),
		Location:    loc,
	}
}

// eventValues seeds an update form from the stored event. The stored recipient
// is preselected but broadcast starts unchecked so an update only mails on request.
func eventValues(detail models.EventDetail) url.Values {
	values := formValues("id", strconv.FormatInt(detail.ID, 10))
	idValues(values, "service", detail.ServiceIDs())
	if detail.Recipient != nil {
		values.Set("recipient_id", strconv.FormatInt(detail.Recipient.ID, 10))
	}
	return values
}
