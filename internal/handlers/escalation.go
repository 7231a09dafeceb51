package handlers

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/stanstork/ssd/internal/escalation"
	"github.com/stanstork/ssd/internal/forms"
)

const msgEscalationDisabled = "Your system administrator has disabled the escalation path functionality"

type EscalationHandler struct {
	contacts *escalation.Service
	settings SettingsSource
	render   *Renderer
	logger   zerolog.Logger
}

func NewEscalationHandler(contacts *escalation.Service, source SettingsSource, render *Renderer, logger zerolog.Logger) *EscalationHandler {
	return &EscalationHandler{
		contacts: contacts,
		settings: source,
		render:   render,
		logger:   logger.With().Str("handler", "escalation").Logger(),
	}
}

// Public shows the visible contacts in order, with the configured instructions.
func (h *EscalationHandler) Public(w http.ResponseWriter, r *http.Request) {
	if !h.settings.Current().EscalationDisplay {
		h.render.Error(w, r, http.StatusOK, msgEscalationDisabled)
		return
	}
	contacts, err := h.contacts.Visible(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list contacts")
		h.render.Error(w, r, http.StatusInternalServerError, "Unable to load escalation contacts")
		return
	}
	h.render.Render(w, r, http.StatusOK, "escalation", page{Title: "Escalation Path", Data: contacts})
}

// Contacts lists every contact for staff and adds new ones on POST.
func (h *EscalationHandler) Contacts(w http.ResponseWriter, r *http.Request) {
	p := page{Title: "Escalation Contacts"}
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			h.render.Error(w, r, http.StatusBadRequest, "Invalid request")
			return
		}
		form, errs := forms.ParseContact(r.PostForm)
		if errs.Valid() {
			if err := h.contacts.Add(r.Context(), form.Name, form.Details); err != nil {
				h.logger.Error().Err(err).Msg("Failed to add contact")
				h.render.Error(w, r, http.StatusInternalServerError, "Unable to add the contact")
				return
			}
			http.Redirect(w, r, "/admin/contacts", http.StatusSeeOther)
			return
		}
		p.Values, p.Errors = r.PostForm, errs
	}

	contacts, err := h.contacts.All(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list contacts")
		h.render.Error(w, r, http.StatusInternalServerError, "Unable to load escalation contacts")
		return
	}
	p.Data = contacts
	h.render.Render(w, r, http.StatusOK, "contacts", p)
}

func (h *EscalationHandler) Modify(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render.Error(w, r, http.StatusBadRequest, "Invalid request")
		return
	}
	form, errs := forms.ParseContactModify(r.PostForm)
	if !errs.Valid() {
		h.render.Error(w, r, http.StatusBadRequest, "Invalid request")
		return
	}
	err := h.contacts.Modify(r.Context(), form.ID, form.Action)
	if errors.Is(err, sql.ErrNoRows) {
		h.render.Error(w, r, http.StatusNotFound, "The requested contact does not exist")
		return
	}
	if err != nil {
		h.render.Error(w, r, http.StatusInternalServerError, "Unable to modify the contact")
		return
	}
	http.Redirect(w, r, "/admin/contacts", http.StatusSeeOther)
}
