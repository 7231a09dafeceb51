package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/stanstork/ssd/internal/forms"
	"github.com/stanstork/ssd/internal/models"
	"github.com/stanstork/ssd/internal/repository"
	"github.com/stanstork/ssd/internal/settings"
)

const (
	msgServiceInUse = "At least one of the services you are attempting to delete is currently part of an incident or maintenance.  " +
		"Please remove the service from the incident/maintenance, or delete the incident/maintenance and then delete the service."
	msgRecipientInUse = "At least one of the recipients you are attempting to delete is currently part of an incident or maintenance.  " +
		"Please remove the recipient from the incident/maintenance, or delete the incident/maintenance and then delete the recipient."
)

// SettingsStore is the runtime settings store edited from the config page.
type SettingsStore interface {
	Current() settings.Settings
	List(ctx context.Context, category string) ([]models.Setting, error)
	Update(ctx context.Context, values map[string]string) error
}

type AdminHandler struct {
	settings   SettingsStore
	services   repository.ServiceRepository
	recipients repository.RecipientRepository
	cache      Invalidator
	render     *Renderer
	logger     zerolog.Logger
}

func NewAdminHandler(
	store SettingsStore,
	services repository.ServiceRepository,
	recipients repository.RecipientRepository,
	cache Invalidator,
	render *Renderer,
	logger zerolog.Logger,
) *AdminHandler {
	return &AdminHandler{
		settings:   store,
		services:   services,
		recipients: recipients,
		cache:      cache,
		render:     render,
		logger:     logger.With().Str("handler", "admin").Logger(),
	}
}

func (h *AdminHandler) Index(w http.ResponseWriter, r *http.Request) {
	h.render.Render(w, r, http.StatusOK, "admin", page{Title: "Admin"})
}

type configPage struct {
	Category string
	Rows     []models.Setting
}

// Config lists the runtime settings, optionally narrowed to one category, and saves edits on POST.
func (h *AdminHandler) Config(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	p := page{Title: "Configuration"}

	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			h.render.Error(w, r, http.StatusBadRequest, "Invalid request")
			return
		}
		category = r.PostForm.Get("category")
		all, err := h.settings.List(r.Context(), "")
		if err != nil {
			h.logger.Error().Err(err).Msg("Failed to list settings")
			h.render.Error(w, r, http.StatusInternalServerError, "Unable to load configuration")
			return
		}
		updates, errs := forms.ParseConfig(r.PostForm, all)
		if errs.Valid() {
			if err := h.settings.Update(r.Context(), updates); err != nil {
				h.logger.Error().Err(err).Msg("Failed to save settings")
				h.render.Error(w, r, http.StatusInternalServerError, "Unable to save configuration")
				return
			}
			h.logger.Info().Int("changed", len(updates)).Msg("Configuration saved")
			http.Redirect(w, r, "/admin/config?category="+url.QueryEscape(category), http.StatusSeeOther)
			return
		}
		p.Values, p.Errors = r.PostForm, errs
	}

	rows, err := h.settings.List(r.Context(), category)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list settings")
		h.render.Error(w, r, http.StatusInternalServerError, "Unable to load configuration")
		return
	}
	if p.Values == nil {
		p.Values = url.Values{}
		for _, row := range rows {
			p.Values.Set(row.Name, row.Value)
		}
	}
	p.Data = configPage{Category: category, Rows: rows}
	h.render.Render(w, r, http.StatusOK, "config", p)
}

// Services lists services and adds one on POST. Adding an existing name is a no-op.
func (h *AdminHandler) Services(w http.ResponseWriter, r *http.Request) {
	p := page{Title: "Services"}
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			h.render.Error(w, r, http.StatusBadRequest, "Invalid request")
			return
		}
		name, errs := forms.ParseService(r.PostForm)
		if errs.Valid() {
			svc, err := h.services.Create(r.Context(), name)
			switch {
			case errors.Is(err, repository.ErrDuplicate):
			case err != nil:
				h.logger.Error().Err(err).Msg("Failed to add service")
				h.render.Error(w, r, http.StatusInternalServerError, "Unable to add the service")
				return
			default:
				h.cache.Invalidate()
				h.logger.Info().Int64("service_id", svc.ID).Str("name", svc.Name).Msg("Service added")
			}
			http.Redirect(w, r, "/admin/services", http.StatusSeeOther)
			return
		}
		p.Values, p.Errors = r.PostForm, errs
	}

	services, err := h.services.List(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list services")
		h.render.Error(w, r, http.StatusInternalServerError, "Unable to load services")
		return
	}
	p.Data = services
	h.render.Render(w, r, http.StatusOK, "services", p)
}

func (h *AdminHandler) ServicesDelete(w http.ResponseWriter, r *http.Request) {
	h.deleteMany(w, r, h.services.Delete, msgServiceInUse, "/admin/services")
}

func (h *AdminHandler) Recipients(w http.ResponseWriter, r *http.Request) {
	p := page{Title: "Email Recipients"}
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			h.render.Error(w, r, http.StatusBadRequest, "Invalid request")
			return
		}
		address, errs := forms.ParseRecipient(r.PostForm)
		if errs.Valid() {
			rcpt, err := h.recipients.Create(r.Context(), address)
			switch {
			case errors.Is(err, repository.ErrDuplicate):
			case err != nil:
				h.logger.Error().Err(err).Msg("Failed to add recipient")
				h.render.Error(w, r, http.StatusInternalServerError, "Unable to add the recipient")
				return
			default:
				h.logger.Info().Int64("recipient_id", rcpt.ID).Msg("Recipient added")
			}
			http.Redirect(w, r, "/admin/recipients", http.StatusSeeOther)
			return
		}
		p.Values, p.Errors = r.PostForm, errs
	}

	recipients, err := h.recipients.List(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list recipients")
		h.render.Error(w, r, http.StatusInternalServerError, "Unable to load recipients")
		return
	}
	p.Data = recipients
	h.render.Render(w, r, http.StatusOK, "recipients", p)
}

func (h *AdminHandler) RecipientsDelete(w http.ResponseWriter, r *http.Request) {
	h.deleteMany(w, r, h.recipients.Delete, msgRecipientInUse, "/admin/recipients")
}

// deleteMany removes every selected id or none of them when one is still referenced.
func (h *AdminHandler) deleteMany(w http.ResponseWriter, r *http.Request, remove func(context.Context, []int64) error, inUse, back string) {
	if err := r.ParseForm(); err != nil {
		h.render.Error(w, r, http.StatusBadRequest, "Invalid request")
		return
	}
	ids, errs := forms.ParseIDList(r.PostForm)
	if !errs.Valid() {
		http.Redirect(w, r, back, http.StatusSeeOther)
		return
	}

	err := remove(r.Context(), ids)
	if errors.Is(err, repository.ErrInUse) {
		h.render.Error(w, r, http.StatusConflict, inUse)
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Ints64("ids", ids).Msg("Bulk delete failed")
		h.render.Error(w, r, http.StatusInternalServerError, "Unable to delete the selection")
		return
	}
	h.cache.Invalidate()
	http.Redirect(w, r, back, http.StatusSeeOther)
}
