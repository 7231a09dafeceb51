package handlers

import (
	"net/http"
	"net/url"

	"github.com/stanstork/ssd/internal/forms"
)

// Timezone stores the viewer's display zone in a long-lived cookie.
func (h *PublicHandler) Timezone(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render.Error(w, r, http.StatusBadRequest, "Invalid request")
		return
	}
	loc, errs := forms.ParseTimezone(r.PostForm)
	if !errs.Valid() {
		h.render.Error(w, r, http.StatusBadRequest, errs.Get("timezone"))
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     timezoneCookie,
		Value:    url.QueryEscape(loc.String()),
		Path:     "/",
		MaxAge:   timezoneMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Jump moves the dashboard to the submitted reference date.
func (h *PublicHandler) Jump(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render.Error(w, r, http.StatusBadRequest, "Invalid request")
		return
	}
	ref, errs := forms.ParseJump(r.PostForm)
	if !errs.Valid() {
		h.render.Error(w, r, http.StatusBadRequest, msgBadReference)
		return
	}
	http.Redirect(w, r, "/?ref="+ref, http.StatusSeeOther)
}
