package handlers

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/stanstork/ssd/internal/authz"
	"github.com/stanstork/ssd/internal/forms"
	"github.com/stanstork/ssd/internal/repository"
)

type AuthHandler struct {
	userRepository repository.UserRepository
	sessions       *authz.Sessions
	render         *Renderer
	logger         zerolog.Logger
}

func NewAuthHandler(users repository.UserRepository, sessions *authz.Sessions, render *Renderer, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		userRepository: users,
		sessions:       sessions,
		render:         render,
		logger:         logger.With().Str("handler", "auth").Logger(),
	}
}

func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	values := formValues("next", r.URL.Query().Get("next"))
	h.render.Render(w, r, http.StatusOK, "login", page{Title: "Login", Values: values})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render.Error(w, r, http.StatusBadRequest, "Invalid request")
		return
	}
	form, errs := forms.ParseLogin(r.PostForm)
	p := page{Title: "Login", Values: formValues("username", form.Username, "next", form.Next)}
	if !errs.Valid() {
		p.Errors = errs
		h.render.Render(w, r, http.StatusOK, "login", p)
		return
	}

	user, err := h.userRepository.AuthenticateUser(r.Context(), form.Username, form.Password)
	if errors.Is(err, repository.ErrInvalidCredentials) {
		h.logger.Info().Str("username", form.Username).Msg("Failed login")
		p.Errors = forms.Errors{"password": "Please enter a correct username and password."}
		h.render.Render(w, r, http.StatusOK, "login", p)
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("Authentication failed")
		h.render.Error(w, r, http.StatusInternalServerError, "Authentication failed")
		return
	}

	if err := h.sessions.Login(w, user); err != nil {
		h.logger.Error().Err(err).Msg("Failed to issue session")
		h.render.Error(w, r, http.StatusInternalServerError, "Failed to generate session")
		return
	}
	h.logger.Info().Str("username", user.Username).Msg("User logged in")

	next := form.Next
	if next == "" {
		next = "/admin"
	}
	http.Redirect(w, r, next, http.StatusSeeOther)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Logout(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
