package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/gorilla/mux"

	"github.com/stanstork/ssd/internal/authz"
	"github.com/stanstork/ssd/internal/handlers"
	"github.com/stanstork/ssd/internal/models"
)

// Handlers groups everything the router dispatches to.
type Handlers struct {
	Public     *handlers.PublicHandler
	Events     *handlers.EventHandler
	Reports    *handlers.ReportHandler
	Escalation *handlers.EscalationHandler
	Admin      *handlers.AdminHandler
	Auth       *handlers.AuthHandler
	Health     *handlers.HealthHandler
}

// NewRouter sets up the public pages, the login flow and the staff-only /admin tree.
// reportLimit caps report submissions per client address per minute.
func NewRouter(h Handlers, sessions *authz.Sessions, reportLimit int) *mux.Router {
	router := mux.NewRouter()
	router.Use(sessions.Middleware)

	// Health check route
	router.HandleFunc("/health", h.Health.HealthCheck).Methods(http.MethodGet)

	// Public pages
	router.HandleFunc("/", h.Public.Index).Methods(http.MethodGet)
	router.HandleFunc("/i_detail", h.Public.IncidentDetail).Methods(http.MethodGet)
	router.HandleFunc("/m_detail", h.Public.MaintenanceDetail).Methods(http.MethodGet)
	router.HandleFunc("/search", h.Public.Search).Methods(http.MethodGet)
	router.HandleFunc("/escalation", h.Escalation.Public).Methods(http.MethodGet)
	router.HandleFunc("/prefs/timezone", h.Public.Timezone).Methods(http.MethodPost)
	router.HandleFunc("/prefs/jump", h.Public.Jump).Methods(http.MethodPost)

	router.HandleFunc("/report", h.Reports.Form).Methods(http.MethodGet)
	router.Handle("/report", httprate.LimitByIP(reportLimit, time.Minute)(http.HandlerFunc(h.Reports.Submit))).
		Methods(http.MethodPost)

	// Login flow
	router.HandleFunc(authz.LoginPath, h.Auth.LoginPage).Methods(http.MethodGet)
	router.HandleFunc(authz.LoginPath, h.Auth.Login).Methods(http.MethodPost)
	router.HandleFunc("/accounts/logout", h.Auth.Logout).Methods(http.MethodGet, http.MethodPost)

	// Staff-only administration
	admin := router.PathPrefix("/admin").Subrouter()
	admin.Use(authz.RequireRole(models.RoleStaff))

	admin.HandleFunc("", h.Admin.Index).Methods(http.MethodGet)
	admin.HandleFunc("/", h.Admin.Index).Methods(http.MethodGet)

	editable := []string{http.MethodGet, http.MethodPost}
	admin.HandleFunc("/incident", h.Events.Incident).Methods(editable...)
	admin.HandleFunc("/i_update", h.Events.IncidentUpdate).Methods(editable...)
	admin.HandleFunc("/i_delete", h.Events.IncidentDelete).Methods(editable...)
	admin.HandleFunc("/maintenance", h.Events.Maintenance).Methods(editable...)
	admin.HandleFunc("/m_update", h.Events.MaintenanceUpdate).Methods(editable...)
	admin.HandleFunc("/m_delete", h.Events.MaintenanceDelete).Methods(editable...)
	admin.HandleFunc("/m_email", h.Events.MaintenanceEmail).Methods(http.MethodPost)

	admin.HandleFunc("/config", h.Admin.Config).Methods(editable...)
	admin.HandleFunc("/services", h.Admin.Services).Methods(editable...)
	admin.HandleFunc("/services/delete", h.Admin.ServicesDelete).Methods(http.MethodPost)
	admin.HandleFunc("/recipients", h.Admin.Recipients).Methods(editable...)
	admin.HandleFunc("/recipients/delete", h.Admin.RecipientsDelete).Methods(http.MethodPost)
	admin.HandleFunc("/contacts", h.Escalation.Contacts).Methods(editable...)
	admin.HandleFunc("/contacts/modify", h.Escalation.Modify).Methods(http.MethodPost)

	admin.HandleFunc("/reports", h.Reports.Search).Methods(http.MethodGet)
	admin.HandleFunc("/reports/recent", h.Reports.Recent).Methods(http.MethodGet)
	admin.HandleFunc("/r_detail", h.Reports.Detail).Methods(http.MethodGet)
	admin.HandleFunc("/r_delete", h.Reports.Delete).Methods(editable...)
	admin.HandleFunc("/uploads/{path:.*}", h.Reports.Screenshot).Methods(http.MethodGet)

	return router
}
