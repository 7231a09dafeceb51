package routes

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanstork/ssd/internal/authz"
	"github.com/stanstork/ssd/internal/dashboard"
	"github.com/stanstork/ssd/internal/escalation"
	"github.com/stanstork/ssd/internal/events"
	"github.com/stanstork/ssd/internal/handlers"
	"github.com/stanstork/ssd/internal/models"
	"github.com/stanstork/ssd/internal/notification"
	"github.com/stanstork/ssd/internal/repository"
	"github.com/stanstork/ssd/internal/settings"
	"github.com/stanstork/ssd/internal/testutil"
	"github.com/stanstork/ssd/internal/uploads"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []notification.Message
}

func (m *recordingMailer) Send(_ context.Context, msg notification.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type fixture struct {
	router   *mux.Router
	store    *settings.Store
	services repository.ServiceRepository
	events   repository.EventRepository
	reports  repository.ReportRepository
	users    repository.UserRepository
	sessions *authz.Sessions
	mailer   *recordingMailer
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	logger := zerolog.Nop()
	db := testutil.NewDB(t)

	store := settings.NewStore(repository.NewSettingRepository(db), logger)
	require.NoError(t, store.Reload(ctx))

	f := fixture{
		store:    store,
		services: repository.NewServiceRepository(db),
		events:   repository.NewEventRepository(db),
		reports:  repository.NewReportRepository(db),
		users:    repository.NewUserRepository(db),
		sessions: authz.NewSessions("test-secret", false, logger),
		mailer:   &recordingMailer{},
	}
	recipients := repository.NewRecipientRepository(db)

	notifier := notification.NewService(f.events, recipients, store, f.mailer, "ssd@example.com", logger)
	dash := dashboard.NewService(f.services, f.events, f.reports, store, time.Minute, logger)
	eventService := events.NewService(f.events, notifier, dash, store, logger)
	contacts := escalation.NewService(repository.NewEscalationRepository(db), logger)

	render, err := handlers.NewRenderer(store, time.UTC, logger)
	require.NoError(t, err)

	f.router = NewRouter(Handlers{
		Public:     handlers.NewPublicHandler(dash, eventService, render, logger),
		Events:     handlers.NewEventHandler(eventService, f.services, recipients, store, render, logger),
		Reports:    handlers.NewReportHandler(f.reports, uploads.NewStore(logger), notifier, dash, store, render, logger),
		Escalation: handlers.NewEscalationHandler(contacts, store, render, logger),
		Admin:      handlers.NewAdminHandler(store, f.services, recipients, dash, render, logger),
		Auth:       handlers.NewAuthHandler(f.users, f.sessions, render, logger),
		Health:     handlers.NewHealthHandler(db, logger),
	}, f.sessions, 10)
	return f
}

func (f fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f fixture) signIn(t *testing.T, req *http.Request, role models.UserRole) {
	t.Helper()
	user, err := f.users.CreateUser(context.Background(), "user"+string(role), "password", "Ada", "Lovelace", role)
	require.NoError(t, err)
	token, err := f.sessions.Issue(user)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: authz.SessionCookie, Value: token})
}

func postForm(target string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestDashboardShowsIncidentOnReferenceDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	api, err := f.services.Create(ctx, "API")
	require.NoError(t, err)
	id, err := f.events.Create(ctx, repository.CreateEventParams{
		Type:        models.EventTypeIncident,
		Start:       time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC),
		Description: "Gateway errors",
		ServiceIDs:  []int64{api.ID},
	})
	require.NoError(t, err)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/?ref=2024-01-10", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "API")
	assert.Contains(t, body, "/i_detail?id="+strconv.FormatInt(id, 10))
	assert.Contains(t, body, `class="green"`)
}

func TestDashboardRejectsBadReference(t *testing.T) {
	f := newFixture(t)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/?ref=10-01-2024", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Improperly formatted reference date.")
}

func TestEventDetailErrors(t *testing.T) {
	f := newFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/i_detail?id=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Improperly formatted id")

	rec = f.do(httptest.NewRequest(http.MethodGet, "/m_detail?id=999", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminRequiresStaff(t *testing.T) {
	f := newFixture(t)

	t.Run("anonymous", func(t *testing.T) {
		rec := f.do(httptest.NewRequest(http.MethodGet, "/admin/incident", nil))
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/accounts/login?next=%2Fadmin%2Fincident", rec.Header().Get("Location"))
	})

	t.Run("viewer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/incident", nil)
		f.signIn(t, req, models.RoleViewer)
		assert.Equal(t, http.StatusForbidden, f.do(req).Code)
	})

	t.Run("staff", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/incident", nil)
		f.signIn(t, req, models.RoleStaff)
		rec := f.do(req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Create an incident")
	})
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	_, err := f.users.CreateUser(context.Background(), "admin", "s3cret", "Ada", "Lovelace", models.RoleStaff)
	require.NoError(t, err)

	rec := f.do(postForm("/accounts/login", url.Values{"username": {"admin"}, "password": {"wrong"}}))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Please enter a correct username and password.")

	rec = f.do(postForm("/accounts/login", url.Values{
		"username": {"admin"},
		"password": {"s3cret"},
		"next":     {"/admin/services"},
	}))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin/services", rec.Header().Get("Location"))

	var session *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == authz.SessionCookie {
			session = c
		}
	}
	require.NotNil(t, session)

	req := httptest.NewRequest(http.MethodGet, "/admin/services", nil)
	req.AddCookie(session)
	assert.Equal(t, http.StatusOK, f.do(req).Code)
}

func TestCreateIncidentFromAdmin(t *testing.T) {
	f := newFixture(t)
	api, err := f.services.Create(context.Background(), "API")
	require.NoError(t, err)

	req := postForm("/admin/incident", url.Values{
		"date":        {"2024-01-10"},
		"time":        {"09:00"},
		"description": {"Gateway errors"},
		"service":     {strconv.FormatInt(api.ID, 10)},
	})
	f.signIn(t, req, models.RoleStaff)
	rec := f.do(req)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	location := rec.Header().Get("Location")
	require.True(t, strings.HasPrefix(location, "/i_detail?id="), location)

	detail := f.do(httptest.NewRequest(http.MethodGet, location, nil))
	assert.Equal(t, http.StatusOK, detail.Code)
	assert.Contains(t, detail.Body.String(), "Gateway errors")
	assert.Zero(t, f.mailer.count())
}

func TestReportSubmissionPagesServiceDesk(t *testing.T) {
	f := newFixture(t)

	rec := f.do(postForm("/report", url.Values{
		"name":   {"Jane Doe"},
		"email":  {"jane@example.com"},
		"detail": {"VPN is down"},
	}))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Thank you, your report has been received.")
	assert.Equal(t, 1, f.mailer.count())

	recent, err := f.reports.ListRecent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "VPN is down", recent[0].Detail)
}

func TestReportDisabled(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Update(context.Background(), map[string]string{"report_incident_display": "0"}))

	rec := f.do(httptest.NewRequest(http.MethodGet, "/report", nil))
	assert.Contains(t, rec.Body.String(), "Your system administrator has disabled this functionality")
}

func TestReportRejectsOversizedScreenshot(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Update(context.Background(), map[string]string{
		"enable_uploads":   "1",
		"upload_path":      t.TempDir(),
		"file_upload_size": "100",
	}))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("name", "Jane Doe"))
	require.NoError(t, mw.WriteField("email", "jane@example.com"))
	require.NoError(t, mw.WriteField("detail", "VPN is down"))
	part, err := mw.CreateFormFile("screenshot1", "shot.png")
	require.NoError(t, err)
	_, err = part.Write(bytes.Repeat([]byte("x"), 150))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/report", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := f.do(req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "File too large")
	recent, err := f.reports.ListRecent(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, recent)
	assert.Zero(t, f.mailer.count())
}

func TestEscalationDisabled(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Update(context.Background(), map[string]string{"escalation_display": "0"}))

	rec := f.do(httptest.NewRequest(http.MethodGet, "/escalation", nil))
	assert.Contains(t, rec.Body.String(), "disabled the escalation path functionality")
}

func TestServiceDeleteInUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	used, err := f.services.Create(ctx, "API")
	require.NoError(t, err)
	spare, err := f.services.Create(ctx, "Mail")
	require.NoError(t, err)
	_, err = f.events.Create(ctx, repository.CreateEventParams{
		Type:        models.EventTypeIncident,
		Start:       time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC),
		Description: "Gateway errors",
		ServiceIDs:  []int64{used.ID},
	})
	require.NoError(t, err)

	req := postForm("/admin/services/delete", url.Values{
		"id": {strconv.FormatInt(used.ID, 10), strconv.FormatInt(spare.ID, 10)},
	})
	f.signIn(t, req, models.RoleStaff)
	rec := f.do(req)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "currently part of an incident or maintenance")

	all, err := f.services.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestTimezonePreference(t *testing.T) {
	f := newFixture(t)
	rec := f.do(postForm("/prefs/timezone", url.Values{"timezone": {"America/New_York"}}))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Contains(t, rec.Header().Get("Set-Cookie"), "timezone=America%2FNew_York")
}

func TestReportFarOversizedScreenshotKeepsForm(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Update(context.Background(), map[string]string{
		"enable_uploads":   "1",
		"upload_path":      t.TempDir(),
		"file_upload_size": "100",
	}))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("name", "Jane Doe"))
	require.NoError(t, mw.WriteField("email", "jane@example.com"))
	require.NoError(t, mw.WriteField("detail", "VPN is down"))
	part, err := mw.CreateFormFile("screenshot1", "shot.png")
	require.NoError(t, err)
	_, err = part.Write(bytes.Repeat([]byte("x"), 3<<20))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/report", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := f.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	page := rec.Body.String()
	assert.Contains(t, page, "File too large")
	assert.Contains(t, page, `action="/report"`)
	assert.Contains(t, page, "VPN is down")
	assert.Contains(t, page, `value="jane@example.com"`)

	recent, err := f.reports.ListRecent(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, recent)
}
