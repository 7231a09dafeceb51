package authz

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanstork/ssd/internal/models"
)

func staffUser() models.User {
	return models.User{Username: "jane", FirstName: "Jane", LastName: "Admin", Role: models.RoleStaff}
}

func TestSessionsRoundTrip(t *testing.T) {
	s := NewSessions("secret", false, zerolog.Nop())

	token, err := s.Issue(staffUser())
	require.NoError(t, err)

	id, err := s.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, Identity{Username: "jane", Name: "Jane Admin", Role: models.RoleStaff}, id)
}

func TestSessionsRejectBadTokens(t *testing.T) {
	s := NewSessions("secret", false, zerolog.Nop())
	token, err := s.Issue(staffUser())
	require.NoError(t, err)

	_, err = NewSessions("other", false, zerolog.Nop()).Parse(token)
	assert.ErrorIs(t, err, ErrInvalidSession)

	_, err = s.Parse("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidSession)

	s.now = func() time.Time { return time.Now().Add(SessionTTL + time.Hour) }
	_, err = s.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestMiddlewareAttachesIdentity(t *testing.T) {
	s := NewSessions("secret", false, zerolog.Nop())
	login := httptest.NewRecorder()
	require.NoError(t, s.Login(login, staffUser()))
	cookies := login.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	var got Identity
	var found bool
	h := s.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, found = IdentityFromRequest(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.AddCookie(cookies[0])
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.True(t, found)
	assert.Equal(t, "jane", got.Username)

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "garbage"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.False(t, found)
	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, -1, cleared[0].MaxAge)
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := RequireRole(models.RoleStaff)(ok)

	t.Run("anonymous redirects to login", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/config?x=1", nil))
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/accounts/login?next=%2Fadmin%2Fconfig%3Fx%3D1", rec.Header().Get("Location"))
	})

	t.Run("viewer is forbidden", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req = req.WithContext(WithIdentity(req.Context(), Identity{Username: "bob", Role: models.RoleViewer}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("staff passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req = req.WithContext(WithIdentity(req.Context(), Identity{Username: "jane", Role: models.RoleStaff}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}
