package authz

import (
	"net/http"
	"net/url"

	"github.com/stanstork/ssd/internal/models"
)

// LoginPath is where anonymous requests to protected pages are sent.
const LoginPath = "/accounts/login"

// RequireRole returns a middleware that ensures the requester has at least the required role tier.
// Anonymous requests are redirected to the login page with a next parameter.
func RequireRole(required models.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromRequest(r)
			if !ok {
				target := LoginPath + "?next=" + url.QueryEscape(r.URL.RequestURI())
				http.Redirect(w, r, target, http.StatusSeeOther)
				return
			}
			if !models.HasAtLeast(id.Role, required) {
				http.Error(w, "insufficient permissions", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
