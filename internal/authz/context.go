package authz

import (
	"context"
	"net/http"

	"github.com/stanstork/ssd/internal/models"
)

type contextKey string

const identityKey contextKey = "identity"

// Identity is the signed-in user as carried by the session cookie.
type Identity struct {
	Username string
	Name     string
	Role     models.UserRole
}

// WithIdentity stores the identity on the context. Identities with an unknown role are ignored.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	if id.Username == "" || !models.IsValidRole(id.Role) {
		return ctx
	}
	return context.WithValue(ctx, identityKey, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

func IdentityFromRequest(r *http.Request) (Identity, bool) {
	return IdentityFromContext(r.Context())
}
