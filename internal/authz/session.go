package authz

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog"

	"github.com/stanstork/ssd/internal/models"
)

const (
	SessionCookie = "ssd_session"
	SessionTTL    = 12 * time.Hour
)

var ErrInvalidSession = errors.New("invalid session token")

type sessionClaims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Sessions issues and verifies HS256 session tokens.
type Sessions struct {
	secret []byte
	secure bool
	logger zerolog.Logger
	now    func() time.Time
}

func NewSessions(secret string, secure bool, logger zerolog.Logger) *Sessions {
	return &Sessions{
		secret: []byte(secret),
		secure: secure,
		logger: logger.With().Str("component", "sessions").Logger(),
		now:    time.Now,
	}
}

func (s *Sessions) Issue(user models.User) (string, error) {
	now := s.now()
	claims := sessionClaims{
		Name: user.DisplayName(),
		Role: string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(SessionTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Sessions) Parse(token string) (Identity, error) {
	var claims sessionClaims
	parser := jwt.Parser{ValidMethods: []string{jwt.SigningMethodHS256.Alg()}}
	parsed, err := parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, ErrInvalidSession
	}
	if !claims.VerifyExpiresAt(s.now(), true) {
		return Identity{}, ErrInvalidSession
	}

	role := models.UserRole(claims.Role)
	if claims.Subject == "" || !models.IsValidRole(role) {
		return Identity{}, ErrInvalidSession
	}
	return Identity{Username: claims.Subject, Name: claims.Name, Role: role}, nil
}

// Login writes the session cookie for user.
func (s *Sessions) Login(w http.ResponseWriter, user models.User) error {
	token, err := s.Issue(user)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(SessionTTL.Seconds()),
	})
	return nil
}

func (s *Sessions) Logout(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		MaxAge:   -1,
	})
}

// Middleware attaches the identity from a valid session cookie. Requests
// without one pass through anonymously; a broken cookie is cleared.
func (s *Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(SessionCookie)
		if err != nil || c.Value == "" {
			next.ServeHTTP(w, r)
			return
		}
		id, err := s.Parse(c.Value)
		if err != nil {
			s.logger.Debug().Err(err).Msg("Dropping session cookie")
			s.Logout(w)
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}
