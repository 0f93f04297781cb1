// Package session keeps the logged-in user in a signed cookie.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	apiusers "github.com/amrdata/amrportal/pkg/api/types/users"
	"github.com/golang-jwt/jwt/v5"
)

const DefaultCookieName = "amrportal_session"

var (
	// ErrNoSession means the request has no session cookie.
	ErrNoSession = errors.New("no session")

	// ErrInvalidSession means the session cookie is broken, forged or expired.
	ErrInvalidSession = errors.New("invalid session")
)

// Claims is what the portal remembers about a logged-in user.
type Claims struct {
	// Subject is the user id.
	Subject string
	Email   string
	Name    string
	Role    apiusers.Role

	// Upstream is the access token of the data API.
	Upstream string

	ExpiresAt time.Time
}

// HasRole reports whether the user has one of roles.
func (c Claims) HasRole(roles ...apiusers.Role) bool {
	for _, r := range roles {
		if c.Role == r {
			return true
		}
	}
	return false
}

type jwtClaims struct {
	jwt.RegisteredClaims
	Email    string        `json:"email,omitempty"`
	Name     string        `json:"name,omitempty"`
	Role     apiusers.Role `json:"role"`
	Upstream string        `json:"upstream"`
}

// Validate is called by the jwt parser after the registered claims are checked.
func (c *jwtClaims) Validate() error {
	if c.Subject == "" {
		return errors.New("claim has no subject")
	}
	if c.Upstream == "" {
		return errors.New("claim has no upstream token")
	}
	return nil
}

// Manager issues, reads and expires session cookies.
type Manager struct {
	Name     string
	Path     string
	Secure   bool
	Lifetime time.Duration
	Now      func() time.Time

	secret []byte
}

type Option func(*Manager)

func WithCookieName(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.Name = name
		}
	}
}

// WithPath sets the cookie path. Default is "/".
func WithPath(path string) Option {
	return func(m *Manager) {
		if path != "" {
			m.Path = path
		}
	}
}

// WithSecure marks the cookie Secure (https only).
func WithSecure(secure bool) Option {
	return func(m *Manager) { m.Secure = secure }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.Now = now }
}

// New creates a Manager signing cookies with secret (HS256).
func New(secret string, lifetime time.Duration, opts ...Option) *Manager {
	m := &Manager{
		Name:     DefaultCookieName,
		Path:     "/",
		Lifetime: lifetime,
		Now:      time.Now,
		secret:   []byte(secret),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Authorize sets a cookie carrying c.
//
// The session lasts Lifetime, or until c.ExpiresAt when that comes first.
// It returns the claims actually stored.
func (m *Manager) Authorize(w http.ResponseWriter, c Claims) (Claims, error) {
	now := m.Now().UTC()
	exp := now.Add(m.Lifetime)
	if !c.ExpiresAt.IsZero() && c.ExpiresAt.Before(exp) {
		exp = c.ExpiresAt.UTC()
	}
	c.ExpiresAt = exp.Truncate(time.Second)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(c.ExpiresAt),
		},
		Email:    c.Email,
		Name:     c.Name,
		Role:     c.Role,
		Upstream: c.Upstream,
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return Claims{}, err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.Name,
		Value:    signed,
		Path:     m.Path,
		Expires:  c.ExpiresAt,
		HttpOnly: true,
		Secure:   m.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return c, nil
}

// Validate returns Claims of the session cookie in r.
//
// Errors are ErrNoSession or ErrInvalidSession.
func (m *Manager) Validate(r *http.Request) (Claims, error) {
	cookie, err := r.Cookie(m.Name)
	if err != nil || cookie.Value == "" {
		return Claims{}, ErrNoSession
	}

	parsed := new(jwtClaims)
	_, err = jwt.ParseWithClaims(
		cookie.Value, parsed,
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.Now),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}

	return Claims{
		Subject:   parsed.Subject,
		Email:     parsed.Email,
		Name:      parsed.Name,
		Role:      parsed.Role,
		Upstream:  parsed.Upstream,
		ExpiresAt: parsed.ExpiresAt.Time,
	}, nil
}

// Expire sets a cookie which removes the session cookie.
func (m *Manager) Expire(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.Name,
		Value:    "",
		Path:     m.Path,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

type claimsKey struct{}

func NewContext(ctx context.Context, c Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// FromContext returns the claims of the logged-in user, if any.
func FromContext(ctx context.Context) (Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(Claims)
	return c, ok
}
