package session_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	apiusers "github.com/amrdata/amrportal/pkg/api/types/users"
	"github.com/amrdata/amrportal/pkg/session"
	"github.com/amrdata/amrportal/pkg/utils/try"
	"github.com/golang-jwt/jwt/v5"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func at(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// roundtrip issues a cookie with issuer and reads it with reader.
func roundtrip(t *testing.T, issuer, reader *session.Manager, c session.Claims) (session.Claims, error) {
	t.Helper()
	w := httptest.NewRecorder()
	try.To(issuer.Authorize(w, c)).OrFatal(t)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, ck := range w.Result().Cookies() {
		r.AddCookie(ck)
	}
	return reader.Validate(r)
}

func TestAuthorizeAndValidate(t *testing.T) {
	claims := session.Claims{
		Subject: "u-1", Email: "ada@example.com", Name: "Ada Lovelace",
		Role: apiusers.RoleReferee, Upstream: "tok-1",
	}

	t.Run("valid cookie gives back the claims", func(t *testing.T) {
		m := session.New("secret", time.Hour, session.WithClock(at(epoch)))
		got, err := roundtrip(t, m, m, claims)
		if err != nil {
			t.Fatal(err)
		}
		if got.Subject != "u-1" || got.Email != "ada@example.com" || got.Name != "Ada Lovelace" ||
			got.Role != apiusers.RoleReferee || got.Upstream != "tok-1" {
			t.Errorf("unexpected claims: %+v", got)
		}
		if !got.ExpiresAt.Equal(epoch.Add(time.Hour)) {
			t.Errorf("unexpected expiry: %s", got.ExpiresAt)
		}
	})

	t.Run("cookie is HttpOnly and SameSite=Lax", func(t *testing.T) {
		m := session.New("secret", time.Hour, session.WithClock(at(epoch)), session.WithSecure(true))
		w := httptest.NewRecorder()
		try.To(m.Authorize(w, claims)).OrFatal(t)

		cookies := w.Result().Cookies()
		if len(cookies) != 1 {
			t.Fatalf("unexpected cookies: %v", cookies)
		}
		ck := cookies[0]
		if ck.Name != session.DefaultCookieName || !ck.HttpOnly || !ck.Secure || ck.SameSite != http.SameSiteLaxMode {
			t.Errorf("unexpected cookie: %+v", ck)
		}
	})

	t.Run("upstream expiry shortens the session", func(t *testing.T) {
		m := session.New("secret", time.Hour, session.WithClock(at(epoch)))
		c := claims
		c.ExpiresAt = epoch.Add(10 * time.Minute)
		got, err := roundtrip(t, m, m, c)
		if err != nil {
			t.Fatal(err)
		}
		if !got.ExpiresAt.Equal(epoch.Add(10 * time.Minute)) {
			t.Errorf("unexpected expiry: %s", got.ExpiresAt)
		}
	})

	t.Run("expired cookie is invalid", func(t *testing.T) {
		issuer := session.New("secret", time.Hour, session.WithClock(at(epoch)))
		reader := session.New("secret", time.Hour, session.WithClock(at(epoch.Add(2*time.Hour))))
		_, err := roundtrip(t, issuer, reader, claims)
		if !errors.Is(err, session.ErrInvalidSession) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("cookie signed with other secret is invalid", func(t *testing.T) {
		issuer := session.New("secret", time.Hour, session.WithClock(at(epoch)))
		reader := session.New("other", time.Hour, session.WithClock(at(epoch)))
		_, err := roundtrip(t, issuer, reader, claims)
		if !errors.Is(err, session.ErrInvalidSession) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("claims without subject are invalid", func(t *testing.T) {
		m := session.New("secret", time.Hour, session.WithClock(at(epoch)))
		c := claims
		c.Subject = ""
		_, err := roundtrip(t, m, m, c)
		if !errors.Is(err, session.ErrInvalidSession) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("token with other algorithm is invalid", func(t *testing.T) {
		m := session.New("secret", time.Hour, session.WithClock(at(epoch)))
		token := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
			"sub": "u-1", "upstream": "tok-1", "exp": epoch.Add(time.Hour).Unix(),
		})
		signed := try.To(token.SignedString([]byte("secret"))).OrFatal(t)

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: session.DefaultCookieName, Value: signed})
		if _, err := m.Validate(r); !errors.Is(err, session.ErrInvalidSession) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("request without cookie has no session", func(t *testing.T) {
		m := session.New("secret", time.Hour)
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if _, err := m.Validate(r); !errors.Is(err, session.ErrNoSession) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestExpire(t *testing.T) {
	m := session.New("secret", time.Hour, session.WithPath("/portal"))
	w := httptest.NewRecorder()
	m.Expire(w)

	header := w.Header().Get("Set-Cookie")
	if !strings.Contains(header, session.DefaultCookieName+"=;") || !strings.Contains(header, "Max-Age=0") {
		t.Errorf("cookie is not expired: %s", header)
	}
	if !strings.Contains(header, "Path=/portal") {
		t.Errorf("unexpected path: %s", header)
	}
}
