package session

import (
	"errors"
	"net/http"
	"net/url"

	apierr "github.com/amrdata/amrportal/pkg/api/types/errors"
	apiusers "github.com/amrdata/amrportal/pkg/api/types/users"
	"github.com/labstack/echo/v4"
)

// Load puts the claims of a valid session cookie into the request context.
//
// A broken or expired cookie is removed. Requests without session pass through.
func (m *Manager) Load() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, err := m.Validate(c.Request())
			switch {
			case err == nil:
				req := c.Request()
				c.SetRequest(req.WithContext(NewContext(req.Context(), claims)))
			case errors.Is(err, ErrInvalidSession):
				m.Expire(c.Response())
			}
			return next(c)
		}
	}
}

// RequireLogin redirects anonymous users to loginPath, with the current path as "next".
//
// Load should be installed before this.
func RequireLogin(loginPath string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := FromContext(c.Request().Context()); ok {
				return next(c)
			}
			q := url.Values{}
			q.Set("next", c.Request().URL.RequestURI())
			return c.Redirect(http.StatusSeeOther, loginPath+"?"+q.Encode())
		}
	}
}

// RequireRole answers 403 unless the user has one of roles.
func RequireRole(roles ...apiusers.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, ok := FromContext(c.Request().Context())
			if !ok {
				return apierr.Unauthorized("log in first.", nil)
			}
			if !claims.HasRole(roles...) {
				return apierr.Forbidden("this page is for administrators.", nil)
			}
			return next(c)
		}
	}
}
