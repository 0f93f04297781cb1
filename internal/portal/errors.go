package portal

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	apierr "github.com/amrdata/amrportal/pkg/api/types/errors"
	"github.com/amrdata/amrportal/pkg/logging"
	"github.com/amrdata/amrportal/pkg/rest"
	"github.com/gorilla/csrf"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

var errUnauthorized = apierr.Unauthorized("log in to the portal.", nil)

// ErrorPage is the data of the error page.
type ErrorPage struct {
	Code    int
	Status  string
	Message apierr.ErrorMessage
}

// describe maps err to the status code and the message shown to users.
func describe(err error) (int, apierr.ErrorMessage) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg, _ := apierr.MessageOf(he)
		return he.Code, msg
	}

	code := 0
	switch {
	case errors.Is(err, rest.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, rest.ErrForbidden):
		code = http.StatusForbidden
	case errors.Is(err, rest.ErrConflict):
		code = http.StatusConflict
	case errors.Is(err, rest.ErrInvalidInput):
		code = http.StatusBadRequest
	}

	ae, ok := rest.AsAPIError(err)
	switch {
	case ok && code != 0:
		return code, apierr.ErrorMessage{Reason: ae.Summary, Advice: ae.Detail}
	case ok:
		return http.StatusBadGateway, apierr.ErrorMessage{
			Reason: ae.Summary,
			Advice: "try again later. if it persists, contact the portal team.",
		}
	case code == http.StatusConflict:
		return messageOf(apierr.Conflict(
			"conflict", apierr.WithAdvice("reload the page to see the current state."),
		))
	case code != 0:
		return code, apierr.ErrorMessage{Reason: strings.ToLower(http.StatusText(code))}
	}
	return messageOf(apierr.InternalServerError(err))
}

func messageOf(he *echo.HTTPError) (int, apierr.ErrorMessage) {
	msg, _ := apierr.MessageOf(he)
	return he.Code, msg
}

// wantsJSON tells routes answering JSON (or images) from page routes.
func (p *Portal) wantsJSON(c echo.Context) bool {
	path := c.Request().URL.Path
	return strings.HasPrefix(path, p.path("/api/")) ||
		path == "/healthz" || path == "/readyz" || path == "/metrics"
}

func (p *Portal) handleError(err error, c echo.Context) {
	logger := logging.FromContext(c.Request().Context())
	if c.Response().Committed {
		logger.Warn("error after response is committed", zap.Error(err))
		return
	}

	if errors.Is(err, rest.ErrSessionExpired) {
		p.sessions.Expire(c.Response())
		if p.wantsJSON(c) {
			code, msg := messageOf(apierr.NewErrorMessage(
				http.StatusUnauthorized, "session expired",
				apierr.WithAdvice("log in again."),
				apierr.WithSee(p.path("/login")),
			))
			err = c.JSON(code, msg)
		} else {
			err = c.Redirect(http.StatusSeeOther, p.path("/login")+"?expired=1")
		}
		if err != nil {
			logger.Error("failed to answer session expiry", zap.Error(err))
		}
		return
	}

	code, msg := describe(err)
	if code >= http.StatusInternalServerError {
		logger.Error("request failed", zap.Int("status", code), zap.Error(err))
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else if p.wantsJSON(c) {
		err = c.JSON(code, msg)
	} else {
		err = p.page(c, code, "error.html", http.StatusText(code), ErrorPage{
			Code:    code,
			Status:  http.StatusText(code),
			Message: msg,
		})
	}
	if err != nil {
		logger.Error("failed to send error response", zap.Error(err))
		_ = c.String(code, msg.Reason)
	}
}

// csrfFailure answers requests refused by the CSRF middleware.
func (p *Portal) csrfFailure(w http.ResponseWriter, r *http.Request) {
	logging.FromContext(r.Context()).Info(
		"csrf check failed", zap.NamedError("reason", csrf.FailureReason(r)),
	)
	err := p.render.render(w, r, http.StatusForbidden, "error.html", PageData{
		Title: "Forbidden",
		Data: ErrorPage{
			Code:   http.StatusForbidden,
			Status: http.StatusText(http.StatusForbidden),
			Message: apierr.ErrorMessage{
				Reason: "the form has expired",
				Advice: "reload the page and submit the form again.",
			},
		},
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("forbidden: %s", csrf.FailureReason(r)), http.StatusForbidden)
	}
}
