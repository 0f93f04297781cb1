package portal

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	apiusers "github.com/amrdata/amrportal/pkg/api/types/users"
	xe "github.com/amrdata/amrportal/pkg/errors"
	"github.com/amrdata/amrportal/pkg/forms"
	"github.com/amrdata/amrportal/pkg/logging"
	"github.com/amrdata/amrportal/pkg/rest"
	"github.com/amrdata/amrportal/pkg/session"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// LoginForm is the data of the login page.
type LoginForm struct {
	Email   string
	Next    string
	Expired bool

	// Message is shown above the form, for failures not tied to a field.
	Message string
	Errors  forms.Errors
}

type RegisterForm struct {
	Values    url.Values
	Countries []forms.Country
	Errors    forms.Errors
	Message   string

	// Done is set after the application is accepted.
	Done bool
	User apiusers.User
}

type PasswordResetForm struct {
	Email  string
	Errors forms.Errors
	Done   bool
}

// requestContext is the context for upstream calls on behalf of c, carrying the request id.
func requestContext(c echo.Context) context.Context {
	ctx := c.Request().Context()
	if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
		ctx = rest.WithRequestID(ctx, id)
	}
	return ctx
}

// userClient is the client acting as the logged-in user.
func (p *Portal) userClient(c echo.Context) (rest.AMRClient, session.Claims, error) {
	claims, ok := session.FromContext(c.Request().Context())
	if !ok {
		return nil, claims, errUnauthorized
	}
	return p.client.WithToken(claims.Upstream), claims, nil
}

// safeNext returns next if it is a path in this portal, and the catalogue otherwise.
func (p *Portal) safeNext(next string) string {
	fallback := p.path("/datasets")
	if next == "" || !strings.HasPrefix(next, "/") ||
		strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return fallback
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return fallback
	}
	if base := p.opts.BasePath; base != "" && u.Path != base && !strings.HasPrefix(u.Path, base+"/") {
		return fallback
	}
	return next
}

func (p *Portal) home(c echo.Context) error {
	return p.page(c, http.StatusOK, "home.html", "Home", nil)
}

func (p *Portal) loginPage(c echo.Context) error {
	if _, ok := session.FromContext(c.Request().Context()); ok {
		return c.Redirect(http.StatusSeeOther, p.safeNext(c.QueryParam("next")))
	}
	return p.page(c, http.StatusOK, "login.html", "Log in", LoginForm{
		Next:    c.QueryParam("next"),
		Expired: c.QueryParam("expired") == "1",
	})
}

func (p *Portal) login(c echo.Context) error {
	form, err := c.FormParams()
	if err != nil {
		return xe.Wrap(err)
	}
	data := LoginForm{Email: form.Get("email"), Next: form.Get("next")}

	if !p.limiter.Allow(c.RealIP()) {
		data.Message = "Too many login attempts. Wait a minute and try again."
		return p.page(c, http.StatusTooManyRequests, "login.html", "Log in", data)
	}

	cred, errs := forms.ParseLogin(form)
	if errs.Err() != nil {
		data.Errors = errs
		return p.page(c, http.StatusBadRequest, "login.html", "Log in", data)
	}

	tok, err := p.client.Login(requestContext(c), cred)
	if errors.Is(err, rest.ErrBadCredentials) {
		data.Message = "Email or password is incorrect."
		return p.page(c, http.StatusUnauthorized, "login.html", "Log in", data)
	} else if errors.Is(err, rest.ErrForbidden) {
		data.Message = "Your account is not active yet. It will be usable once an administrator approves it."
		return p.page(c, http.StatusForbidden, "login.html", "Log in", data)
	} else if err != nil {
		return err
	}

	claims := session.Claims{
		Subject:  tok.User.ID,
		Email:    tok.User.Email,
		Name:     tok.User.Name(),
		Role:     tok.User.Role,
		Upstream: tok.AccessToken,
	}
	if tok.ExpiresIn > 0 {
		claims.ExpiresAt = p.opts.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	}
	if _, err := p.sessions.Authorize(c.Response(), claims); err != nil {
		return xe.WrapWithNote("issuing session", err)
	}
	logging.FromContext(c.Request().Context()).Info("logged in", zap.String("user", claims.Subject))

	return c.Redirect(http.StatusSeeOther, p.safeNext(data.Next))
}

func (p *Portal) registerPage(c echo.Context) error {
	return p.page(c, http.StatusOK, "register.html", "Register", RegisterForm{
		Values:    url.Values{},
		Countries: forms.Countries(),
	})
}

func (p *Portal) register(c echo.Context) error {
	form, err := c.FormParams()
	if err != nil {
		return xe.Wrap(err)
	}
	// password fields are never sent back.
	values := url.Values{}
	for _, k := range []string{"first_name", "last_name", "email", "organisation", "country", "terms"} {
		values[k] = form[k]
	}
	data := RegisterForm{Values: values, Countries: forms.Countries()}

	reg, errs := forms.ParseRegistration(form)
	if errs.Err() != nil {
		data.Errors = errs
		return p.page(c, http.StatusBadRequest, "register.html", "Register", data)
	}

	user, err := p.client.Register(requestContext(c), reg)
	if err != nil {
		ae, ok := rest.AsAPIError(err)
		switch {
		case errors.Is(err, rest.ErrConflict):
			data.Errors = forms.Errors{"email": "An account with this email already exists."}
		case ok && errors.Is(err, rest.ErrInvalidInput):
			data.Errors = forms.Errors{}
			data.Errors.Merge(ae.FieldMessages())
			if len(data.Errors) == 0 {
				data.Message = ae.Error()
			}
		default:
			return err
		}
		return p.page(c, http.StatusBadRequest, "register.html", "Register", data)
	}

	data.Done = true
	data.User = user
	return p.page(c, http.StatusOK, "register.html", "Register", data)
}

func (p *Portal) passwordResetPage(c echo.Context) error {
	return p.page(c, http.StatusOK, "password_reset.html", "Reset password", PasswordResetForm{})
}

func (p *Portal) passwordReset(c echo.Context) error {
	form, err := c.FormParams()
	if err != nil {
		return xe.Wrap(err)
	}
	email, errs := forms.ParsePasswordReset(form)
	if errs.Err() != nil {
		return p.page(c, http.StatusBadRequest, "password_reset.html", "Reset password", PasswordResetForm{
			Email: email, Errors: errs,
		})
	}

	// the answer is the same whether or not the account exists.
	if err := p.client.RequestPasswordReset(requestContext(c), email); err != nil {
		logging.FromContext(c.Request().Context()).Warn("password reset is not requested", zap.Error(err))
	}
	return p.page(c, http.StatusOK, "password_reset.html", "Reset password", PasswordResetForm{
		Email: email, Done: true,
	})
}

func (p *Portal) logout(c echo.Context) error {
	if claims, ok := session.FromContext(c.Request().Context()); ok {
		// best effort: the portal forgets the session anyway.
		err := p.client.WithToken(claims.Upstream).Logout(requestContext(c))
		if err != nil && !errors.Is(err, rest.ErrSessionExpired) {
			logging.FromContext(c.Request().Context()).Warn("upstream logout failed", zap.Error(err))
		}
	}
	p.sessions.Expire(c.Response())
	return p.redirectWithFlash(c, p.path("/"), FlashInfo, "You have logged out.")
}
