package portal

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
)

const flashCookieName = "amrportal_flash"

type FlashKind string

const (
	FlashSuccess FlashKind = "success"
	FlashError   FlashKind = "error"
	FlashInfo    FlashKind = "info"
)

// Flash is a message shown once, on the page after a redirect.
type Flash struct {
	Kind    FlashKind
	Message string
}

func cookiePath(basePath string) string {
	if basePath == "" {
		return "/"
	}
	return basePath
}

// setFlash leaves a message for the next page.
func setFlash(c echo.Context, basePath string, kind FlashKind, message string) {
	c.SetCookie(&http.Cookie{
		Name:     flashCookieName,
		Value:    url.QueryEscape(string(kind) + ":" + message),
		Path:     cookiePath(basePath),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   60,
	})
}

// popFlash takes the message left by setFlash and removes it.
func popFlash(c echo.Context, basePath string) *Flash {
	ck, err := c.Cookie(flashCookieName)
	if err != nil || ck.Value == "" {
		return nil
	}
	c.SetCookie(&http.Cookie{
		Name:     flashCookieName,
		Path:     cookiePath(basePath),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})

	v, err := url.QueryUnescape(ck.Value)
	if err != nil {
		return nil
	}
	kind, msg, ok := strings.Cut(v, ":")
	if !ok || msg == "" {
		return nil
	}
	switch k := FlashKind(kind); k {
	case FlashSuccess, FlashError, FlashInfo:
		return &Flash{Kind: k, Message: msg}
	}
	return nil
}

// redirectWithFlash answers 303 to target, leaving a message for it.
func (p *Portal) redirectWithFlash(c echo.Context, target string, kind FlashKind, message string) error {
	setFlash(c, p.opts.BasePath, kind, message)
	return c.Redirect(http.StatusSeeOther, target)
}
