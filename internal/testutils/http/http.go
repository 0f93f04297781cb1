package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
)

type RequestOption func(req *http.Request) *http.Request

func WithContext(ctx context.Context) RequestOption {
	return func(req *http.Request) *http.Request {
		return req.WithContext(ctx)
	}
}

func WithHeader(key string, value string, values ...string) RequestOption {
	return func(req *http.Request) *http.Request {
		req.Header.Add(key, value)
		for _, v := range values {
			req.Header.Add(key, v)
		}
		return req
	}
}

// = WithHeader("Content-Type", ctyp)
func ContentType(ctyp string) RequestOption {
	return WithHeader("Content-Type", ctyp)
}

// WithCookie adds a cookie to the request.
func WithCookie(cookie *http.Cookie) RequestOption {
	return func(req *http.Request) *http.Request {
		req.AddCookie(cookie)
		return req
	}
}

func Get(e *echo.Echo, target string, reqopts ...RequestOption) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest("GET", target, nil)
	for _, opt := range reqopts {
		req = opt(req)
	}
	resp := httptest.NewRecorder()

	ctx := e.NewContext(req, resp)
	return ctx, resp
}

func Post(e *echo.Echo, target string, data io.Reader, reqopts ...RequestOption) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest("POST", target, data)
	for _, opt := range reqopts {
		req = opt(req)
	}
	resp := httptest.NewRecorder()

	ctx := e.NewContext(req, resp)
	return ctx, resp
}

// PostForm is Post with a url-encoded form body.
func PostForm(e *echo.Echo, target string, form url.Values, reqopts ...RequestOption) (echo.Context, *httptest.ResponseRecorder) {
	return Post(
		e, target, strings.NewReader(form.Encode()),
		append([]RequestOption{ContentType(echo.MIMEApplicationForm)}, reqopts...)...,
	)
}

// Serve sends req to e through its router and middlewares, and returns the recorded response.
func Serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	e.ServeHTTP(resp, req)
	return resp
}

// NewFormRequest builds a POST request with a url-encoded form body.
func NewFormRequest(target string, form url.Values, reqopts ...RequestOption) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	for _, opt := range reqopts {
		req = opt(req)
	}
	return req
}

// NewRequest builds a GET request.
func NewRequest(target string, reqopts ...RequestOption) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for _, opt := range reqopts {
		req = opt(req)
	}
	return req
}
