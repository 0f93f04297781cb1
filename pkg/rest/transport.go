package rest

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/amrdata/amrportal/pkg/metrics"
	"github.com/google/uuid"
)

const HeaderRequestID = "X-Request-ID"

type tokenKey struct{}

func withToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenKey{}, token)
}

func tokenFrom(ctx context.Context) (string, bool) {
	t, ok := ctx.Value(tokenKey{}).(string)
	return t, ok && t != ""
}

type requestIDKey struct{}

// WithRequestID makes requests sent with ctx carry id as X-Request-ID.
//
// Without this, each request gets a new random id.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

// authTransport sets Authorization and X-Request-ID headers.
type authTransport struct {
	base http.RoundTripper
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	req = req.Clone(ctx)
	if token, ok := tokenFrom(ctx); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if req.Header.Get(HeaderRequestID) == "" {
		id, ok := ctx.Value(requestIDKey{}).(string)
		if !ok {
			id = uuid.NewString()
		}
		req.Header.Set(HeaderRequestID, id)
	}
	return t.base.RoundTrip(req)
}

// expiryTransport turns 401 for an authenticated request into ErrSessionExpired.
type expiryTransport struct {
	base      http.RoundTripper
	onExpired func(token string)
}

func (t *expiryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	token, ok := tokenFrom(req.Context())
	if !ok {
		return resp, nil
	}

	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	if t.onExpired != nil {
		t.onExpired(token)
	}
	return nil, fmt.Errorf("%w: %s %s", ErrSessionExpired, req.Method, req.URL.Path)
}

type metricsTransport struct {
	base    http.RoundTripper
	metrics *metrics.Metrics
}

func (t *metricsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		t.metrics.ObserveUpstream(req.Method, 0)
		return nil, err
	}
	t.metrics.ObserveUpstream(req.Method, resp.StatusCode)
	return resp, nil
}
