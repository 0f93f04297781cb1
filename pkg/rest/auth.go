package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	apiusers "github.com/amrdata/amrportal/pkg/api/types/users"
)

// anonymous returns a copy of c without token.
func (c *client) anonymous() *client {
	cp := *c
	cp.token = ""
	return &cp
}

func (c *client) Login(ctx context.Context, cred apiusers.Credentials) (apiusers.Token, error) {
	tok, err := sendJson[apiusers.Token](
		ctx, c.anonymous(), http.MethodPost, c.apipath("login"), cred,
		MessageFor{
			Status4xx: "login is rejected",
			Status5xx: "the data service has trouble",
		},
	)
	if errors.Is(err, ErrUnauthorized) {
		return apiusers.Token{}, fmt.Errorf("%w: %w", ErrBadCredentials, err)
	}
	if err != nil {
		return apiusers.Token{}, err
	}
	if tok.AccessToken == "" {
		return apiusers.Token{}, fmt.Errorf("unexpected response: access token is empty")
	}
	return tok, nil
}

func (c *client) Register(ctx context.Context, reg apiusers.Registration) (apiusers.User, error) {
	return sendJson[apiusers.User](
		ctx, c.anonymous(), http.MethodPost, c.apipath("register"), reg,
		MessageFor{
			Status4xx: "registration is rejected",
		},
	)
}

func (c *client) Me(ctx context.Context) (apiusers.User, error) {
	return getJson[apiusers.User](
		ctx, c, c.apipath("users", "me"), []string{GroupUsers}, nil,
	)
}

func (c *client) Logout(ctx context.Context) error {
	if c.cache != nil {
		defer c.cache.InvalidateToken(c.token)
	}
	_, err := sendJson[struct{}](
		ctx, c, http.MethodPost, c.apipath("logout"), nil, nil,
	)
	return err
}

func (c *client) RequestPasswordReset(ctx context.Context, email string) error {
	_, err := sendJson[struct{}](
		ctx, c.anonymous(), http.MethodPost, c.apipath("password", "reset"),
		apiusers.PasswordReset{Email: email}, nil,
	)
	return err
}

func (c *client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.api+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpclient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if StatusCodeRangeOf(resp) == Status5xx {
		return errorFromResponse(resp, nil)
	}
	return nil
}
