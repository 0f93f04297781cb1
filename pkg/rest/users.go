package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	apiusers "github.com/amrdata/amrportal/pkg/api/types/users"
)

func (c *client) FindUsers(ctx context.Context, status apiusers.Status) ([]apiusers.User, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", string(status))
	}
	return getJson[[]apiusers.User](
		ctx, c, withQuery(c.apipath("users"), q), []string{GroupUsers}, nil,
	)
}

func (c *client) ApproveUser(ctx context.Context, id string) (apiusers.User, error) {
	return sendJson[apiusers.User](
		ctx, c, http.MethodPost, c.apipath("users", id, "approve"), nil,
		MessageFor{Status4xx: fmt.Sprintf("cannot approve user %s", id)},
		GroupUsers,
	)
}

func (c *client) DeactivateUser(ctx context.Context, id string) (apiusers.User, error) {
	return sendJson[apiusers.User](
		ctx, c, http.MethodPost, c.apipath("users", id, "deactivate"), nil,
		MessageFor{Status4xx: fmt.Sprintf("cannot deactivate user %s", id)},
		GroupUsers,
	)
}
