package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	apiperm "github.com/amrdata/amrportal/pkg/api/types/permissions"
)

func (c *client) RequestPermission(ctx context.Context, req apiperm.Request) (apiperm.Permission, error) {
	return sendJson[apiperm.Permission](
		ctx, c, http.MethodPost, c.apipath("permissions", "request"), req,
		MessageFor{
			Status4xx: fmt.Sprintf("access request for dataset %s is rejected", req.DataSetID),
		},
		GroupPermissions, GroupDataSet(req.DataSetID),
	)
}

func (c *client) MyPermissions(ctx context.Context) ([]apiperm.Permission, error) {
	return getJson[[]apiperm.Permission](
		ctx, c, c.apipath("permissions", "mine"), []string{GroupPermissions}, nil,
	)
}

func (c *client) FindPermissions(ctx context.Context, status apiperm.Status) ([]apiperm.Permission, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", string(status))
	}
	return getJson[[]apiperm.Permission](
		ctx, c, withQuery(c.apipath("permissions"), q), []string{GroupPermissions}, nil,
	)
}

func (c *client) decide(ctx context.Context, id string, action string, decision apiperm.Decision) (apiperm.Permission, error) {
	perm, err := sendJson[apiperm.Permission](
		ctx, c, http.MethodPost, c.apipath("permissions", id, action), decision,
		MessageFor{
			Status4xx: fmt.Sprintf("cannot %s permission %s", action, id),
		},
		GroupPermissions,
	)
	if err != nil {
		return apiperm.Permission{}, err
	}
	if c.cache != nil && perm.DataSetID != "" {
		c.cache.Invalidate(GroupDataSet(perm.DataSetID))
	}
	return perm, nil
}

func (c *client) ApprovePermission(ctx context.Context, id string, decision apiperm.Decision) (apiperm.Permission, error) {
	return c.decide(ctx, id, "approve", decision)
}

func (c *client) DenyPermission(ctx context.Context, id string, decision apiperm.Decision) (apiperm.Permission, error) {
	return c.decide(ctx, id, "deny", decision)
}

func (c *client) RevokePermission(ctx context.Context, id string, decision apiperm.Decision) (apiperm.Permission, error) {
	return c.decide(ctx, id, "revoke", decision)
}
