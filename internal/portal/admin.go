package portal

import (
	"errors"
	"net/http"
	"net/url"
	"sort"

	"github.com/amrdata/amrportal/pkg/access"
	apidatasets "github.com/amrdata/amrportal/pkg/api/types/datasets"
	apierr "github.com/amrdata/amrportal/pkg/api/types/errors"
	apiperm "github.com/amrdata/amrportal/pkg/api/types/permissions"
	apiusers "github.com/amrdata/amrportal/pkg/api/types/users"
	xe "github.com/amrdata/amrportal/pkg/errors"
	"github.com/amrdata/amrportal/pkg/forms"
	"github.com/amrdata/amrportal/pkg/logging"
	"github.com/amrdata/amrportal/pkg/rest"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type UsersView struct {
	// Status is the filter. Empty for all.
	Status   apiusers.Status
	Statuses []apiusers.Status
	Users    []apiusers.User
}

type PermissionsView struct {
	Status   apiperm.Status
	Statuses []apiperm.Status
	Rows     []PermissionRow
}

// permissionRows orders perms newest first, with actions allowed for role.
func (p *Portal) permissionRows(perms []apiperm.Permission, role apiusers.Role) []PermissionRow {
	sorted := make([]apiperm.Permission, len(perms))
	copy(sorted, perms)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].RequestedAt.After(sorted[j].RequestedAt)
	})

	now := p.opts.Now()
	rows := make([]PermissionRow, 0, len(sorted))
	for i := range sorted {
		perm := sorted[i]
		st := access.Of(perm, now)
		row := PermissionRow{
			Permission: perm,
			State:      st,
			View: access.ViewOf(
				apidatasets.Restricted, access.Status{State: st, Permission: &perm}, now, p.opts.RerequestCooldown,
			),
		}
		if role != "" {
			for _, a := range []access.Action{access.Approve, access.Deny, access.Revoke} {
				if _, err := access.Transition(st, a, role); err == nil {
					row.Actions = append(row.Actions, a)
				}
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func (p *Portal) adminUsers(c echo.Context) error {
	cl, _, err := p.userClient(c)
	if err != nil {
		return err
	}

	status := apiusers.Pending
	if s, ok := c.QueryParams()["status"]; ok {
		switch st := apiusers.Status(first(s)); st {
		case apiusers.Pending, apiusers.Active, apiusers.Deactivated:
			status = st
		default:
			status = ""
		}
	}
	users, err := cl.FindUsers(requestContext(c), status)
	if err != nil {
		return err
	}
	sort.SliceStable(users, func(i, j int) bool { return users[i].DateJoined.Before(users[j].DateJoined) })

	return p.page(c, http.StatusOK, "admin_users.html", "Users", UsersView{
		Status:   status,
		Statuses: []apiusers.Status{apiusers.Pending, apiusers.Active, apiusers.Deactivated},
		Users:    users,
	})
}

// backTo is the admin list at path, keeping the status filter the form came from.
func (p *Portal) backTo(c echo.Context, path string) string {
	target := p.path(path)
	if s := c.FormValue("return_status"); s != "" {
		target += "?" + url.Values{"status": {s}}.Encode()
	}
	return target
}

func (p *Portal) userAction(
	c echo.Context,
	do func(cl rest.AMRClient, id string) (apiusers.User, error),
	done string,
) error {
	cl, _, err := p.userClient(c)
	if err != nil {
		return err
	}
	back := p.backTo(c, "/admin/users")
	user, err := do(cl, c.Param("id"))
	if errors.Is(err, rest.ErrConflict) || errors.Is(err, rest.ErrInvalidInput) {
		ae, _ := rest.AsAPIError(err)
		msg := "The user cannot be changed."
		if ae != nil && ae.Detail != "" {
			msg += " " + ae.Detail
		}
		return p.redirectWithFlash(c, back, FlashError, msg)
	} else if err != nil {
		return err
	}
	logging.FromContext(c.Request().Context()).Info(
		"user is updated", zap.String("user", user.ID), zap.String("status", string(user.Status)),
	)
	return p.redirectWithFlash(c, back, FlashSuccess, user.Name()+" "+done+".")
}

func (p *Portal) approveUser(c echo.Context) error {
	return p.userAction(c, func(cl rest.AMRClient, id string) (apiusers.User, error) {
		return cl.ApproveUser(requestContext(c), id)
	}, "is approved")
}

func (p *Portal) deactivateUser(c echo.Context) error {
	return p.userAction(c, func(cl rest.AMRClient, id string) (apiusers.User, error) {
		return cl.DeactivateUser(requestContext(c), id)
	}, "is deactivated")
}

func (p *Portal) adminPermissions(c echo.Context) error {
	cl, claims, err := p.userClient(c)
	if err != nil {
		return err
	}

	status := apiperm.Requested
	if s, ok := c.QueryParams()["status"]; ok {
		switch st := apiperm.Status(first(s)); st {
		case apiperm.Requested, apiperm.Approved, apiperm.Denied, apiperm.Revoked:
			status = st
		default:
			status = ""
		}
	}
	perms, err := cl.FindPermissions(requestContext(c), status)
	if err != nil {
		return err
	}

	return p.page(c, http.StatusOK, "admin_permissions.html", "Permission requests", PermissionsView{
		Status:   status,
		Statuses: []apiperm.Status{apiperm.Requested, apiperm.Approved, apiperm.Denied, apiperm.Revoked},
		Rows:     p.permissionRows(perms, claims.Role),
	})
}

// decide approves, denies or revokes a permission.
//
// The transition is checked against the current state of the request before the data API is asked.
func (p *Portal) decide(c echo.Context) error {
	action := access.Action(c.Param("action"))
	if !action.Valid() {
		return apierr.NotFound()
	}
	cl, claims, err := p.userClient(c)
	if err != nil {
		return err
	}
	ctx := requestContext(c)
	back := p.backTo(c, "/admin/permissions")
	id := c.Param("id")

	perms, err := cl.FindPermissions(ctx, "")
	if err != nil {
		return err
	}
	idx := -1
	for i := range perms {
		if perms[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return apierr.NotFound()
	}
	perm := perms[idx]

	if _, err := access.Transition(access.Of(perm, p.opts.Now()), action, claims.Role); errors.Is(err, access.ErrForbidden) {
		return apierr.Forbidden("only administrators can revoke access.", err)
	} else if err != nil {
		return p.redirectWithFlash(c, back, FlashError, "This request cannot be "+pastTense(action)+". It may have been decided already.")
	}

	form, err := c.FormParams()
	if err != nil {
		return xe.Wrap(err)
	}
	decision, errs := forms.ParseDecision(form, action)
	if errs.Err() != nil {
		return p.redirectWithFlash(c, back, FlashError, errs["reason"])
	}

	switch action {
	case access.Approve:
		_, err = cl.ApprovePermission(ctx, id, decision)
	case access.Deny:
		_, err = cl.DenyPermission(ctx, id, decision)
	case access.Revoke:
		_, err = cl.RevokePermission(ctx, id, decision)
	}
	if errors.Is(err, rest.ErrConflict) {
		return p.redirectWithFlash(c, back, FlashError, "This request cannot be "+pastTense(action)+". It may have been decided already.")
	} else if err != nil {
		return err
	}

	logging.FromContext(ctx).Info(
		"permission is decided",
		zap.String("permission", id), zap.String("action", string(action)), zap.String("by", claims.Subject),
	)
	return p.redirectWithFlash(
		c, back, FlashSuccess,
		"The request of "+perm.User.Name()+" for "+perm.DataSetTitle+" is "+pastTense(action)+".",
	)
}

func pastTense(a access.Action) string {
	switch a {
	case access.Approve:
		return "approved"
	case access.Deny:
		return "denied"
	case access.Revoke:
		return "revoked"
	}
	return string(a)
}
