package access_test

import (
	"errors"
	"testing"
	"time"

	"github.com/amrdata/amrportal/pkg/access"
	apidatasets "github.com/amrdata/amrportal/pkg/api/types/datasets"
	apiperm "github.com/amrdata/amrportal/pkg/api/types/permissions"
	apiusers "github.com/amrdata/amrportal/pkg/api/types/users"
	"github.com/google/go-cmp/cmp"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T {
	return &v
}

func TestCurrent(t *testing.T) {
	type When struct {
		perms []apiperm.Permission
	}
	type Then struct {
		state State
		id    string
	}

	theory := func(when When, then Then) func(*testing.T) {
		return func(t *testing.T) {
			got := access.Current(when.perms, "ds-1", now)
			if got.State != then.state {
				t.Errorf("state: want %s, got %s", then.state, got.State)
			}
			if then.id == "" {
				if got.Permission != nil {
					t.Errorf("unexpected permission: %+v", got.Permission)
				}
				return
			}
			if got.Permission == nil || got.Permission.ID != then.id {
				t.Errorf("permission: want %s, got %+v", then.id, got.Permission)
			}
		}
	}

	t.Run("no request is none", theory(
		When{perms: []apiperm.Permission{
			{ID: "p-x", DataSetID: "ds-2", Status: apiperm.Approved},
		}},
		Then{state: access.None},
	))

	t.Run("the latest request wins", theory(
		When{perms: []apiperm.Permission{
			{ID: "p-1", DataSetID: "ds-1", Status: apiperm.Denied, RequestedAt: now.Add(-72 * time.Hour)},
			{ID: "p-2", DataSetID: "ds-1", Status: apiperm.Requested, RequestedAt: now.Add(-1 * time.Hour)},
			{ID: "p-3", DataSetID: "ds-1", Status: apiperm.Revoked, RequestedAt: now.Add(-48 * time.Hour)},
		}},
		Then{state: access.Requested, id: "p-2"},
	))

	t.Run("approval past its expiry is expired", theory(
		When{perms: []apiperm.Permission{
			{ID: "p-1", DataSetID: "ds-1", Status: apiperm.Approved, ExpiresAt: ptr(now)},
		}},
		Then{state: access.Expired, id: "p-1"},
	))

	t.Run("approval before its expiry is approved", theory(
		When{perms: []apiperm.Permission{
			{ID: "p-1", DataSetID: "ds-1", Status: apiperm.Approved, ExpiresAt: ptr(now.Add(time.Second))},
		}},
		Then{state: access.Approved, id: "p-1"},
	))
}

type State = access.State

func TestCanRequest(t *testing.T) {
	type When struct {
		state     State
		decidedAt time.Time
		cooldown  time.Duration
	}
	type Then struct {
		ok   bool
		wait time.Duration
	}

	theory := func(when When, then Then) func(*testing.T) {
		return func(t *testing.T) {
			err := access.CanRequest(when.state, when.decidedAt, now, when.cooldown)
			if then.ok {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, access.ErrNotEligible) {
				t.Fatalf("error is not ErrNotEligible: %v", err)
			}
			var ne *access.NotEligibleError
			if !errors.As(err, &ne) {
				t.Fatalf("error is not NotEligibleError: %v", err)
			}
			if ne.Wait != then.wait {
				t.Errorf("wait: want %s, got %s", then.wait, ne.Wait)
			}
		}
	}

	t.Run("from none it is allowed", theory(When{state: access.None}, Then{ok: true}))
	t.Run("from revoked it is allowed", theory(When{state: access.Revoked}, Then{ok: true}))
	t.Run("from expired it is allowed", theory(When{state: access.Expired}, Then{ok: true}))
	t.Run("from requested it is refused", theory(When{state: access.Requested}, Then{ok: false}))
	t.Run("from approved it is refused", theory(When{state: access.Approved}, Then{ok: false}))
	t.Run("from denied without cooldown it is allowed", theory(
		When{state: access.Denied, decidedAt: now.Add(-time.Minute)},
		Then{ok: true},
	))
	t.Run("from denied within cooldown it is refused with time left", theory(
		When{state: access.Denied, decidedAt: now.Add(-time.Hour), cooldown: 24 * time.Hour},
		Then{ok: false, wait: 23 * time.Hour},
	))
	t.Run("from denied after cooldown it is allowed", theory(
		When{state: access.Denied, decidedAt: now.Add(-24 * time.Hour), cooldown: 24 * time.Hour},
		Then{ok: true},
	))
}

func TestTransition(t *testing.T) {
	type When struct {
		from   State
		action access.Action
		role   apiusers.Role
	}
	type Then struct {
		to  State
		err error
	}

	theory := func(when When, then Then) func(*testing.T) {
		return func(t *testing.T) {
			to, err := access.Transition(when.from, when.action, when.role)
			if then.err != nil {
				if !errors.Is(err, then.err) {
					t.Errorf("error: want %v, got %v", then.err, err)
				}
				if to != when.from {
					t.Errorf("state is changed on error: %s", to)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if to != then.to {
				t.Errorf("state: want %s, got %s", then.to, to)
			}
		}
	}

	t.Run("referee approves a request", theory(
		When{from: access.Requested, action: access.Approve, role: apiusers.RoleReferee},
		Then{to: access.Approved},
	))
	t.Run("admin denies a request", theory(
		When{from: access.Requested, action: access.Deny, role: apiusers.RoleAdmin},
		Then{to: access.Denied},
	))
	t.Run("admin revokes an approval", theory(
		When{from: access.Approved, action: access.Revoke, role: apiusers.RoleAdmin},
		Then{to: access.Revoked},
	))
	t.Run("referee cannot revoke", theory(
		When{from: access.Approved, action: access.Revoke, role: apiusers.RoleReferee},
		Then{err: access.ErrForbidden},
	))
	t.Run("user cannot approve", theory(
		When{from: access.Requested, action: access.Approve, role: apiusers.RoleUser},
		Then{err: access.ErrForbidden},
	))
	t.Run("denied request cannot be approved", theory(
		When{from: access.Denied, action: access.Approve, role: apiusers.RoleAdmin},
		Then{err: access.ErrInvalidTransition},
	))
	t.Run("pending request cannot be revoked", theory(
		When{from: access.Requested, action: access.Revoke, role: apiusers.RoleAdmin},
		Then{err: access.ErrInvalidTransition},
	))
	t.Run("unknown action is invalid", theory(
		When{from: access.Requested, action: access.Action("escalate"), role: apiusers.RoleAdmin},
		Then{err: access.ErrInvalidTransition},
	))
}

func TestViewOf(t *testing.T) {
	t.Run("open dataset can be downloaded without request", func(t *testing.T) {
		got := access.ViewOf(apidatasets.Open, access.Status{State: access.None}, now, 0)
		if !got.CanDownload || got.CanRequest {
			t.Errorf("unexpected view: %+v", got)
		}
	})

	t.Run("restricted dataset: buttons per state", func(t *testing.T) {
		type buttons struct{ Request, Download bool }
		expected := map[State]buttons{
			access.None:      {Request: true},
			access.Requested: {},
			access.Approved:  {Download: true},
			access.Denied:    {Request: true},
			access.Revoked:   {Request: true},
			access.Expired:   {Request: true},
		}
		got := map[State]buttons{}
		for state := range expected {
			v := access.ViewOf(apidatasets.Restricted, access.Status{State: state}, now, 0)
			got[state] = buttons{Request: v.CanRequest, Download: v.CanDownload}
			if v.Label == "" || v.Class == "" {
				t.Errorf("%s: label or class is empty: %+v", state, v)
			}
		}
		if diff := cmp.Diff(expected, got); diff != "" {
			t.Errorf("buttons (-want +got):\n%s", diff)
		}
	})

	t.Run("denied within cooldown tells reason and time left", func(t *testing.T) {
		status := access.Status{
			State: access.Denied,
			Permission: &apiperm.Permission{
				Status: apiperm.Denied, Reason: "purpose is unclear",
				DecidedAt: ptr(now.Add(-2 * time.Hour)),
			},
		}
		got := access.ViewOf(apidatasets.Restricted, status, now, 3*time.Hour)
		if got.CanRequest {
			t.Errorf("request is allowed within cooldown")
		}
		if got.Note != "Reason: purpose is unclear You can request again in 1h0m0s." {
			t.Errorf("unexpected note: %q", got.Note)
		}
	})
}
