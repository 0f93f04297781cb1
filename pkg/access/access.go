// Package access is the life cycle of a user's permission for a dataset.
//
//	none ----request----> requested
//	requested --approve--> approved --revoke--> revoked
//	requested --deny-----> denied
//	approved --(ExpiresAt passes)--> expired
//
// From none, revoked and expired, the user may request again.
// From denied, the user may request again after a cooldown.
package access

import (
	"errors"
	"fmt"
	"time"

	apidatasets "github.com/amrdata/amrportal/pkg/api/types/datasets"
	apiperm "github.com/amrdata/amrportal/pkg/api/types/permissions"
	apiusers "github.com/amrdata/amrportal/pkg/api/types/users"
)

type State string

const (
	None      State = "none"
	Requested State = "requested"
	Approved  State = "approved"
	Denied    State = "denied"
	Revoked   State = "revoked"
	Expired   State = "expired"
)

type Action string

const (
	Approve Action = "approve"
	Deny    Action = "deny"
	Revoke  Action = "revoke"
)

func (a Action) Valid() bool {
	switch a {
	case Approve, Deny, Revoke:
		return true
	}
	return false
}

var (
	// ErrNotEligible means the user cannot request a permission now.
	ErrNotEligible = errors.New("not eligible to request access")

	// ErrInvalidTransition means the action cannot be applied to the state.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrForbidden means the actor's role may not perform the action.
	ErrForbidden = errors.New("role is not allowed to perform the action")
)

// Status is the effective state of a user's permission for a dataset.
type Status struct {
	State State

	// Permission is the latest request. nil when State is None.
	Permission *apiperm.Permission
}

// DecidedAt is when the latest request was decided. Zero if not decided.
func (s Status) DecidedAt() time.Time {
	if s.Permission == nil || s.Permission.DecidedAt == nil {
		return time.Time{}
	}
	return *s.Permission.DecidedAt
}

// Of derives the effective state of a stored permission at now.
func Of(p apiperm.Permission, now time.Time) State {
	switch p.Status {
	case apiperm.Requested:
		return Requested
	case apiperm.Approved:
		if p.ExpiresAt != nil && !now.Before(*p.ExpiresAt) {
			return Expired
		}
		return Approved
	case apiperm.Denied:
		return Denied
	case apiperm.Revoked:
		return Revoked
	}
	return None
}

// Current picks the latest request for datasetID among perms, and derives its state at now.
func Current(perms []apiperm.Permission, datasetID string, now time.Time) Status {
	var latest *apiperm.Permission
	for i := range perms {
		p := &perms[i]
		if p.DataSetID != datasetID {
			continue
		}
		if latest == nil || latest.RequestedAt.Before(p.RequestedAt) {
			latest = p
		}
	}
	if latest == nil {
		return Status{State: None}
	}
	return Status{State: Of(*latest, now), Permission: latest}
}

// NotEligibleError tells why a request is refused.
type NotEligibleError struct {
	State State

	// Wait is the time left until the user may request again. Zero when it is not a matter of time.
	Wait time.Duration
}

func (e *NotEligibleError) Error() string {
	switch e.State {
	case Requested:
		return fmt.Sprintf("%s: a request is already waiting for decision", ErrNotEligible)
	case Approved:
		return fmt.Sprintf("%s: access is already granted", ErrNotEligible)
	case Denied:
		return fmt.Sprintf("%s: request was denied. you can request again in %s", ErrNotEligible, e.Wait.Round(time.Minute))
	}
	return fmt.Sprintf("%s (%s)", ErrNotEligible, e.State)
}

func (e *NotEligibleError) Unwrap() error {
	return ErrNotEligible
}

// CanRequest tells whether a new request is allowed in state at now.
//
// decidedAt is when the latest request was decided, used for the cooldown after denial.
// It returns nil when allowed, and *NotEligibleError otherwise.
func CanRequest(state State, decidedAt, now time.Time, cooldown time.Duration) error {
	switch state {
	case None, Expired, Revoked:
		return nil
	case Denied:
		if cooldown <= 0 || decidedAt.IsZero() {
			return nil
		}
		if wait := decidedAt.Add(cooldown).Sub(now); 0 < wait {
			return &NotEligibleError{State: state, Wait: wait}
		}
		return nil
	}
	return &NotEligibleError{State: state}
}

// Transition applies action by an actor with role to from.
//
// Errors wrap ErrInvalidTransition or ErrForbidden.
func Transition(from State, action Action, role apiusers.Role) (State, error) {
	var allowed []apiusers.Role
	var to State
	var source State
	switch action {
	case Approve:
		source, to = Requested, Approved
		allowed = []apiusers.Role{apiusers.RoleAdmin, apiusers.RoleReferee}
	case Deny:
		source, to = Requested, Denied
		allowed = []apiusers.Role{apiusers.RoleAdmin, apiusers.RoleReferee}
	case Revoke:
		source, to = Approved, Revoked
		allowed = []apiusers.Role{apiusers.RoleAdmin}
	default:
		return from, fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, action)
	}

	permitted := false
	for _, r := range allowed {
		if r == role {
			permitted = true
			break
		}
	}
	if !permitted {
		return from, fmt.Errorf("%w: %s cannot %s", ErrForbidden, role, action)
	}
	if from != source {
		return from, fmt.Errorf("%w: cannot %s %s request", ErrInvalidTransition, action, from)
	}
	return to, nil
}

// RequiresReason reports whether action needs a reason for the requester.
func RequiresReason(action Action) bool {
	return action == Deny || action == Revoke
}

// View is how a state is shown on the dataset page.
type View struct {
	Label string

	// Class is the css class of the badge.
	Class string

	CanRequest  bool
	CanDownload bool

	// Note is a sentence explaining the state. Empty if nothing to say.
	Note string
}

// ViewOf decides what the dataset page shows for a dataset with access, in status at now.
func ViewOf(access apidatasets.Access, status Status, now time.Time, cooldown time.Duration) View {
	if access == apidatasets.Open {
		return View{Label: "Open access", Class: "badge-open", CanDownload: true}
	}

	v := View{CanRequest: CanRequest(status.State, status.DecidedAt(), now, cooldown) == nil}
	switch status.State {
	case None:
		v.Label, v.Class = "Restricted", "badge-restricted"
		v.Note = "You need permission to download this dataset."
	case Requested:
		v.Label, v.Class = "Pending", "badge-pending"
		v.Note = "Your request is waiting for review."
	case Approved:
		v.Label, v.Class = "Approved", "badge-approved"
		v.CanDownload = true
		if p := status.Permission; p != nil && p.ExpiresAt != nil {
			v.Note = "Access expires on " + p.ExpiresAt.Format("2 Jan 2006") + "."
		}
	case Denied:
		v.Label, v.Class = "Denied", "badge-denied"
		if p := status.Permission; p != nil && p.Reason != "" {
			v.Note = "Reason: " + p.Reason
		}
		var ne *NotEligibleError
		if errors.As(CanRequest(status.State, status.DecidedAt(), now, cooldown), &ne) {
			v.Note = joinNote(v.Note, fmt.Sprintf("You can request again in %s.", ne.Wait.Round(time.Minute)))
		}
	case Revoked:
		v.Label, v.Class = "Revoked", "badge-denied"
		if p := status.Permission; p != nil && p.Reason != "" {
			v.Note = "Reason: " + p.Reason
		}
	case Expired:
		v.Label, v.Class = "Expired", "badge-expired"
		v.Note = "Your access has expired. You can request it again."
	}
	return v
}

func joinNote(a, b string) string {
	if a == "" {
		return b
	}
	return a + " " + b
}
