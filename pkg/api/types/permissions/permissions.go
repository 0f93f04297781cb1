package permissions

import (
	"time"

	"github.com/amrdata/amrportal/pkg/api/types/users"
)

type Status string

const (
	Requested Status = "requested"
	Approved  Status = "approved"
	Denied    Status = "denied"
	Revoked   Status = "revoked"
)

type Permission struct {
	ID           string     `json:"id"`
	DataSetID    string     `json:"data_set_id"`
	DataSetTitle string     `json:"data_set_title"`
	User         users.User `json:"user"`
	Purpose      string     `json:"purpose"`
	Variables    []string   `json:"variables"`
	Status       Status     `json:"status"`
	RequestedAt  time.Time  `json:"requested_at"`
	DecidedAt    *time.Time `json:"decided_at,omitempty"`
	DecidedBy    string     `json:"decided_by,omitempty"`
	Reason       string     `json:"reason,omitempty"`

	// nil means the approval does not expire.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Request is the body of POST /permissions/request.
type Request struct {
	DataSetID string   `json:"data_set_id"`
	Purpose   string   `json:"purpose"`
	Variables []string `json:"variables"`
}

// Decision is the body of approve/deny/revoke.
type Decision struct {
	Reason string `json:"reason,omitempty"`
}
