package rest

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var (
	// ErrSessionExpired is returned when the data API rejects the token of a logged-in user.
	ErrSessionExpired = errors.New("session expired")

	// ErrBadCredentials is returned by Login when email or password is wrong.
	ErrBadCredentials = errors.New("email or password is incorrect")

	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("rejected as invalid")

	ErrProfileInvalid = errors.New("api profile is invalid")
)

// APIError is a non-2xx response of the data API.
type APIError struct {
	StatusCode int
	Range      StatusCodeRange

	// Summary is a message for users, chosen per status code range.
	Summary string

	// Detail is the message the server sent, if any.
	Detail string

	// Fields are per-field validation errors the server sent (for 400 responses).
	Fields map[string][]string

	kind error
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return e.Summary
	}
	return e.Summary + "\n" + e.Detail
}

// Unwrap returns the sentinel error for the status code, if there is one.
func (e *APIError) Unwrap() error {
	return e.kind
}

// FieldMessages flattens Fields into one message per field, with sorted keys.
func (e *APIError) FieldMessages() map[string]string {
	if len(e.Fields) == 0 {
		return nil
	}
	out := make(map[string]string, len(e.Fields))
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out[k] = strings.Join(e.Fields[k], " ")
	}
	return out
}

func kindOf(status int) error {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ErrInvalidInput
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	}
	return nil
}

// AsAPIError returns the APIError in err's chain.
func AsAPIError(err error) (*APIError, bool) {
	ae := new(APIError)
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// NewAPIError builds the error the client returns for a response with status.
//
// summary is a message for users. detail and fields are what the server said.
func NewAPIError(status int, summary, detail string, fields map[string][]string) *APIError {
	return &APIError{
		StatusCode: status,
		Range:      statusCodeRange(status),
		Summary:    fmt.Sprintf("%s (status code = %d)", summary, status),
		Detail:     detail,
		Fields:     fields,
		kind:       kindOf(status),
	}
}
