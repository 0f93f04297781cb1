// Package forms reads and validates html form submissions.
//
// Each parser returns the typed value and Errors, which maps a field name to a message
// to be shown next to the field.
package forms

import (
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/amrdata/amrportal/pkg/access"
	apidatasets "github.com/amrdata/amrportal/pkg/api/types/datasets"
	apiperm "github.com/amrdata/amrportal/pkg/api/types/permissions"
	apiusers "github.com/amrdata/amrportal/pkg/api/types/users"
	"github.com/amrdata/amrportal/pkg/dictionary"
)

var ErrInvalid = errors.New("form is invalid")

const (
	MinPasswordLength = 8
	MaxNameLength     = 150
	MinPurposeLength  = 30
	MaxPurposeLength  = 2000
	MaxReasonLength   = 1000

	msgRequired = "This field is required."
)

// Errors maps field name to message.
type Errors map[string]string

// Add sets msg for field, unless field already has a message.
func (e Errors) Add(field, msg string) {
	if _, ok := e[field]; !ok {
		e[field] = msg
	}
}

func (e Errors) Has(field string) bool {
	_, ok := e[field]
	return ok
}

// Merge adds messages of other, e.g. field errors the data API returned.
func (e Errors) Merge(other map[string]string) {
	for k, v := range other {
		e.Add(k, v)
	}
}

// Err is nil when there are no errors, and an error wrapping ErrInvalid otherwise.
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	fields := make([]string, 0, len(e))
	for k := range e {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(fields, ", "))
}

func get(v url.Values, key string) string {
	return strings.TrimSpace(v.Get(key))
}

func checked(v url.Values, key string) bool {
	switch strings.ToLower(get(v, key)) {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}

func length(s string) int {
	return utf8.RuneCountInString(s)
}

// ValidEmail reports whether s is a bare email address, like "ada@example.com".
func ValidEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndex(s, "@")
	return 0 < at && strings.Contains(s[at+1:], ".")
}

func requireEmail(errs Errors, field, s string) {
	switch {
	case s == "":
		errs.Add(field, msgRequired)
	case !ValidEmail(s):
		errs.Add(field, "Enter a valid email address.")
	}
}

// CheckPassword returns a message when password is too weak, or "".
func CheckPassword(password string) string {
	if length(password) < MinPasswordLength {
		return fmt.Sprintf("Use at least %d characters.", MinPasswordLength)
	}
	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper || !lower || !digit {
		return "Use upper and lower case letters and digits."
	}
	return ""
}

// ParseLogin reads fields "email" and "password".
func ParseLogin(v url.Values) (apiusers.Credentials, Errors) {
	errs := Errors{}
	cred := apiusers.Credentials{
		Email:    get(v, "email"),
		Password: v.Get("password"),
	}
	requireEmail(errs, "email", cred.Email)
	if cred.Password == "" {
		errs.Add("password", msgRequired)
	}
	return cred, errs
}

// ParseRegistration reads fields "first_name", "last_name", "email", "organisation",
// "country", "password", "password_confirm" and "terms".
func ParseRegistration(v url.Values) (apiusers.Registration, Errors) {
	errs := Errors{}
	reg := apiusers.Registration{
		FirstName:    get(v, "first_name"),
		LastName:     get(v, "last_name"),
		Email:        get(v, "email"),
		Organisation: get(v, "organisation"),
		Country:      strings.ToUpper(get(v, "country")),
		Password:     v.Get("password"),
	}

	for field, val := range map[string]string{
		"first_name": reg.FirstName, "last_name": reg.LastName,
	} {
		switch {
		case val == "":
			errs.Add(field, msgRequired)
		case MaxNameLength < length(val):
			errs.Add(field, fmt.Sprintf("Use at most %d characters.", MaxNameLength))
		}
	}
	requireEmail(errs, "email", reg.Email)
	if reg.Organisation == "" {
		errs.Add("organisation", msgRequired)
	}
	switch {
	case reg.Country == "":
		errs.Add("country", msgRequired)
	case !ValidCountry(reg.Country):
		errs.Add("country", "Choose a country from the list.")
	}

	if reg.Password == "" {
		errs.Add("password", msgRequired)
	} else if msg := CheckPassword(reg.Password); msg != "" {
		errs.Add("password", msg)
	}
	if v.Get("password_confirm") != reg.Password {
		errs.Add("password_confirm", "Passwords do not match.")
	}
	if !checked(v, "terms") {
		errs.Add("terms", "You must accept the terms of use.")
	}
	return reg, errs
}

// ParsePasswordReset reads field "email".
func ParsePasswordReset(v url.Values) (string, Errors) {
	errs := Errors{}
	email := get(v, "email")
	requireEmail(errs, "email", email)
	return email, errs
}

// ParsePermissionRequest reads fields "purpose" and "variables" (repeated) for dataset ds.
//
// For restricted datasets, variables are required and validated against dict.
// dict may be nil when the dataset has no dictionary.
func ParsePermissionRequest(v url.Values, ds apidatasets.Detail, dict *apidatasets.Dictionary) (apiperm.Request, Errors) {
	errs := Errors{}
	req := apiperm.Request{
		DataSetID: ds.ID,
		Purpose:   get(v, "purpose"),
		Variables: []string{},
	}

	switch n := length(req.Purpose); {
	case n == 0:
		errs.Add("purpose", msgRequired)
	case n < MinPurposeLength:
		errs.Add("purpose", fmt.Sprintf("Describe the purpose in at least %d characters.", MinPurposeLength))
	case MaxPurposeLength < n:
		errs.Add("purpose", fmt.Sprintf("Use at most %d characters.", MaxPurposeLength))
	}

	if dict == nil {
		for _, n := range v["variables"] {
			if n = strings.TrimSpace(n); n != "" {
				req.Variables = append(req.Variables, n)
			}
		}
		return req, errs
	}

	sel, err := dictionary.ParseSelection(*dict, v["variables"])
	switch {
	case err == nil:
		req.Variables = sel.Names()
	case errors.Is(err, dictionary.ErrEmptySelection):
		if ds.Access == apidatasets.Restricted {
			errs.Add("variables", "Select at least one variable.")
		}
	default:
		errs.Add("variables", "Unknown variables are selected.")
	}
	return req, errs
}

// ParseDecision reads field "reason". Deny and revoke require a reason.
func ParseDecision(v url.Values, action access.Action) (apiperm.Decision, Errors) {
	errs := Errors{}
	d := apiperm.Decision{Reason: get(v, "reason")}
	switch {
	case d.Reason == "" && access.RequiresReason(action):
		errs.Add("reason", "Tell the requester why.")
	case MaxReasonLength < length(d.Reason):
		errs.Add("reason", fmt.Sprintf("Use at most %d characters.", MaxReasonLength))
	}
	return d, errs
}
