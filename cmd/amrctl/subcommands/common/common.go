// Package common is shared by amrctl subcommands.
package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/amrdata/amrportal/pkg/configs/profiles"
	"github.com/amrdata/amrportal/pkg/forms"
	"github.com/amrdata/amrportal/pkg/rest"
	"go.uber.org/zap"
)

// DefaultTimeout is the timeout of each request to the data API.
const DefaultTimeout = 30 * time.Second

var (
	// ErrUsage means the command line is wrong.
	ErrUsage = errors.New("invalid arguments")

	// ErrNotLoggedIn means the profile has no access token.
	ErrNotLoggedIn = errors.New("not logged in. run `amrctl login` first")
)

// Env is what subcommands get from the root command.
type Env struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger *zap.Logger

	// StorePath is the file of the profile store.
	StorePath string

	// Profile is the name of the profile in use.
	Profile string

	// NewClient creates a client for a profile, without token.
	NewClient func(*profiles.Profile) (rest.AMRClient, error)

	// Now is the clock. nil means time.Now.
	Now func() time.Time
}

// DefaultNewClient connects to the data API of p.
func DefaultNewClient(p *profiles.Profile) (rest.AMRClient, error) {
	return rest.NewClient(&rest.Profile{
		ApiRoot: p.ApiRoot,
		CA:      p.Cert.CA,
		Timeout: DefaultTimeout,
	})
}

func (e *Env) Clock() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// Store loads the profile store. A missing store is empty.
func (e *Env) Store() (profiles.ProfileStore, error) {
	return profiles.LoadOrEmpty(e.StorePath)
}

// Anonymous returns a client without token, and the profile with its store.
func (e *Env) Anonymous() (rest.AMRClient, *profiles.Profile, profiles.ProfileStore, error) {
	ps, err := e.Store()
	if err != nil {
		return nil, nil, nil, err
	}
	p, err := ps.Get(e.Profile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w. run `amrctl init` first", err)
	}
	cl, err := e.NewClient(p)
	if err != nil {
		return nil, nil, nil, err
	}
	return cl, p, ps, nil
}

// Client returns a client acting as the logged-in user of the profile.
func (e *Env) Client() (rest.AMRClient, error) {
	cl, p, _, err := e.Anonymous()
	if err != nil {
		return nil, err
	}
	if p.Token == "" {
		return nil, ErrNotLoggedIn
	}
	return cl.WithToken(p.Token), nil
}

// PrintJSON writes v as indented JSON.
func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(v)
}

// FormError turns validation errors into one ErrUsage error, fields in order.
func FormError(errs forms.Errors) error {
	if errs.Err() == nil {
		return nil
	}
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, k+": "+errs[k])
	}
	return fmt.Errorf("%w: %s", ErrUsage, strings.Join(msgs, "; "))
}
