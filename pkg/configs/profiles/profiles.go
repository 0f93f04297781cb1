// Package profiles stores connection profiles of amrctl.
package profiles

import (
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"

	"github.com/amrdata/amrportal/pkg/configs/profiles/open"
	xe "github.com/amrdata/amrportal/pkg/errors"
	"github.com/hectane/go-acl"
	yaml "gopkg.in/yaml.v3"
)

var ErrProfileStoreNotFound = errors.New("profile store is not found")
var ErrProfileNotFound = errors.New("profile is not found")
var ErrCannotUpdateStore = errors.New("cannot update profile store")
var ErrProfileInvalid = errors.New("profile is invalid")

// ProfileStore is a map from profile name to Profile.
type ProfileStore map[string]*Profile

type Cert struct {
	// base64 encoded CA certificate
	CA string `yaml:"ca,omitempty"`
}

// Profile is a connection to an AMR API.
type Profile struct {
	// ApiRoot is the root URL of the API.
	ApiRoot string `yaml:"apiRoot"`

	Cert Cert `yaml:"cert"`

	// Token is the access token given at login. Empty when logged out.
	Token string `yaml:"token,omitempty"`
}

func verifyUrl(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.IsAbs()
}

func verifyPEM(b64cert string) bool {
	bin, err := base64.StdEncoding.DecodeString(b64cert)
	if err != nil {
		return false
	}
	blk, _ := pem.Decode(bin)
	return blk != nil
}

// Verify Profile
//
// # Return
//
// nil if it is valid. Otherwise, ErrProfileInvalid error.
func (p *Profile) Verify() error {
	if !verifyUrl(p.ApiRoot) {
		return fmt.Errorf("%w: apiRoot is not URL: %s", ErrProfileInvalid, p.ApiRoot)
	}
	if p.Cert.CA != "" && !verifyPEM(p.Cert.CA) {
		return fmt.Errorf("%w: cert.ca is not PEM", ErrProfileInvalid)
	}
	return nil
}

// Get returns the named profile.
func (ps ProfileStore) Get(name string) (*Profile, error) {
	p, ok := ps[name]
	if !ok || p == nil {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	return p, nil
}

// Names returns profile names in order.
func (ps ProfileStore) Names() []string {
	names := make([]string, 0, len(ps))
	for n := range ps {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DefaultPath is ~/.amrctl/profiles.yaml
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".amrctl", "profiles.yaml"), nil
}

// LoadProfileStore loads profile store from file.
func LoadProfileStore(filepath string) (ProfileStore, error) {
	buf, err := os.ReadFile(filepath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at %s", ErrProfileStoreNotFound, filepath)
		}
		return nil, err
	}
	return Unmarshall(buf)
}

// LoadOrEmpty is LoadProfileStore, but a missing file gives an empty store.
func LoadOrEmpty(filepath string) (ProfileStore, error) {
	ps, err := LoadProfileStore(filepath)
	if errors.Is(err, ErrProfileStoreNotFound) {
		return ProfileStore{}, nil
	}
	return ps, err
}

// Unmarshall profile store from yaml in byte array.
func Unmarshall(buf []byte) (ProfileStore, error) {
	ret := ProfileStore{}
	if err := yaml.Unmarshal(buf, &ret); err != nil {
		return nil, err
	}
	return ret, nil
}

// Save profile store to file.
//
// The content is written to a sibling file and renamed over path,
// so readers never see a half-written store. The file is readable only by the current user.
func (ps ProfileStore) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), os.FileMode(0700)); err != nil {
		return xe.Wrap(err)
	}

	buf, err := yaml.Marshal(ps)
	if err != nil {
		return xe.Wrap(err)
	}

	tmppath := path + ".saving"
	f, err := open.NewSafeFile(tmppath)
	if err != nil {
		if os.IsPermission(err) {
			return fmt.Errorf("%w: no permission to write file at %s", ErrCannotUpdateStore, tmppath)
		}
		return xe.Wrap(err)
	}
	saved := false
	defer func() {
		if !saved {
			os.Remove(tmppath)
		}
	}()

	if _, err := f.Write(buf); err != nil {
		f.Close()
		return xe.Wrap(err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return xe.Wrap(err)
	}
	if err := f.Close(); err != nil {
		return xe.Wrap(err)
	}

	if err := os.Rename(tmppath, path); err != nil {
		return fmt.Errorf("%w: %w", ErrCannotUpdateStore, err)
	}
	saved = true

	// In case of a file system keeping the old mode, enforce 0600.
	return xe.Wrap(acl.Chmod(path, os.FileMode(0600)))
}
