// Package auth has the login and logout commands of amrctl.
package auth

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/amrdata/amrportal/cmd/amrctl/subcommands/common"
	apiusers "github.com/amrdata/amrportal/pkg/api/types/users"
	"github.com/amrdata/amrportal/pkg/cli"
	"github.com/amrdata/amrportal/pkg/configs/profiles"
	"github.com/amrdata/amrportal/pkg/forms"
	"github.com/amrdata/amrportal/pkg/rest"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ReadPassword reads the first line of r.
func ReadPassword(r io.Reader) (string, error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("%w: password is not given on stdin", common.ErrUsage)
	}
	pw := strings.TrimRight(sc.Text(), "\r")
	if pw == "" {
		return "", fmt.Errorf("%w: password is empty", common.ErrUsage)
	}
	return pw, nil
}

// RunLogin exchanges cred for a token.
func RunLogin(ctx context.Context, logger *zap.Logger, client rest.AMRClient, cred apiusers.Credentials) (apiusers.Token, error) {
	tok, err := client.Login(ctx, cred)
	if err != nil {
		return apiusers.Token{}, err
	}
	if tok.AccessToken == "" {
		return apiusers.Token{}, errors.New("data API returned no access token")
	}
	logger.Debug("logged in", zap.String("user", tok.User.ID), zap.String("role", string(tok.User.Role)))
	return tok, nil
}

// profileFor is the profile to log in with.
//
// With apiRoot, the profile is created or pointed at apiRoot. Otherwise it should exist.
func profileFor(ps profiles.ProfileStore, name, apiRoot, cacert string) (*profiles.Profile, error) {
	p := ps[name]
	if apiRoot != "" {
		np := &profiles.Profile{ApiRoot: apiRoot}
		if p != nil && p.ApiRoot == apiRoot {
			np.Cert = p.Cert
		}
		p = np
	}
	if p == nil {
		return nil, fmt.Errorf(
			"%w: profile %q is not found. give --api-root to create it", common.ErrUsage, name,
		)
	}
	if cacert != "" {
		pem, err := os.ReadFile(cacert)
		if err != nil {
			return nil, fmt.Errorf("%w: cannot read --cacert: %s", common.ErrUsage, err)
		}
		p.Cert.CA = base64.StdEncoding.EncodeToString(pem)
	}
	if err := p.Verify(); err != nil {
		return nil, err
	}
	return p, nil
}

func NewLogin(v *viper.Viper, env *common.Env) *cobra.Command {
	var apiRoot, email, cacert string
	return cli.NewCommand(v, &cli.Program{
		Name:  "login",
		Short: "log in to the data API. the password is read from stdin",
		Opts: []cli.Opt{
			cli.NewOpt(&apiRoot, "api-root", "", "root URL of the data API. creates or updates the profile"),
			cli.NewOpt(&email, "email", "", "email address of your account"),
			cli.NewOpt(&cacert, "cacert", "", "PEM file of a CA certificate to be trusted"),
		},
		Run: func(cmd *cobra.Command, _ []string) error {
			if !forms.ValidEmail(email) {
				return fmt.Errorf("%w: --email should be an email address", common.ErrUsage)
			}
			ps, err := env.Store()
			if err != nil {
				return err
			}
			p, err := profileFor(ps, env.Profile, apiRoot, cacert)
			if err != nil {
				return err
			}
			password, err := ReadPassword(env.Stdin)
			if err != nil {
				return err
			}
			client, err := env.NewClient(p)
			if err != nil {
				return err
			}

			tok, err := RunLogin(cmd.Context(), env.Logger, client, apiusers.Credentials{Email: email, Password: password})
			if err != nil {
				return err
			}
			p.Token = tok.AccessToken
			ps[env.Profile] = p
			if err := ps.Save(env.StorePath); err != nil {
				return err
			}
			_, err = fmt.Fprintf(env.Stdout, "logged in as %s (%s)\n", tok.User.Name(), tok.User.Role)
			return err
		},
	})
}

func NewLogout(v *viper.Viper, env *common.Env) *cobra.Command {
	return cli.NewCommand(v, &cli.Program{
		Name:  "logout",
		Short: "revoke the access token of the profile",
		Run: func(cmd *cobra.Command, _ []string) error {
			client, p, ps, err := env.Anonymous()
			if err != nil {
				return err
			}
			if p.Token == "" {
				_, err := fmt.Fprintln(env.Stdout, "not logged in")
				return err
			}

			// an expired token is as good as revoked.
			if err := client.WithToken(p.Token).Logout(cmd.Context()); err != nil && !errors.Is(err, rest.ErrSessionExpired) {
				return err
			}
			p.Token = ""
			if err := ps.Save(env.StorePath); err != nil {
				return err
			}
			_, err = fmt.Fprintln(env.Stdout, "logged out")
			return err
		},
	})
}
