package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/amrdata/amrportal/cmd/amrctl/subcommands/auth"
	"github.com/amrdata/amrportal/cmd/amrctl/subcommands/common"
	"github.com/amrdata/amrportal/cmd/amrctl/subcommands/datasets"
	"github.com/amrdata/amrportal/cmd/amrctl/subcommands/models"
	"github.com/amrdata/amrportal/cmd/amrctl/subcommands/permissions"
	"github.com/amrdata/amrportal/pkg/buildtime"
	"github.com/amrdata/amrportal/pkg/cli"
	"github.com/amrdata/amrportal/pkg/configs/profiles"
	"github.com/amrdata/amrportal/pkg/logging"
	"github.com/amrdata/amrportal/pkg/rest"
	"github.com/spf13/cobra"
)

const envPrefix = "amrctl"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := &common.Env{
		Stdin:     os.Stdin,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
		NewClient: common.DefaultNewClient,
	}
	root := newRootCommand(env)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		switch {
		case errors.Is(err, common.ErrUsage):
			os.Exit(2)
		case errors.Is(err, rest.ErrSessionExpired):
			fmt.Fprintln(os.Stderr, "log in again with `amrctl login`.")
		}
		os.Exit(1)
	}
}

func newRootCommand(env *common.Env) *cobra.Command {
	root := &cobra.Command{
		Use:           "amrctl",
		Short:         "command line client of the AMR data API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(env.Stdin)
	root.SetOut(env.Stdout)
	root.SetErr(env.Stderr)

	defaultStore, err := profiles.DefaultPath()
	if err != nil {
		defaultStore = ".amrctl/profiles.yaml"
	}

	v := cli.NewEnv(envPrefix)
	var loglevel string
	cli.BindPersistentOptions(v, root, []cli.Opt{
		cli.NewOpt(&env.Profile, "profile", "default", "name of the connection profile"),
		cli.NewOpt(&env.StorePath, "profile-store", defaultStore, "file of the profile store"),
		cli.NewOpt(&loglevel, "loglevel", "warn", "log level. debug|info|warn|error|off"),
	})
	root.PersistentPreRunE = func(*cobra.Command, []string) error {
		if _, ok := logging.ParseLevel(loglevel); !ok {
			return fmt.Errorf("%w: unknown --loglevel: %s", common.ErrUsage, loglevel)
		}
		env.Logger = logging.New(env.Stderr, loglevel)
		return nil
	}

	version := &cobra.Command{
		Use:   "version",
		Short: "print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "amrctl", buildtime.VersionString())
			return err
		},
	}

	root.AddCommand(
		auth.NewLogin(v, env),
		auth.NewLogout(v, env),
		datasets.New(v, env),
		datasets.NewDictionary(v, env),
		permissions.New(v, env),
		models.New(v, env),
		version,
	)
	return root
}
