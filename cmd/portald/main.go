package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/amrdata/amrportal/pkg/buildtime"
	"github.com/amrdata/amrportal/pkg/cli"
	"github.com/amrdata/amrportal/pkg/utils/filewatch"
	"github.com/spf13/cobra"
)

const envPrefix = "amrportal"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, filewatch.ErrModified) {
			fmt.Fprintln(os.Stderr, "configuration is updated. quit to restart server.")
		} else {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "portald",
		Short:         "AMR data portal server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	env := cli.NewEnv(envPrefix)
	var configPath, loglevel string
	serve := cli.NewCommand(env, &cli.Program{
		Name:  "serve",
		Short: "start the portal server",
		Run: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configPath, loglevel, stderr)
		},
		Opts: []cli.Opt{
			cli.NewOpt(&configPath, "config", "/etc/amrportal/config.yaml", "path to the portal config file"),
			cli.NewOpt(&loglevel, "loglevel", "", "log level. debug|info|warn|error|off. overrides log.level of the config"),
		},
	})

	version := &cobra.Command{
		Use:   "version",
		Short: "print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "portald", buildtime.VersionString())
			return err
		},
	}

	root.AddCommand(serve, version)
	return root
}
