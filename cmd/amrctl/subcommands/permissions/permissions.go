// Package permissions has amrctl commands to review access requests.
package permissions

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/amrdata/amrportal/cmd/amrctl/subcommands/common"
	apiperm "github.com/amrdata/amrportal/pkg/api/types/permissions"
	apiusers "github.com/amrdata/amrportal/pkg/api/types/users"
	"github.com/amrdata/amrportal/pkg/access"
	"github.com/amrdata/amrportal/pkg/cli"
	"github.com/amrdata/amrportal/pkg/forms"
	"github.com/amrdata/amrportal/pkg/rest"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func New(v *viper.Viper, env *common.Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "permissions",
		Short: "list and decide access requests",
	}
	cmd.AddCommand(newList(v, env))
	for _, a := range []access.Action{access.Approve, access.Deny, access.Revoke} {
		cmd.AddCommand(newDecide(v, env, a))
	}
	return cmd
}

func newList(v *viper.Viper, env *common.Env) *cobra.Command {
	var all bool
	var status string
	return cli.NewCommand(v, &cli.Program{
		Name:  "list",
		Short: "list your access requests, or requests of all users with --all",
		Opts: []cli.Opt{
			cli.NewOpt(&all, "all", false, "list requests of all users (admin or referee)"),
			cli.NewOpt(&status, "status", "", "requested|approved|denied|revoked. implies --all"),
		},
		Run: func(cmd *cobra.Command, _ []string) error {
			st := apiperm.Status(status)
			switch st {
			case "", apiperm.Requested, apiperm.Approved, apiperm.Denied, apiperm.Revoked:
			default:
				return fmt.Errorf("%w: unknown --status: %s", common.ErrUsage, status)
			}
			if st != "" {
				all = true
			}

			client, err := env.Client()
			if err != nil {
				return err
			}
			perms, err := RunList(cmd.Context(), client, all, st)
			if err != nil {
				return err
			}
			return common.PrintJSON(env.Stdout, perms)
		},
	})
}

func RunList(ctx context.Context, client rest.AMRClient, all bool, status apiperm.Status) ([]apiperm.Permission, error) {
	var perms []apiperm.Permission
	var err error
	if all {
		perms, err = client.FindPermissions(ctx, status)
	} else {
		perms, err = client.MyPermissions(ctx)
	}
	if err != nil {
		return nil, err
	}
	if perms == nil {
		perms = []apiperm.Permission{}
	}
	return perms, nil
}

func newDecide(v *viper.Viper, env *common.Env, action access.Action) *cobra.Command {
	var reason string
	desc := "reason told to the requester"
	if access.RequiresReason(action) {
		desc += ". required"
	}
	return cli.NewCommand(v, &cli.Program{
		Name:  string(action) + " PERMISSION_ID",
		Short: string(action) + " an access request",
		Args:  cobra.ExactArgs(1),
		Opts: []cli.Opt{
			cli.NewOpt(&reason, "reason", "", desc),
		},
		Run: func(cmd *cobra.Command, args []string) error {
			client, err := env.Client()
			if err != nil {
				return err
			}
			perm, err := RunDecide(cmd.Context(), env.Logger, client, args[0], action, reason, env.Clock())
			if err != nil {
				return err
			}
			return common.PrintJSON(env.Stdout, perm)
		},
	})
}

// RunDecide applies action to the permission id.
//
// The transition is checked against the caller's role and the current state first,
// so that a wrong decision never reaches the data API.
func RunDecide(
	ctx context.Context,
	logger *zap.Logger,
	client rest.AMRClient,
	id string,
	action access.Action,
	reason string,
	now time.Time,
) (apiperm.Permission, error) {
	decision, errs := forms.ParseDecision(url.Values{"reason": {reason}}, action)
	if err := common.FormError(errs); err != nil {
		return apiperm.Permission{}, err
	}

	me, err := client.Me(ctx)
	if err != nil {
		return apiperm.Permission{}, err
	}
	if me.Role != apiusers.RoleAdmin && me.Role != apiusers.RoleReferee {
		return apiperm.Permission{}, fmt.Errorf("%w: %s cannot %s", access.ErrForbidden, me.Role, action)
	}
	perms, err := client.FindPermissions(ctx, "")
	if err != nil {
		return apiperm.Permission{}, err
	}
	var target *apiperm.Permission
	for i := range perms {
		if perms[i].ID == id {
			target = &perms[i]
			break
		}
	}
	if target == nil {
		return apiperm.Permission{}, fmt.Errorf("%w: permission %s", rest.ErrNotFound, id)
	}

	from := access.Of(*target, now)
	to, err := access.Transition(from, action, me.Role)
	if err != nil {
		return apiperm.Permission{}, err
	}
	logger.Debug(
		"deciding", zap.String("permission", id),
		zap.String("from", string(from)), zap.String("to", string(to)),
	)

	switch action {
	case access.Approve:
		return client.ApprovePermission(ctx, id, decision)
	case access.Deny:
		return client.DenyPermission(ctx, id, decision)
	default:
		return client.RevokePermission(ctx, id, decision)
	}
}
