package datasets

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/amrdata/amrportal/cmd/amrctl/subcommands/common"
	apidatasets "github.com/amrdata/amrportal/pkg/api/types/datasets"
	apiperm "github.com/amrdata/amrportal/pkg/api/types/permissions"
	"github.com/amrdata/amrportal/pkg/access"
	"github.com/amrdata/amrportal/pkg/forms"
	"github.com/amrdata/amrportal/pkg/rest"
	"go.uber.org/zap"
)

// ErrOpenDataSet means an open dataset needs no permission.
var ErrOpenDataSet = errors.New("dataset is open. no permission is needed")

// RunRequest checks eligibility and the request form locally, then requests a permission.
//
// values carries "purpose" and "variables".
func RunRequest(
	ctx context.Context,
	logger *zap.Logger,
	client rest.AMRClient,
	id string,
	values url.Values,
	now time.Time,
	cooldown time.Duration,
) (apiperm.Permission, error) {
	ds, err := client.GetDataSet(ctx, id)
	if err != nil {
		return apiperm.Permission{}, err
	}
	if ds.Access == apidatasets.Open {
		return apiperm.Permission{}, ErrOpenDataSet
	}

	perms, err := client.MyPermissions(ctx)
	if err != nil {
		return apiperm.Permission{}, err
	}
	status := access.Current(perms, id, now)
	if err := access.CanRequest(status.State, status.DecidedAt(), now, cooldown); err != nil {
		return apiperm.Permission{}, err
	}

	var dict *apidatasets.Dictionary
	switch d, err := client.GetDictionary(ctx, id); {
	case err == nil:
		dict = &d
	case errors.Is(err, rest.ErrNotFound):
	default:
		return apiperm.Permission{}, err
	}

	req, errs := forms.ParsePermissionRequest(values, ds, dict)
	if err := common.FormError(errs); err != nil {
		return apiperm.Permission{}, err
	}

	logger.Debug("requesting access", zap.String("dataset", id), zap.Strings("variables", req.Variables))
	perm, err := client.RequestPermission(ctx, req)
	if err != nil {
		return apiperm.Permission{}, fmt.Errorf("requesting access to %s: %w", id, err)
	}
	return perm, nil
}
