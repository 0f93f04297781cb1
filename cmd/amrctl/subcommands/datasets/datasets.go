// Package datasets has amrctl commands for the dataset catalogue.
package datasets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/amrdata/amrportal/cmd/amrctl/subcommands/common"
	apidatasets "github.com/amrdata/amrportal/pkg/api/types/datasets"
	"github.com/amrdata/amrportal/pkg/access"
	"github.com/amrdata/amrportal/pkg/cli"
	"github.com/amrdata/amrportal/pkg/dictionary"
	"github.com/amrdata/amrportal/pkg/forms"
	"github.com/amrdata/amrportal/pkg/rest"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// New is "amrctl datasets".
func New(v *viper.Viper, env *common.Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "datasets",
		Short: "find, show, download datasets and request access to them",
	}
	cmd.AddCommand(
		newFind(v, env),
		newShow(v, env),
		newDownload(v, env),
		newRequest(v, env),
	)
	return cmd
}

func newFind(v *viper.Viper, env *common.Env) *cobra.Command {
	var search, category, thematicArea, studyDesign, country, accessType string
	var page, pageSize int
	return cli.NewCommand(v, &cli.Program{
		Name:  "find",
		Short: "search the dataset catalogue",
		Opts: []cli.Opt{
			cli.NewOpt(&search, "search", "", "free text search"),
			cli.NewOpt(&category, "category", "", "category of datasets"),
			cli.NewOpt(&thematicArea, "thematic-area", "", "thematic area of datasets"),
			cli.NewOpt(&studyDesign, "study-design", "", "study design of datasets"),
			cli.NewOpt(&country, "country", "", "ISO 3166-1 alpha-2 country code"),
			cli.NewOpt(&accessType, "access", "", "open|restricted"),
			cli.NewOpt(&page, "page", 1, "page number"),
			cli.NewOpt(&pageSize, "page-size", forms.DefaultPageSize, "datasets per page"),
		},
		Run: func(cmd *cobra.Command, _ []string) error {
			if accessType != "" && accessType != string(apidatasets.Open) && accessType != string(apidatasets.Restricted) {
				return fmt.Errorf("%w: --access should be open or restricted", common.ErrUsage)
			}
			country = strings.ToUpper(country)
			if country != "" && !forms.ValidCountry(country) {
				return fmt.Errorf("%w: unknown country: %s", common.ErrUsage, country)
			}
			q := forms.ParseQuery(url.Values{
				"search":        {search},
				"category":      {category},
				"thematic_area": {thematicArea},
				"study_design":  {studyDesign},
				"country":       {country},
				"access":        {accessType},
				"page":          {strconv.Itoa(page)},
				"page_size":     {strconv.Itoa(pageSize)},
			})

			client, err := env.Client()
			if err != nil {
				return err
			}
			result, err := RunFind(cmd.Context(), env.Logger, client, q)
			if err != nil {
				return err
			}
			return common.PrintJSON(env.Stdout, result)
		},
	})
}

// Found is a page of the catalogue with paging figures.
type Found struct {
	Count    int                   `json:"count"`
	Page     int                   `json:"page"`
	Pages    int                   `json:"pages"`
	Datasets []apidatasets.Summary `json:"datasets"`
}

func RunFind(ctx context.Context, logger *zap.Logger, client rest.AMRClient, q apidatasets.Query) (Found, error) {
	logger.Debug("finding datasets", zap.Any("query", q.Values()))
	page, err := client.FindDataSets(ctx, q)
	if err != nil {
		return Found{}, err
	}
	ds := page.Results
	if ds == nil {
		ds = []apidatasets.Summary{}
	}
	return Found{
		Count:    page.Count,
		Page:     q.Page,
		Pages:    forms.Pages(page.Count, q.PageSize),
		Datasets: ds,
	}, nil
}

// AccessState is the caller's access to a dataset.
type AccessState struct {
	State       access.State `json:"state"`
	CanRequest  bool         `json:"can_request"`
	CanDownload bool         `json:"can_download"`
	Note        string       `json:"note,omitempty"`
}

// Shown is a dataset with the caller's access to it.
type Shown struct {
	apidatasets.Detail
	Variables map[string]int `json:"variables,omitempty"`
	State     AccessState    `json:"access_state"`
}

func newShow(v *viper.Viper, env *common.Env) *cobra.Command {
	return cli.NewCommand(v, &cli.Program{
		Name:  "show DATASET_ID",
		Short: "show a dataset and your access to it",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) error {
			client, err := env.Client()
			if err != nil {
				return err
			}
			shown, err := RunShow(cmd.Context(), env.Logger, client, args[0], env.Clock())
			if err != nil {
				return err
			}
			return common.PrintJSON(env.Stdout, shown)
		},
	})
}

// RunShow gets a dataset, counts its variables by type and works out the caller's access.
//
// Permissions of the caller are looked up only for restricted datasets.
func RunShow(ctx context.Context, logger *zap.Logger, client rest.AMRClient, id string, now time.Time) (Shown, error) {
	ds, err := client.GetDataSet(ctx, id)
	if err != nil {
		return Shown{}, err
	}
	shown := Shown{Detail: ds}

	dict, err := client.GetDictionary(ctx, id)
	switch {
	case err == nil:
		shown.Variables = dictionary.Summarize(dict)
	case errors.Is(err, rest.ErrNotFound):
		logger.Debug("dataset has no dictionary", zap.String("dataset", id))
	default:
		return Shown{}, err
	}

	status := access.Status{State: access.None}
	if ds.Access == apidatasets.Restricted {
		perms, err := client.MyPermissions(ctx)
		if err != nil {
			return Shown{}, err
		}
		status = access.Current(perms, id, now)
	}
	view := access.ViewOf(ds.Access, status, now, 0)
	shown.State = AccessState{
		State:       status.State,
		CanRequest:  view.CanRequest,
		CanDownload: view.CanDownload,
		Note:        view.Note,
	}
	return shown, nil
}

func newDownload(v *viper.Viper, env *common.Env) *cobra.Command {
	var variables []string
	var output string
	return cli.NewCommand(v, &cli.Program{
		Name:  "download DATASET_ID",
		Short: "download a dataset to a file or stdout",
		Args:  cobra.ExactArgs(1),
		Opts: []cli.Opt{
			cli.NewOpt(&variables, "variable", nil, "variable to be included. repeatable. all permitted variables by default"),
			cli.NewOpt(&output, "output", "", "file to write. stdout if empty"),
		},
		Run: func(cmd *cobra.Command, args []string) error {
			client, err := env.Client()
			if err != nil {
				return err
			}

			var w io.Writer = env.Stdout
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			n, err := RunDownload(cmd.Context(), env.Logger, client, args[0], variables, w)
			if err != nil {
				if output != "" {
					os.Remove(output)
				}
				return err
			}
			if output != "" {
				fmt.Fprintf(env.Stderr, "saved %s to %s\n", humanize.Bytes(uint64(n)), output)
			}
			return nil
		},
	})
}

// RunDownload copies a dataset into w and returns the number of bytes written.
func RunDownload(ctx context.Context, logger *zap.Logger, client rest.AMRClient, id string, variables []string, w io.Writer) (int64, error) {
	var n int64
	err := client.DownloadDataSet(ctx, id, variables, func(resp *http.Response) error {
		logger.Debug(
			"downloading", zap.String("dataset", id),
			zap.String("content-type", resp.Header.Get("Content-Type")),
		)
		var err error
		n, err = io.Copy(w, resp.Body)
		return err
	})
	return n, err
}

func newRequest(v *viper.Viper, env *common.Env) *cobra.Command {
	var purpose string
	var variables []string
	var cooldown time.Duration
	return cli.NewCommand(v, &cli.Program{
		Name:  "request DATASET_ID",
		Short: "request access to a restricted dataset",
		Args:  cobra.ExactArgs(1),
		Opts: []cli.Opt{
			cli.NewOpt(&purpose, "purpose", "", "what you will use the dataset for"),
			cli.NewOpt(&variables, "variable", nil, "variable you need. repeatable"),
			cli.NewOpt(&cooldown, "cooldown", time.Duration(0), "wait after a denial before requesting again"),
		},
		Run: func(cmd *cobra.Command, args []string) error {
			client, err := env.Client()
			if err != nil {
				return err
			}
			perm, err := RunRequest(
				cmd.Context(), env.Logger, client, args[0],
				url.Values{"purpose": {purpose}, "variables": variables},
				env.Clock(), cooldown,
			)
			if err != nil {
				return err
			}
			return common.PrintJSON(env.Stdout, perm)
		},
	})
}
