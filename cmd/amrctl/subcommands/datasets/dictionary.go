package datasets

import (
	"context"

	"github.com/amrdata/amrportal/cmd/amrctl/subcommands/common"
	apidatasets "github.com/amrdata/amrportal/pkg/api/types/datasets"
	"github.com/amrdata/amrportal/pkg/cli"
	"github.com/amrdata/amrportal/pkg/dictionary"
	"github.com/amrdata/amrportal/pkg/rest"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewDictionary is "amrctl dictionary".
func NewDictionary(v *viper.Viper, env *common.Env) *cobra.Command {
	var search, typ string
	return cli.NewCommand(v, &cli.Program{
		Name:  "dictionary DATASET_ID",
		Short: "list variables of a dataset",
		Args:  cobra.ExactArgs(1),
		Opts: []cli.Opt{
			cli.NewOpt(&search, "search", "", "text to be found in name, label or description"),
			cli.NewOpt(&typ, "type", "", "variable type"),
		},
		Run: func(cmd *cobra.Command, args []string) error {
			client, err := env.Client()
			if err != nil {
				return err
			}
			vars, err := RunDictionary(cmd.Context(), client, args[0], dictionary.Filter{Search: search, Type: typ})
			if err != nil {
				return err
			}
			return common.PrintJSON(env.Stdout, vars)
		},
	})
}

func RunDictionary(ctx context.Context, client rest.AMRClient, id string, f dictionary.Filter) ([]apidatasets.Variable, error) {
	dict, err := client.GetDictionary(ctx, id)
	if err != nil {
		return nil, err
	}
	return f.Apply(dict.Variables), nil
}
