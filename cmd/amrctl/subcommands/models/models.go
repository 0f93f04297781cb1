// Package models has amrctl commands to run prediction models.
package models

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/amrdata/amrportal/cmd/amrctl/subcommands/common"
	apimodels "github.com/amrdata/amrportal/pkg/api/types/models"
	"github.com/amrdata/amrportal/pkg/cli"
	"github.com/amrdata/amrportal/pkg/forms"
	"github.com/amrdata/amrportal/pkg/rest"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func New(v *viper.Viper, env *common.Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "list prediction models and run them",
	}

	list := cli.NewCommand(v, &cli.Program{
		Name:  "list",
		Short: "list prediction models",
		Run: func(cmd *cobra.Command, _ []string) error {
			client, err := env.Client()
			if err != nil {
				return err
			}
			ms, err := client.ListModels(cmd.Context())
			if err != nil {
				return err
			}
			if ms == nil {
				ms = []apimodels.Model{}
			}
			return common.PrintJSON(env.Stdout, ms)
		},
	})

	show := cli.NewCommand(v, &cli.Program{
		Name:  "show MODEL_ID",
		Short: "show a model and its inputs",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) error {
			client, err := env.Client()
			if err != nil {
				return err
			}
			m, err := client.GetModel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return common.PrintJSON(env.Stdout, m)
		},
	})

	infer := cli.NewCommand(v, &cli.Program{
		Name:  "infer MODEL_ID [NAME=VALUE...]",
		Short: "run a model with inputs",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) error {
			values, err := ParseInputs(args[1:])
			if err != nil {
				return err
			}
			client, err := env.Client()
			if err != nil {
				return err
			}
			result, err := RunInfer(cmd.Context(), env.Logger, client, args[0], values)
			if err != nil {
				return err
			}
			return common.PrintJSON(env.Stdout, result)
		},
	})

	cmd.AddCommand(list, show, infer)
	return cmd
}

// ParseInputs reads NAME=VALUE pairs. A name may be repeated; the first value wins.
func ParseInputs(args []string) (url.Values, error) {
	v := url.Values{}
	for _, a := range args {
		name, value, ok := strings.Cut(a, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: input should be NAME=VALUE: %s", common.ErrUsage, a)
		}
		v.Add(name, value)
	}
	return v, nil
}

// RunInfer validates values against the model inputs, then runs the model.
func RunInfer(ctx context.Context, logger *zap.Logger, client rest.AMRClient, id string, values url.Values) (apimodels.InferenceResult, error) {
	m, err := client.GetModel(ctx, id)
	if err != nil {
		return apimodels.InferenceResult{}, err
	}

	known := map[string]bool{}
	for _, f := range m.Inputs {
		known[f.Name] = true
	}
	for name := range values {
		if !known[name] {
			return apimodels.InferenceResult{}, fmt.Errorf("%w: model %s has no input %q", common.ErrUsage, id, name)
		}
	}

	inputs, errs := forms.ParseInference(m.Inputs, values)
	if err := common.FormError(errs); err != nil {
		return apimodels.InferenceResult{}, err
	}
	logger.Debug("running model", zap.String("model", id), zap.Int("inputs", len(inputs)))
	return client.Infer(ctx, id, apimodels.InferenceRequest{Inputs: inputs})
}
