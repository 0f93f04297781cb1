package rest

import (
	"context"
	"fmt"
	"net/http"

	apimodels "github.com/amrdata/amrportal/pkg/api/types/models"
)

func (c *client) ListModels(ctx context.Context) ([]apimodels.Model, error) {
	return getJson[[]apimodels.Model](
		ctx, c, c.apipath("ml_models"), []string{GroupModels}, nil,
	)
}

func (c *client) GetModel(ctx context.Context, id string) (apimodels.Model, error) {
	return getJson[apimodels.Model](
		ctx, c, c.apipath("ml_models", id), []string{GroupModels},
		MessageFor{Status4xx: fmt.Sprintf("model %s is not available", id)},
	)
}

func (c *client) Infer(ctx context.Context, id string, req apimodels.InferenceRequest) (apimodels.InferenceResult, error) {
	return sendJson[apimodels.InferenceResult](
		ctx, c, http.MethodPost, c.apipath("ml_models", id, "inference"), req,
		MessageFor{Status4xx: fmt.Sprintf("inputs are rejected by model %s", id)},
	)
}
