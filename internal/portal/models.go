package portal

import (
	"errors"
	"html/template"
	"math"
	"net/http"
	"net/url"
	"sort"

	apimodels "github.com/amrdata/amrportal/pkg/api/types/models"
	xe "github.com/amrdata/amrportal/pkg/errors"
	"github.com/amrdata/amrportal/pkg/forms"
	"github.com/amrdata/amrportal/pkg/markup"
	"github.com/amrdata/amrportal/pkg/rest"
	"github.com/labstack/echo/v4"
)

type ModelView struct {
	Model       apimodels.Model
	Description template.HTML
	Values      url.Values
	Errors      forms.Errors
	Message     string

	// Result is set after a successful inference.
	Result        *apimodels.InferenceResult
	Contributions []Contribution
}

// Contribution is one feature of an explanation.
type Contribution struct {
	Name  string
	Label string
	Value float64
}

// contributions orders the explanation by absolute value, largest first.
func contributions(fields []apimodels.Field, expl map[string]float64) []Contribution {
	labels := map[string]string{}
	for _, f := range fields {
		labels[f.Name] = f.Label
	}
	ret := make([]Contribution, 0, len(expl))
	for name, v := range expl {
		label := labels[name]
		if label == "" {
			label = name
		}
		ret = append(ret, Contribution{Name: name, Label: label, Value: v})
	}
	sort.Slice(ret, func(i, j int) bool {
		ai, aj := math.Abs(ret[i].Value), math.Abs(ret[j].Value)
		if ai != aj {
			return ai > aj
		}
		return ret[i].Name < ret[j].Name
	})
	return ret
}

func (p *Portal) models(c echo.Context) error {
	cl, _, err := p.userClient(c)
	if err != nil {
		return err
	}
	models, err := cl.ListModels(requestContext(c))
	if err != nil {
		return err
	}
	sort.SliceStable(models, func(i, j int) bool { return models[i].Name < models[j].Name })
	return p.page(c, http.StatusOK, "models.html", "Prediction models", models)
}

func (p *Portal) model(c echo.Context) error {
	cl, _, err := p.userClient(c)
	if err != nil {
		return err
	}
	m, err := cl.GetModel(requestContext(c), c.Param("id"))
	if err != nil {
		return err
	}
	return p.page(c, http.StatusOK, "model.html", m.Name, ModelView{
		Model:       m,
		Description: markup.Markdown(m.Description),
		Values:      url.Values{},
	})
}

func (p *Portal) infer(c echo.Context) error {
	cl, _, err := p.userClient(c)
	if err != nil {
		return err
	}
	ctx := requestContext(c)
	m, err := cl.GetModel(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	values, err := c.FormParams()
	if err != nil {
		return xe.Wrap(err)
	}
	view := ModelView{Model: m, Description: markup.Markdown(m.Description), Values: values}

	inputs, errs := forms.ParseInference(m.Inputs, values)
	if errs.Err() != nil {
		view.Errors = errs
		return p.page(c, http.StatusBadRequest, "model.html", m.Name, view)
	}

	res, err := cl.Infer(ctx, m.ID, apimodels.InferenceRequest{Inputs: inputs})
	if err != nil {
		ae, ok := rest.AsAPIError(err)
		if !ok || !errors.Is(err, rest.ErrInvalidInput) {
			return err
		}
		view.Errors = forms.Errors{}
		view.Errors.Merge(ae.FieldMessages())
		if len(view.Errors) == 0 {
			view.Message = ae.Error()
		}
		return p.page(c, http.StatusBadRequest, "model.html", m.Name, view)
	}

	view.Result = &res
	view.Contributions = contributions(m.Inputs, res.Explanation)
	return p.page(c, http.StatusOK, "model.html", m.Name, view)
}
