package portal

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/amrdata/amrportal/pkg/access"
	apierr "github.com/amrdata/amrportal/pkg/api/types/errors"
	apidatasets "github.com/amrdata/amrportal/pkg/api/types/datasets"
	apiperm "github.com/amrdata/amrportal/pkg/api/types/permissions"
	"github.com/amrdata/amrportal/pkg/dictionary"
	"github.com/amrdata/amrportal/pkg/echoutil"
	xe "github.com/amrdata/amrportal/pkg/errors"
	"github.com/amrdata/amrportal/pkg/forms"
	"github.com/amrdata/amrportal/pkg/logging"
	"github.com/amrdata/amrportal/pkg/markup"
	"github.com/amrdata/amrportal/pkg/rest"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type PageLink struct {
	Number  int
	URL     string
	Current bool
}

type CatalogueView struct {
	Query     apidatasets.Query
	Page      apidatasets.Page
	Facets    apidatasets.Facets
	Pages     int
	Links     []PageLink
	PrevURL   string
	NextURL   string
	Countries []forms.Country
}

type DataSetView struct {
	DataSet     apidatasets.Detail
	Description template.HTML
	Access      access.View
	Status      access.Status
}

type DictionaryView struct {
	DataSet  apidatasets.Detail
	Filter   dictionary.Filter
	Groups   []dictionary.TypeGroup
	Types    []string
	Summary  map[string]int
	Total    int
	Shown    int
	Selected []string
	Access   access.View
}

type RequestForm struct {
	DataSet  apidatasets.Detail
	Groups   []dictionary.TypeGroup
	Purpose  string
	Selected []string
	Errors   forms.Errors

	// Refused tells why a request cannot be made now. Empty when it can.
	Refused string
}

// maxPageLinks is how many page numbers the catalogue shows around the current page.
const maxPageLinks = 9

func pageLinks(base string, q apidatasets.Query, pages int) (links []PageLink, prev, next string) {
	urlOf := func(n int) string {
		qq := q
		qq.Page = n
		if qq.PageSize == forms.DefaultPageSize {
			qq.PageSize = 0
		}
		return base + "?" + qq.Values().Encode()
	}

	lo := max(1, q.Page-maxPageLinks/2)
	hi := min(pages, lo+maxPageLinks-1)
	lo = max(1, hi-maxPageLinks+1)
	for n := lo; n <= hi; n++ {
		links = append(links, PageLink{Number: n, URL: urlOf(n), Current: n == q.Page})
	}
	if 1 < q.Page {
		prev = urlOf(q.Page - 1)
	}
	if q.Page < pages {
		next = urlOf(q.Page + 1)
	}
	return links, prev, next
}

func (p *Portal) datasets(c echo.Context) error {
	cl, _, err := p.userClient(c)
	if err != nil {
		return err
	}
	ctx := requestContext(c)
	q := forms.ParseQuery(c.QueryParams())

	page, err := cl.FindDataSets(ctx, q)
	if err != nil {
		return err
	}
	facets, err := cl.GetFacets(ctx)
	if errors.Is(err, rest.ErrSessionExpired) {
		return err
	} else if err != nil {
		// the catalogue is still usable without select boxes.
		logging.FromContext(ctx).Warn("facets are not available", zap.Error(err))
	}

	pages := forms.Pages(page.Count, q.PageSize)
	links, prev, next := pageLinks(p.path("/datasets"), q, pages)
	return p.page(c, http.StatusOK, "datasets.html", "Datasets", CatalogueView{
		Query:     q,
		Page:      page,
		Facets:    facets,
		Pages:     pages,
		Links:     links,
		PrevURL:   prev,
		NextURL:   next,
		Countries: forms.Countries(),
	})
}

// accessOf is the access state of the user for ds.
func (p *Portal) accessOf(c echo.Context, cl rest.AMRClient, ds apidatasets.Detail) (access.Status, access.View, error) {
	now := p.opts.Now()
	status := access.Status{State: access.None}
	if ds.Access != apidatasets.Open {
		perms, err := cl.MyPermissions(requestContext(c))
		if err != nil {
			return status, access.View{}, err
		}
		status = access.Current(perms, ds.ID, now)
	}
	return status, access.ViewOf(ds.Access, status, now, p.opts.RerequestCooldown), nil
}

func (p *Portal) dataset(c echo.Context) error {
	cl, _, err := p.userClient(c)
	if err != nil {
		return err
	}
	ds, err := cl.GetDataSet(requestContext(c), c.Param("id"))
	if err != nil {
		return err
	}
	status, view, err := p.accessOf(c, cl, ds)
	if err != nil {
		return err
	}
	return p.page(c, http.StatusOK, "dataset.html", ds.Title, DataSetView{
		DataSet:     ds,
		Description: markup.Markdown(ds.Description),
		Access:      view,
		Status:      status,
	})
}

func (p *Portal) dictionary(c echo.Context) error {
	cl, _, err := p.userClient(c)
	if err != nil {
		return err
	}
	ctx := requestContext(c)
	ds, err := cl.GetDataSet(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	dict, err := cl.GetDictionary(ctx, ds.ID)
	if err != nil {
		return err
	}
	_, view, err := p.accessOf(c, cl, ds)
	if err != nil {
		return err
	}

	filter := dictionary.Filter{Search: c.QueryParam("search"), Type: c.QueryParam("type")}
	vars := filter.Apply(dict.Variables)

	selected := []string{}
	if names := c.QueryParams()["variables"]; len(names) != 0 {
		if sel, err := dictionary.ParseSelection(dict, names); err == nil {
			selected = sel.Names()
		}
	}

	return p.page(c, http.StatusOK, "dictionary.html", ds.Title+": data dictionary", DictionaryView{
		DataSet:  ds,
		Filter:   filter,
		Groups:   dictionary.Group(vars),
		Types:    dictionary.Types(dict),
		Summary:  dictionary.Summarize(dict),
		Total:    len(dict.Variables),
		Shown:    len(vars),
		Selected: selected,
		Access:   view,
	})
}

// requestState loads what the request form needs. The dictionary is nil for open datasets.
func (p *Portal) requestState(c echo.Context) (rest.AMRClient, *RequestForm, *apidatasets.Dictionary, error) {
	cl, _, err := p.userClient(c)
	if err != nil {
		return nil, nil, nil, err
	}
	ctx := requestContext(c)
	ds, err := cl.GetDataSet(ctx, c.Param("id"))
	if err != nil {
		return nil, nil, nil, err
	}
	if ds.Access == apidatasets.Open {
		return cl, &RequestForm{DataSet: ds}, nil, nil
	}

	dict, err := cl.GetDictionary(ctx, ds.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	status, _, err := p.accessOf(c, cl, ds)
	if err != nil {
		return nil, nil, nil, err
	}

	form := &RequestForm{
		DataSet:  ds,
		Groups:   dictionary.Group(dict.Variables),
		Selected: []string{},
	}
	if err := access.CanRequest(status.State, status.DecidedAt(), p.opts.Now(), p.opts.RerequestCooldown); err != nil {
		form.Refused = refusal(err)
	}
	return cl, form, &dict, nil
}

func refusal(err error) string {
	var ne *access.NotEligibleError
	if !errors.As(err, &ne) {
		return "You cannot request access now."
	}
	switch ne.State {
	case access.Requested:
		return "You have already requested access. Your request is waiting for review."
	case access.Approved:
		return "You already have access to this dataset."
	case access.Denied:
		return fmt.Sprintf("Your request was denied. You can request again in %s.", ne.Wait.Round(time.Minute))
	}
	return "You cannot request access now."
}

func (p *Portal) requestPage(c echo.Context) error {
	_, form, _, err := p.requestState(c)
	if err != nil {
		return err
	}
	if form.DataSet.Access == apidatasets.Open {
		return p.redirectWithFlash(
			c, p.path("/datasets/"+url.PathEscape(form.DataSet.ID)),
			FlashInfo, "This dataset is open access. No request is needed.",
		)
	}
	if names := c.QueryParams()["variables"]; len(names) != 0 {
		form.Selected = names
	}
	status := http.StatusOK
	if form.Refused != "" {
		status = http.StatusConflict
	}
	return p.page(c, status, "request.html", "Request access: "+form.DataSet.Title, form)
}

func (p *Portal) request(c echo.Context) error {
	cl, form, dict, err := p.requestState(c)
	if err != nil {
		return err
	}
	dsPath := p.path("/datasets/" + url.PathEscape(form.DataSet.ID))
	if form.DataSet.Access == apidatasets.Open {
		return p.redirectWithFlash(c, dsPath, FlashInfo, "This dataset is open access. No request is needed.")
	}
	title := "Request access: " + form.DataSet.Title
	if form.Refused != "" {
		return p.page(c, http.StatusConflict, "request.html", title, form)
	}

	values, err := c.FormParams()
	if err != nil {
		return xe.Wrap(err)
	}
	form.Purpose = values.Get("purpose")
	form.Selected = values["variables"]

	req, errs := forms.ParsePermissionRequest(values, form.DataSet, dict)
	if errs.Err() != nil {
		form.Errors = errs
		return p.page(c, http.StatusBadRequest, "request.html", title, form)
	}

	if _, err := cl.RequestPermission(requestContext(c), req); err != nil {
		ae, ok := rest.AsAPIError(err)
		switch {
		case errors.Is(err, rest.ErrConflict):
			form.Refused = "You have already requested access. Your request is waiting for review."
			return p.page(c, http.StatusConflict, "request.html", title, form)
		case ok && errors.Is(err, rest.ErrInvalidInput):
			form.Errors = forms.Errors{}
			form.Errors.Merge(ae.FieldMessages())
			if len(form.Errors) == 0 {
				form.Errors.Add("purpose", ae.Error())
			}
			return p.page(c, http.StatusBadRequest, "request.html", title, form)
		}
		return err
	}

	return p.redirectWithFlash(
		c, p.path("/permissions"), FlashSuccess,
		"Your request for "+form.DataSet.Title+" is submitted. You will be notified when it is reviewed.",
	)
}

func (p *Portal) download(c echo.Context) error {
	cl, _, err := p.userClient(c)
	if err != nil {
		return err
	}
	ctx := requestContext(c)
	ds, err := cl.GetDataSet(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	status, view, err := p.accessOf(c, cl, ds)
	if err != nil {
		return err
	}
	if !view.CanDownload {
		return apierr.Forbidden("you need an approved permission to download this dataset.", nil)
	}

	// an approval naming no variables covers the whole dataset.
	var approved []string
	if ds.Access != apidatasets.Open && status.Permission != nil {
		approved = status.Permission.Variables
	}

	var variables []string
	if names := c.QueryParams()["variables"]; len(names) != 0 || len(approved) != 0 {
		dict, err := cl.GetDictionary(ctx, ds.ID)
		if err != nil {
			return err
		}
		if variables, err = downloadSelection(dict, names, approved); err != nil {
			return err
		}
	}

	return cl.DownloadDataSet(ctx, ds.ID, variables, func(resp *http.Response) error {
		if resp.Header.Get(echo.HeaderContentDisposition) == "" {
			resp.Header.Set(
				echo.HeaderContentDisposition,
				`attachment; filename="`+downloadName(ds)+`"`,
			)
		}
		return echoutil.CopyResponse(c, resp, echoutil.DownloadHeaders...)
	})
}

// downloadSelection is names in dictionary order, or every approved variable when names is empty.
//
// When approved is not empty, names out of it are refused.
func downloadSelection(dict apidatasets.Dictionary, names, approved []string) ([]string, error) {
	if len(names) == 0 {
		sel := dictionary.NewSelection(dict)
		sel.SelectAll(slices.DeleteFunc(slices.Clone(dict.Variables), func(v apidatasets.Variable) bool {
			return !slices.Contains(approved, v.Name)
		}))
		if sel.Len() == 0 {
			return nil, apierr.Forbidden("none of the approved variables is in the data dictionary.", nil)
		}
		return sel.Names(), nil
	}

	sel, err := dictionary.ParseSelection(dict, names)
	if err != nil {
		return nil, apierr.BadRequest("select variables from the data dictionary.", err)
	}
	if len(approved) != 0 {
		if out := sel.Outside(approved); len(out) != 0 {
			return nil, apierr.Forbidden(
				"your permission does not cover "+strings.Join(out, ", ")+". request access to them first.", nil,
			)
		}
	}
	return sel.Names(), nil
}

func downloadName(ds apidatasets.Detail) string {
	return "dataset-" + url.PathEscape(ds.ID) + ".csv"
}

func (p *Portal) myPermissions(c echo.Context) error {
	cl, _, err := p.userClient(c)
	if err != nil {
		return err
	}
	perms, err := cl.MyPermissions(requestContext(c))
	if err != nil {
		return err
	}
	return p.page(c, http.StatusOK, "permissions.html", "My requests", p.permissionRows(perms, ""))
}

// PermissionRow is a permission with its effective state.
type PermissionRow struct {
	Permission apiperm.Permission
	State      access.State
	View       access.View

	// Actions are what the viewer may do with it.
	Actions []access.Action
}
