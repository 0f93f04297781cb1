package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	apidatasets "github.com/amrdata/amrportal/pkg/api/types/datasets"
)

func (c *client) FindDataSets(ctx context.Context, query apidatasets.Query) (apidatasets.Page, error) {
	return getJson[apidatasets.Page](
		ctx, c, withQuery(c.apipath("data_sets"), query.Values()),
		[]string{GroupDataSets},
		MessageFor{
			Status4xx: "catalogue query is rejected",
		},
	)
}

func (c *client) GetDataSet(ctx context.Context, id string) (apidatasets.Detail, error) {
	return getJson[apidatasets.Detail](
		ctx, c, c.apipath("data_sets", id),
		[]string{GroupDataSets, GroupDataSet(id)},
		MessageFor{
			Status4xx: fmt.Sprintf("dataset %s is not available", id),
		},
	)
}

func (c *client) GetFacets(ctx context.Context) (apidatasets.Facets, error) {
	return getJson[apidatasets.Facets](
		ctx, c, c.apipath("data_sets", "facets"), []string{GroupDataSets}, nil,
	)
}

func (c *client) GetDictionary(ctx context.Context, id string) (apidatasets.Dictionary, error) {
	return getJson[apidatasets.Dictionary](
		ctx, c, c.apipath("data_sets", id, "dictionary"),
		[]string{GroupDataSet(id)},
		MessageFor{
			Status4xx: fmt.Sprintf("data dictionary of dataset %s is not available", id),
		},
	)
}

func (c *client) DownloadDataSet(ctx context.Context, id string, variables []string, handler func(*http.Response) error) error {
	q := url.Values{}
	if len(variables) != 0 {
		q.Set("variables", strings.Join(variables, ","))
	}
	req, err := c.newRequest(ctx, http.MethodGet, withQuery(c.apipath("data_sets", id, "download"), q), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "*/*")

	resp, err := c.httpclient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if StatusCodeRangeOf(resp) != Status2xx {
		return errorFromResponse(resp, MessageFor{
			Status4xx: fmt.Sprintf("dataset %s cannot be downloaded", id),
		})
	}
	return handler(resp)
}
