package portal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	apierr "github.com/amrdata/amrportal/pkg/api/types/errors"
	apires "github.com/amrdata/amrportal/pkg/api/types/resistance"
	"github.com/amrdata/amrportal/pkg/forms"
	"github.com/amrdata/amrportal/pkg/viz/chart"
	"github.com/amrdata/amrportal/pkg/viz/choropleth"
	"github.com/labstack/echo/v4"
)

const (
	mimeSVG     = "image/svg+xml"
	mimeGeoJSON = "application/geo+json"

	defaultTopCountries = 10
	maxTopCountries     = 50
)

type TrendsView struct {
	Options  apires.Options
	Query    apires.TrendQuery
	ChartURL string
}

type MapView struct {
	Options           apires.Options
	Query             apires.MapQuery
	Available         bool
	MapURL            string
	GeoJSONURL        string
	CountriesChartURL string
	Legend            []choropleth.LegendEntry
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

// parseTrendQuery reads organism, antibiotic, country (repeated), from and to.
func parseTrendQuery(v url.Values) apires.TrendQuery {
	q := apires.TrendQuery{
		Organism:   strings.TrimSpace(v.Get("organism")),
		Antibiotic: strings.TrimSpace(v.Get("antibiotic")),
		From:       atoi(v.Get("from")),
		To:         atoi(v.Get("to")),
	}
	for _, c := range v["country"] {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c != "" && !slices.Contains(q.Countries, c) {
			q.Countries = append(q.Countries, c)
		}
	}
	if 0 < q.From && 0 < q.To && q.To < q.From {
		q.From, q.To = q.To, q.From
	}
	return q
}

func parseMapQuery(v url.Values) apires.MapQuery {
	return apires.MapQuery{
		Organism:   strings.TrimSpace(v.Get("organism")),
		Antibiotic: strings.TrimSpace(v.Get("antibiotic")),
		Year:       atoi(v.Get("year")),
	}
}

func first[T any](s []T) T {
	var zero T
	if len(s) == 0 {
		return zero
	}
	return s[0]
}

func (p *Portal) trendsPage(c echo.Context) error {
	cl, _, err := p.userClient(c)
	if err != nil {
		return err
	}
	opts, err := cl.GetResistanceOptions(requestContext(c))
	if err != nil {
		return err
	}
	q := parseTrendQuery(c.QueryParams())
	if q.Organism == "" {
		q.Organism = first(opts.Organisms)
	}
	if q.Antibiotic == "" {
		q.Antibiotic = first(opts.Antibiotics)
	}
	return p.page(c, http.StatusOK, "trends.html", "Resistance trends", TrendsView{
		Options:  opts,
		Query:    q,
		ChartURL: p.path("/api/charts/trend.svg") + "?" + q.Values().Encode(),
	})
}

func (p *Portal) mapPage(c echo.Context) error {
	cl, _, err := p.userClient(c)
	if err != nil {
		return err
	}
	opts, err := cl.GetResistanceOptions(requestContext(c))
	if err != nil {
		return err
	}
	q := parseMapQuery(c.QueryParams())
	if q.Organism == "" {
		q.Organism = first(opts.Organisms)
	}
	if q.Antibiotic == "" {
		q.Antibiotic = first(opts.Antibiotics)
	}
	if q.Year == 0 && len(opts.Years) != 0 {
		q.Year = slices.Max(opts.Years)
	}
	enc := q.Values().Encode()
	return p.page(c, http.StatusOK, "map.html", "Resistance map", MapView{
		Options:           opts,
		Query:             q,
		Available:         p.opts.Map.Features != nil,
		MapURL:            p.path("/api/map.svg") + "?" + enc,
		GeoJSONURL:        p.path("/api/map.geojson") + "?" + enc,
		CountriesChartURL: p.path("/api/charts/countries.svg") + "?" + enc,
		Legend:            choropleth.Legend(p.opts.Map.Scale),
	})
}

func requireSubject(organism, antibiotic string) error {
	if organism == "" || antibiotic == "" {
		return apierr.BadRequest("organism and antibiotic are required.", nil)
	}
	return nil
}

// svg answers an image. A chart without data becomes a placeholder saying so.
func svg(c echo.Context, width, height int, render func(*bytes.Buffer) error) error {
	buf := new(bytes.Buffer)
	err := render(buf)
	if errors.Is(err, chart.ErrNoData) {
		buf.Reset()
		noDataSVG(buf, width, height, "No data for this selection")
	} else if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return c.Blob(http.StatusOK, mimeSVG, buf.Bytes())
}

func noDataSVG(buf *bytes.Buffer, width, height int, message string) {
	fmt.Fprintf(
		buf,
		`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`+
			`<rect width="100%%" height="100%%" fill="#f7f7f7"/>`+
			`<text x="50%%" y="50%%" text-anchor="middle" dominant-baseline="middle" `+
			`font-family="sans-serif" font-size="16" fill="#666666">%s</text></svg>`,
		width, height, width, height, html.EscapeString(message),
	)
}

func countryLabel(code string) string {
	if code == "" {
		return "All countries"
	}
	return forms.CountryName(code)
}

func (p *Portal) trendChart(c echo.Context) error {
	cl, _, err := p.userClient(c)
	if err != nil {
		return err
	}
	q := parseTrendQuery(c.QueryParams())
	if err := requireSubject(q.Organism, q.Antibiotic); err != nil {
		return err
	}
	trends, err := cl.GetTrend(requestContext(c), q)
	if err != nil {
		return err
	}
	opts := chart.Options{
		Title:      q.Organism + " / " + q.Antibiotic,
		SeriesName: func(t apires.Trend) string { return countryLabel(t.Country) },
	}
	return svg(c, 800, 400, func(buf *bytes.Buffer) error {
		return chart.RenderTrendSVG(buf, trends, opts)
	})
}

// fillNames sets names of rates from their country codes, when the data API does not.
func fillNames(rates []apires.CountryRate) {
	for i := range rates {
		if rates[i].CountryName == "" {
			rates[i].CountryName = forms.CountryName(rates[i].CountryCode)
		}
	}
}

func (p *Portal) countryRates(c echo.Context) (apires.MapQuery, []apires.CountryRate, error) {
	cl, _, err := p.userClient(c)
	if err != nil {
		return apires.MapQuery{}, nil, err
	}
	q := parseMapQuery(c.QueryParams())
	if err := requireSubject(q.Organism, q.Antibiotic); err != nil {
		return q, nil, err
	}
	rates, err := cl.GetCountryRates(requestContext(c), q)
	if err != nil {
		return q, nil, err
	}
	fillNames(rates)
	return q, rates, nil
}

func (p *Portal) countriesChart(c echo.Context) error {
	q, rates, err := p.countryRates(c)
	if err != nil {
		return err
	}
	top := defaultTopCountries
	if n := atoi(c.QueryParam("top")); 0 < n {
		top = min(n, maxTopCountries)
	}
	title := q.Organism + " / " + q.Antibiotic
	if q.Year != 0 {
		title += fmt.Sprintf(" (%d)", q.Year)
	}
	return svg(c, 800, 400, func(buf *bytes.Buffer) error {
		return chart.RenderRateBarsSVG(buf, rates, top, chart.Options{Title: title})
	})
}

func (p *Portal) requireMap() error {
	if p.opts.Map.Features == nil {
		return apierr.NewErrorMessage(
			http.StatusNotFound, "map is not available",
			apierr.WithAdvice("the portal has no country shapes configured."),
		)
	}
	return nil
}

func (p *Portal) mapGeoJSON(c echo.Context) error {
	if err := p.requireMap(); err != nil {
		return err
	}
	_, rates, err := p.countryRates(c)
	if err != nil {
		return err
	}
	fc := choropleth.Colorize(p.opts.Map.Features, rates, p.opts.Map.Scale)
	b, err := json.Marshal(fc)
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return c.Blob(http.StatusOK, mimeGeoJSON, b)
}

func (p *Portal) mapSVG(c echo.Context) error {
	if err := p.requireMap(); err != nil {
		return err
	}
	_, rates, err := p.countryRates(c)
	if err != nil {
		return err
	}
	fc := choropleth.Colorize(p.opts.Map.Features, rates, p.opts.Map.Scale)
	return svg(c, p.opts.Map.Width, p.opts.Map.Height, func(buf *bytes.Buffer) error {
		return choropleth.RenderSVG(buf, fc, p.opts.Map.Width, p.opts.Map.Height)
	})
}

func (p *Portal) mapLegend(c echo.Context) error {
	return c.JSON(http.StatusOK, choropleth.Legend(p.opts.Map.Scale))
}
