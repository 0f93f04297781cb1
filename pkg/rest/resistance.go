package rest

import (
	"context"

	apires "github.com/amrdata/amrportal/pkg/api/types/resistance"
)

func (c *client) GetTrend(ctx context.Context, query apires.TrendQuery) ([]apires.Trend, error) {
	return getJson[[]apires.Trend](
		ctx, c, withQuery(c.apipath("resistance", "trends"), query.Values()),
		[]string{GroupResistance}, nil,
	)
}

func (c *client) GetCountryRates(ctx context.Context, query apires.MapQuery) ([]apires.CountryRate, error) {
	return getJson[[]apires.CountryRate](
		ctx, c, withQuery(c.apipath("resistance", "countries"), query.Values()),
		[]string{GroupResistance}, nil,
	)
}

func (c *client) GetResistanceOptions(ctx context.Context) (apires.Options, error) {
	return getJson[apires.Options](
		ctx, c, c.apipath("resistance", "options"), []string{GroupResistance}, nil,
	)
}
