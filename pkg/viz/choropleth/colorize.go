// Package choropleth colours country polygons by resistance rate.
package choropleth

import (
	"math"
	"strings"

	apires "github.com/amrdata/amrportal/pkg/api/types/resistance"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Properties set on each feature by Colorize.
const (
	PropFill   = "fill"
	PropRate   = "rate"
	PropTested = "tested"
	PropBin    = "bin"
)

// CountryCode returns the ISO 3166 alpha-2 code of a feature.
//
// It looks up "iso_a2", then "ISO_A2", then the feature id. Placeholders like "-99" are ignored.
func CountryCode(f *geojson.Feature) string {
	for _, key := range []string{"iso_a2", "ISO_A2"} {
		if s, ok := f.Properties[key].(string); ok && isCode(s) {
			return strings.ToUpper(s)
		}
	}
	if s, ok := f.ID.(string); ok && isCode(s) {
		return strings.ToUpper(s)
	}
	return ""
}

func isCode(s string) bool {
	if len(s) != 2 {
		return false
	}
	for _, r := range s {
		if !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z') {
			return false
		}
	}
	return true
}

// CountryName returns a display name of a feature, or "" if unknown.
func CountryName(f *geojson.Feature) string {
	for _, key := range []string{"name", "NAME", "ADMIN", "admin"} {
		if s, ok := f.Properties[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// Colorize returns a copy of fc with fill, rate, tested and bin set on every feature.
//
// Features of countries without tested isolates get the no-data colour,
// a nil rate and bin -1. fc itself is left untouched.
func Colorize(fc *geojson.FeatureCollection, rates []apires.CountryRate, scale Scale) *geojson.FeatureCollection {
	byCode := map[string]apires.CountryRate{}
	for _, r := range rates {
		byCode[strings.ToUpper(r.CountryCode)] = r
	}

	ret := geojson.NewFeatureCollection()
	if fc == nil {
		return ret
	}
	ret.BBox = fc.BBox
	for _, f := range fc.Features {
		if f == nil {
			continue
		}
		nf := &geojson.Feature{
			ID:         f.ID,
			Type:       f.Type,
			BBox:       f.BBox,
			Geometry:   orb.Clone(f.Geometry),
			Properties: f.Properties.Clone(),
		}

		rate := math.NaN()
		tested := 0
		if r, ok := byCode[CountryCode(f)]; ok {
			tested = r.Tested
			if v, ok := r.Rate(); ok {
				rate = math.Round(v*10) / 10
			}
		}

		nf.Properties[PropFill] = scale.Color(rate)
		nf.Properties[PropTested] = tested
		nf.Properties[PropBin] = scale.Bin(rate)
		if math.IsNaN(rate) {
			nf.Properties[PropRate] = nil
		} else {
			nf.Properties[PropRate] = rate
		}
		ret.Append(nf)
	}
	return ret
}
