package choropleth

import (
	"errors"
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

var ErrNoShapes = errors.New("geojson has no country shapes")

// Parse reads a FeatureCollection of country shapes.
//
// It fails when no feature is a Polygon or MultiPolygon with a country code.
func Parse(b []byte) (*geojson.FeatureCollection, error) {
	fc, err := geojson.UnmarshalFeatureCollection(b)
	if err != nil {
		return nil, fmt.Errorf("parse geojson: %w", err)
	}
	for _, f := range fc.Features {
		switch f.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
			if CountryCode(f) != "" {
				return fc, nil
			}
		}
	}
	return nil, ErrNoShapes
}

// Load reads the file at path with Parse.
func Load(path string) (*geojson.FeatureCollection, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fc, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return fc, nil
}
