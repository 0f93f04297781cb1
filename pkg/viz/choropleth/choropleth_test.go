package choropleth_test

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	apires "github.com/amrdata/amrportal/pkg/api/types/resistance"
	"github.com/amrdata/amrportal/pkg/utils/try"
	"github.com/amrdata/amrportal/pkg/viz/choropleth"
	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb/geojson"
)

func TestScale_Color(t *testing.T) {
	scale := choropleth.DefaultScale()

	theory := func(when float64, then string) func(*testing.T) {
		return func(t *testing.T) {
			if got := scale.Color(when); got != then {
				t.Errorf("Color(%v) = %s, want %s", when, got, then)
			}
		}
	}

	t.Run("0 is in the first bin", theory(0, "#fee5d9"))
	t.Run("upper bound is inclusive", theory(10, "#fee5d9"))
	t.Run("just above a bound is in the next bin", theory(10.1, "#fcae91"))
	t.Run("50 is in the 40-60 bin", theory(50, "#de2d26"))
	t.Run("100 is in the last bin", theory(100, "#a50f15"))
	t.Run("NaN is no data", theory(math.NaN(), choropleth.NoDataColor))
}

func TestScale_Validate(t *testing.T) {
	theory := func(when choropleth.Scale, wantErr bool) func(*testing.T) {
		return func(t *testing.T) {
			err := when.Validate()
			if !wantErr {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, choropleth.ErrInvalidScale) {
				t.Errorf("expected ErrInvalidScale, got %v", err)
			}
		}
	}

	t.Run("default scale is valid", theory(choropleth.DefaultScale(), false))
	t.Run("empty scale is invalid", theory(choropleth.Scale{}, true))
	t.Run("decreasing stops are invalid", theory(choropleth.Scale{
		Stops: []choropleth.Stop{{Max: 50, Color: "#ffffff"}, {Max: 10, Color: "#000000"}},
	}, true))
	t.Run("repeated stops are invalid", theory(choropleth.Scale{
		Stops: []choropleth.Stop{{Max: 50, Color: "#ffffff"}, {Max: 50, Color: "#000000"}},
	}, true))
	t.Run("non-hex colour is invalid", theory(choropleth.Scale{
		Stops: []choropleth.Stop{{Max: 100, Color: "red"}},
	}, true))
}

func TestLegend(t *testing.T) {
	expected := []choropleth.LegendEntry{
		{Label: "0-10 %", Color: "#fee5d9"},
		{Label: "10-20 %", Color: "#fcae91"},
		{Label: "20-40 %", Color: "#fb6a4a"},
		{Label: "40-60 %", Color: "#de2d26"},
		{Label: "60-100 %", Color: "#a50f15"},
		{Label: "No data", Color: choropleth.NoDataColor},
	}
	if diff := cmp.Diff(expected, choropleth.Legend(choropleth.DefaultScale())); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

const world = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"iso_a2": "KE", "name": "Kenya"},
      "geometry": {"type": "Polygon", "coordinates": [[[34,-4],[41,-4],[41,5],[34,5],[34,-4]]]}
    },
    {
      "type": "Feature",
      "properties": {"iso_a2": "-99", "ISO_A2": "UG", "name": "Uganda"},
      "geometry": {"type": "Polygon", "coordinates": [[[29,-1],[34,-1],[34,4],[29,4],[29,-1]]]}
    },
    {
      "type": "Feature",
      "id": "tz",
      "properties": {"name": "Tanzania & Zanzibar"},
      "geometry": {"type": "MultiPolygon", "coordinates": [
        [[[29,-11],[40,-11],[40,-1],[29,-1],[29,-11]]],
        [[[39,-6.5],[39.5,-6.5],[39.5,-5.7],[39,-5.7],[39,-6.5]]]
      ]}
    },
    {
      "type": "Feature",
      "properties": {"name": "Somewhere"},
      "geometry": {"type": "Point", "coordinates": [36, 0]}
    }
  ]
}`

func TestColorize(t *testing.T) {
	fc := try.To(geojson.UnmarshalFeatureCollection([]byte(world))).OrFatal(t)
	rates := []apires.CountryRate{
		{CountryCode: "KE", Tested: 200, Resistant: 50},
		{CountryCode: "ug", Tested: 40, Resistant: 30},
		{CountryCode: "TZ", Tested: 0, Resistant: 0},
	}

	got := choropleth.Colorize(fc, rates, choropleth.DefaultScale())

	type props struct {
		Fill   string
		Rate   any
		Tested int
		Bin    int
	}
	actual := []props{}
	for _, f := range got.Features {
		actual = append(actual, props{
			Fill:   f.Properties[choropleth.PropFill].(string),
			Rate:   f.Properties[choropleth.PropRate],
			Tested: f.Properties[choropleth.PropTested].(int),
			Bin:    f.Properties[choropleth.PropBin].(int),
		})
	}
	expected := []props{
		{Fill: "#fb6a4a", Rate: 25.0, Tested: 200, Bin: 2},
		{Fill: "#a50f15", Rate: 75.0, Tested: 40, Bin: 4},
		{Fill: choropleth.NoDataColor, Rate: nil, Tested: 0, Bin: -1},
		{Fill: choropleth.NoDataColor, Rate: nil, Tested: 0, Bin: -1},
	}
	if diff := cmp.Diff(expected, actual); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	t.Run("input is not modified", func(t *testing.T) {
		for _, f := range fc.Features {
			if _, ok := f.Properties[choropleth.PropFill]; ok {
				t.Errorf("input feature has fill: %v", f.Properties)
			}
		}
	})

	t.Run("nil collection gives an empty one", func(t *testing.T) {
		got := choropleth.Colorize(nil, rates, choropleth.DefaultScale())
		if len(got.Features) != 0 {
			t.Errorf("unexpected features: %d", len(got.Features))
		}
	})
}

func TestRenderSVG(t *testing.T) {
	fc := try.To(geojson.UnmarshalFeatureCollection([]byte(world))).OrFatal(t)
	colored := choropleth.Colorize(fc, []apires.CountryRate{
		{CountryCode: "KE", Tested: 200, Resistant: 50},
	}, choropleth.DefaultScale())

	buf := new(bytes.Buffer)
	if err := choropleth.RenderSVG(buf, colored, 400, 300); err != nil {
		t.Fatal(err)
	}
	svg := buf.String()

	if !strings.HasPrefix(svg, "<svg") || !strings.HasSuffix(svg, "</svg>") {
		t.Errorf("not svg: %s", svg)
	}
	if n := strings.Count(svg, "<path"); n != 3 {
		t.Errorf("paths: got %d, want 3 (points are skipped)", n)
	}
	for _, want := range []string{
		`fill="#fb6a4a"`,
		"<title>Kenya: 25 % (200 tested)</title>",
		"<title>Uganda: no data</title>",
		"<title>Tanzania &amp; Zanzibar: no data</title>",
	} {
		if !strings.Contains(svg, want) {
			t.Errorf("svg does not contain %q", want)
		}
	}

	t.Run("bad size is an error", func(t *testing.T) {
		if err := choropleth.RenderSVG(new(bytes.Buffer), colored, 0, 300); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("empty collection gives an empty svg", func(t *testing.T) {
		buf := new(bytes.Buffer)
		if err := choropleth.RenderSVG(buf, nil, 10, 10); err != nil {
			t.Fatal(err)
		}
		if strings.Contains(buf.String(), "<path") {
			t.Errorf("unexpected path: %s", buf.String())
		}
	})
}

func TestParse(t *testing.T) {
	t.Run("it reads country shapes", func(t *testing.T) {
		fc := try.To(choropleth.Parse([]byte(world))).OrFatal(t)
		if len(fc.Features) != 4 {
			t.Errorf("unexpected features: %d", len(fc.Features))
		}
	})

	t.Run("it refuses a collection without country shapes", func(t *testing.T) {
		_, err := choropleth.Parse([]byte(`{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"iso_a2": "KE"}, "geometry": {"type": "Point", "coordinates": [37, 0]}}
  ]
}`))
		if !errors.Is(err, choropleth.ErrNoShapes) {
			t.Errorf("expected ErrNoShapes, got %v", err)
		}
	})

	t.Run("it refuses broken json", func(t *testing.T) {
		if _, err := choropleth.Parse([]byte(`{"type": `)); err == nil {
			t.Error("no error")
		}
	})
}
