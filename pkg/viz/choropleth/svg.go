package choropleth

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/simplify"
)

// RenderSVG draws Polygon and MultiPolygon features of fc, projected equirectangularly
// and fitted into width x height.
//
// Each feature becomes a <path> filled with its "fill" property, titled with its name and rate.
// Other geometries are skipped.
func RenderSVG(w io.Writer, fc *geojson.FeatureCollection, width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("choropleth: bad size %dx%d", width, height)
	}

	type shape struct {
		feature *geojson.Feature
		polys   orb.MultiPolygon
	}
	shapes := []shape{}
	bound := orb.Bound{}
	for _, f := range fcFeatures(fc) {
		var mp orb.MultiPolygon
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			mp = orb.MultiPolygon{g}
		case orb.MultiPolygon:
			mp = g
		default:
			continue
		}
		if len(mp) == 0 {
			continue
		}
		if len(shapes) == 0 {
			bound = mp.Bound()
		} else {
			bound = bound.Union(mp.Bound())
		}
		shapes = append(shapes, shape{feature: f, polys: mp})
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(
		bw,
		`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %d %d" width="%d" height="%d">`,
		width, height, width, height,
	)

	dx, dy := bound.Max.X()-bound.Min.X(), bound.Max.Y()-bound.Min.Y()
	if len(shapes) > 0 && 0 < dx && 0 < dy {
		scale := math.Min(float64(width)/dx, float64(height)/dy)
		offX := (float64(width) - dx*scale) / 2
		offY := (float64(height) - dy*scale) / 2
		project := func(p orb.Point) (float64, float64) {
			return offX + (p.X()-bound.Min.X())*scale, offY + (bound.Max.Y()-p.Y())*scale
		}
		// half a pixel, in degrees.
		dp := simplify.DouglasPeucker(0.5 / scale)

		for _, s := range shapes {
			mp := dp.MultiPolygon(orb.Clone(s.polys).(orb.MultiPolygon))
			d := pathData(mp, project)
			if d == "" {
				continue
			}
			fill, _ := s.feature.Properties[PropFill].(string)
			if fill == "" {
				fill = NoDataColor
			}
			fmt.Fprintf(
				bw, `<path d="%s" fill="%s" fill-rule="evenodd" stroke="#ffffff" stroke-width="0.5">`,
				d, escape(fill),
			)
			if t := title(s.feature); t != "" {
				fmt.Fprintf(bw, "<title>%s</title>", escape(t))
			}
			bw.WriteString("</path>")
		}
	}

	bw.WriteString("</svg>")
	return bw.Flush()
}

func fcFeatures(fc *geojson.FeatureCollection) []*geojson.Feature {
	if fc == nil {
		return nil
	}
	ret := make([]*geojson.Feature, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f != nil && f.Geometry != nil {
			ret = append(ret, f)
		}
	}
	return ret
}

func pathData(mp orb.MultiPolygon, project func(orb.Point) (float64, float64)) string {
	sb := strings.Builder{}
	for _, poly := range mp {
		for _, ring := range poly {
			if len(ring) < 3 {
				continue
			}
			for i, p := range ring {
				x, y := project(p)
				if i == 0 {
					sb.WriteString("M")
				} else {
					sb.WriteString(" L")
				}
				sb.WriteString(strconv.FormatFloat(x, 'f', 1, 64))
				sb.WriteString(",")
				sb.WriteString(strconv.FormatFloat(y, 'f', 1, 64))
			}
			sb.WriteString(" Z ")
		}
	}
	return strings.TrimSpace(sb.String())
}

// title is "Name: 12.5 % (40 tested)" or "Name: no data".
func title(f *geojson.Feature) string {
	name := CountryName(f)
	if name == "" {
		name = CountryCode(f)
	}
	if name == "" {
		return ""
	}
	rate, ok := f.Properties[PropRate].(float64)
	if !ok {
		return name + ": no data"
	}
	tested := 0
	switch v := f.Properties[PropTested].(type) {
	case int:
		tested = v
	case float64:
		tested = int(v)
	}
	return fmt.Sprintf("%s: %s %% (%d tested)", name, formatNum(rate), tested)
}

func escape(s string) string {
	sb := strings.Builder{}
	xml.EscapeText(&sb, []byte(s))
	return sb.String()
}
