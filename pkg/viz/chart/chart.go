// Package chart draws resistance charts as SVG.
package chart

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	apires "github.com/amrdata/amrportal/pkg/api/types/resistance"
	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// ErrNoData means there is nothing to be drawn.
var ErrNoData = errors.New("no data to be charted")

// Point is the resistance rate (%) of a year.
type Point struct {
	Year int
	Rate float64

	// Tested is the number of isolates the rate is based on.
	Tested int
}

// TrendSeries converts a trend into points sorted by year.
//
// Years without tested isolates are skipped, and rates are rounded to one decimal.
func TrendSeries(trend apires.Trend) []Point {
	ret := []Point{}
	for _, p := range trend.Points {
		r, ok := p.Rate()
		if !ok {
			continue
		}
		ret = append(ret, Point{Year: p.Year, Rate: round1(r), Tested: p.Tested})
	}
	sort.SliceStable(ret, func(i, j int) bool { return ret[i].Year < ret[j].Year })
	return ret
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

type Options struct {
	Title  string
	Width  int
	Height int

	// SeriesName names a trend in the legend. Default is the country code, or "All countries".
	SeriesName func(apires.Trend) string
}

func (o Options) size() (int, int) {
	w, h := o.Width, o.Height
	if w <= 0 {
		w = 800
	}
	if h <= 0 {
		h = 400
	}
	return w, h
}

func (o Options) name(t apires.Trend) string {
	if o.SeriesName != nil {
		if n := o.SeriesName(t); n != "" {
			return n
		}
	}
	if t.Country == "" {
		return "All countries"
	}
	return t.Country
}

// percentAxis returns a new axis per chart. Rendering sets the domain of its range.
func percentAxis() gochart.YAxis {
	return gochart.YAxis{
		Name:  "Resistant (%)",
		Range: &gochart.ContinuousRange{Min: 0, Max: 100},
		Ticks: []gochart.Tick{
			{Value: 0, Label: "0"},
			{Value: 25, Label: "25"},
			{Value: 50, Label: "50"},
			{Value: 75, Label: "75"},
			{Value: 100, Label: "100"},
		},
	}
}

// yearTicks gives integer ticks from lo to hi, at most about 12 of them.
func yearTicks(lo, hi int) []gochart.Tick {
	step := 1
	for (hi-lo)/step > 12 {
		step++
	}
	ticks := []gochart.Tick{}
	for y := lo; y <= hi; y += step {
		ticks = append(ticks, gochart.Tick{Value: float64(y), Label: fmt.Sprint(y)})
	}
	return ticks
}

// RenderTrendSVG draws one line per trend. Trends without data are left out.
//
// When no trend has data, it returns ErrNoData and writes nothing.
func RenderTrendSVG(w io.Writer, trends []apires.Trend, opts Options) error {
	series := []gochart.Series{}
	minYear, maxYear := math.MaxInt, math.MinInt
	for _, t := range trends {
		points := TrendSeries(t)
		if len(points) == 0 {
			continue
		}
		xs := make([]float64, len(points))
		ys := make([]float64, len(points))
		for i, p := range points {
			xs[i], ys[i] = float64(p.Year), p.Rate
			minYear = min(minYear, p.Year)
			maxYear = max(maxYear, p.Year)
		}
		color := gochart.GetDefaultColor(len(series))
		series = append(series, gochart.ContinuousSeries{
			Name:    opts.name(t),
			XValues: xs,
			YValues: ys,
			Style: gochart.Style{
				StrokeColor: color,
				StrokeWidth: 2,
				DotColor:    color,
				DotWidth:    3,
			},
		})
	}
	if len(series) == 0 {
		return ErrNoData
	}

	// a single year gives an empty x range, which go-chart refuses.
	lo, hi := minYear, maxYear
	if lo == hi {
		lo, hi = lo-1, hi+1
	}

	width, height := opts.size()
	ch := gochart.Chart{
		Title:      opts.Title,
		Width:      width,
		Height:     height,
		Background: gochart.Style{Padding: gochart.Box{Top: 24, Left: 16, Right: 16, Bottom: 16}},
		XAxis: gochart.XAxis{
			Name:  "Year",
			Range: &gochart.ContinuousRange{Min: float64(lo), Max: float64(hi)},
			Ticks: yearTicks(lo, hi),
		},
		YAxis:  percentAxis(),
		Series: series,
	}
	ch.Elements = []gochart.Renderable{gochart.Legend(&ch)}
	return ch.Render(gochart.SVG, w)
}

// Bar is a country and its rate.
type Bar struct {
	Label  string
	Rate   float64
	Tested int
}

// TopRates picks top countries by resistance rate, highest first. Countries without tests are skipped.
//
// top <= 0 means all.
func TopRates(rates []apires.CountryRate, top int) []Bar {
	bars := []Bar{}
	for _, c := range rates {
		r, ok := c.Rate()
		if !ok {
			continue
		}
		label := c.CountryName
		if label == "" {
			label = c.CountryCode
		}
		bars = append(bars, Bar{Label: label, Rate: round1(r), Tested: c.Tested})
	}
	sort.SliceStable(bars, func(i, j int) bool {
		if bars[i].Rate != bars[j].Rate {
			return bars[i].Rate > bars[j].Rate
		}
		return bars[i].Label < bars[j].Label
	})
	if 0 < top && top < len(bars) {
		bars = bars[:top]
	}
	return bars
}

var barColor = drawing.ColorFromHex("c0392b")

// RenderRateBarsSVG draws a bar chart of the top countries by resistance rate.
func RenderRateBarsSVG(w io.Writer, rates []apires.CountryRate, top int, opts Options) error {
	bars := TopRates(rates, top)
	if len(bars) == 0 {
		return ErrNoData
	}

	values := make([]gochart.Value, len(bars))
	for i, b := range bars {
		values[i] = gochart.Value{
			Label: b.Label,
			Value: b.Rate,
			Style: gochart.Style{FillColor: barColor, StrokeColor: barColor, StrokeWidth: 1},
		}
	}

	width, height := opts.size()
	// bars and gaps (half a bar) should fit in the plot area, next to the y axis.
	barWidth := max(4, min(60, 2*(width-120)/(3*len(values))))
	bc := gochart.BarChart{
		Title:      opts.Title,
		Width:      width,
		Height:     height,
		BarWidth:   barWidth,
		BarSpacing: barWidth / 2,
		Background: gochart.Style{Padding: gochart.Box{Top: 32, Left: 16, Right: 16, Bottom: 16}},
		YAxis:      percentAxis(),
		Bars:       values,
	}
	return bc.Render(gochart.SVG, w)
}
