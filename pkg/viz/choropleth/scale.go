package choropleth

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
)

var ErrInvalidScale = errors.New("invalid colour scale")

// Stop colours rates up to and including Max.
type Stop struct {
	Max   float64 `yaml:"max" json:"max"`
	Color string  `yaml:"color" json:"color"`
}

// Scale maps a resistance rate (%) to a colour.
type Scale struct {
	Stops  []Stop `yaml:"stops" json:"stops"`
	NoData string `yaml:"noData" json:"noData"`
}

const NoDataColor = "#d9d9d9"

// DefaultScale is 0-10-20-40-60-100 %, light to dark red.
func DefaultScale() Scale {
	return Scale{
		Stops: []Stop{
			{Max: 10, Color: "#fee5d9"},
			{Max: 20, Color: "#fcae91"},
			{Max: 40, Color: "#fb6a4a"},
			{Max: 60, Color: "#de2d26"},
			{Max: 100, Color: "#a50f15"},
		},
		NoData: NoDataColor,
	}
}

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// Validate checks that stops are strictly increasing and colours are hex codes.
func (s Scale) Validate() error {
	if len(s.Stops) == 0 {
		return fmt.Errorf("%w: no stops", ErrInvalidScale)
	}
	for i, st := range s.Stops {
		if math.IsNaN(st.Max) {
			return fmt.Errorf("%w: stop #%d has no max", ErrInvalidScale, i)
		}
		if !hexColor.MatchString(st.Color) {
			return fmt.Errorf("%w: stop #%d: bad colour %q", ErrInvalidScale, i, st.Color)
		}
		if 0 < i && st.Max <= s.Stops[i-1].Max {
			return fmt.Errorf(
				"%w: stops should be strictly increasing (#%d: %v after %v)",
				ErrInvalidScale, i, st.Max, s.Stops[i-1].Max,
			)
		}
	}
	if s.NoData != "" && !hexColor.MatchString(s.NoData) {
		return fmt.Errorf("%w: bad no-data colour %q", ErrInvalidScale, s.NoData)
	}
	return nil
}

func (s Scale) noData() string {
	if s.NoData == "" {
		return NoDataColor
	}
	return s.NoData
}

// Bin returns the index of the first stop covering rate, or -1.
//
// Rates above the last stop fall into the last stop.
func (s Scale) Bin(rate float64) int {
	if math.IsNaN(rate) || len(s.Stops) == 0 {
		return -1
	}
	for i, st := range s.Stops {
		if rate <= st.Max {
			return i
		}
	}
	return len(s.Stops) - 1
}

// Color returns the colour for rate. NaN is "no data".
func (s Scale) Color(rate float64) string {
	b := s.Bin(rate)
	if b < 0 {
		return s.noData()
	}
	return s.Stops[b].Color
}

// LegendEntry is a row of a map legend.
type LegendEntry struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

// Legend lists ranges of the scale, followed by "No data".
func Legend(s Scale) []LegendEntry {
	ret := make([]LegendEntry, 0, len(s.Stops)+1)
	lo := 0.0
	for _, st := range s.Stops {
		ret = append(ret, LegendEntry{
			Label: fmt.Sprintf("%s-%s %%", formatNum(lo), formatNum(st.Max)),
			Color: st.Color,
		})
		lo = st.Max
	}
	return append(ret, LegendEntry{Label: "No data", Color: s.noData()})
}

func formatNum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
