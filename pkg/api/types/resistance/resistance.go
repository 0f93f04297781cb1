package resistance

import (
	"net/url"
	"strconv"
)

type TrendQuery struct {
	Organism   string
	Antibiotic string
	Countries  []string
	From       int
	To         int
}

func (q TrendQuery) Values() url.Values {
	v := url.Values{}
	v.Set("organism", q.Organism)
	v.Set("antibiotic", q.Antibiotic)
	for _, c := range q.Countries {
		v.Add("country", c)
	}
	if q.From > 0 {
		v.Set("from", strconv.Itoa(q.From))
	}
	if q.To > 0 {
		v.Set("to", strconv.Itoa(q.To))
	}
	return v
}

type TrendPoint struct {
	Year      int `json:"year"`
	Tested    int `json:"tested"`
	Resistant int `json:"resistant"`
}

// Rate is the resistant share in percent. ok is false when nothing was tested.
func (p TrendPoint) Rate() (rate float64, ok bool) {
	if p.Tested <= 0 {
		return 0, false
	}
	return 100 * float64(p.Resistant) / float64(p.Tested), true
}

type Trend struct {
	Organism   string       `json:"organism"`
	Antibiotic string       `json:"antibiotic"`
	Country    string       `json:"country"`
	Points     []TrendPoint `json:"points"`
}

type CountryRate struct {
	CountryCode string `json:"country_code"`
	CountryName string `json:"country_name,omitempty"`
	Tested      int    `json:"tested"`
	Resistant   int    `json:"resistant"`
}

func (c CountryRate) Rate() (rate float64, ok bool) {
	return TrendPoint{Tested: c.Tested, Resistant: c.Resistant}.Rate()
}

type MapQuery struct {
	Organism   string
	Antibiotic string
	Year       int
}

func (q MapQuery) Values() url.Values {
	v := url.Values{}
	v.Set("organism", q.Organism)
	v.Set("antibiotic", q.Antibiotic)
	if q.Year > 0 {
		v.Set("year", strconv.Itoa(q.Year))
	}
	return v
}

type Options struct {
	Organisms   []string `json:"organisms"`
	Antibiotics []string `json:"antibiotics"`
	Countries   []string `json:"countries"`
	Years       []int    `json:"years"`
}
