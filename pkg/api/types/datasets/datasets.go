package datasets

import (
	"net/url"
	"strconv"
	"time"
)

type Access string

const (
	Open       Access = "open"
	Restricted Access = "restricted"
)

type YearRange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

type Summary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Category     string    `json:"category"`
	ThematicArea string    `json:"thematic_area"`
	StudyDesign  string    `json:"study_design"`
	Countries    []string  `json:"countries"`
	Years        YearRange `json:"years"`
	Access       Access    `json:"access"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Detail struct {
	Summary

	// markdown
	Description string `json:"description"`
	Contact     string `json:"contact"`
	Citation    string `json:"citation"`
	SizeBytes   int64  `json:"size_bytes"`
	RecordCount int64  `json:"record_count"`
}

// Query is the filter of the dataset catalogue.
//
// Zero values mean "not filtered".
type Query struct {
	Search       string
	Category     string
	ThematicArea string
	StudyDesign  string
	Country      string
	Access       Access
	Page         int
	PageSize     int
}

// Values encodes q as query parameters of GET /data_sets.
//
// Parameters with zero value are omitted.
func (q Query) Values() url.Values {
	v := url.Values{}
	set := func(k, s string) {
		if s != "" {
			v.Set(k, s)
		}
	}
	set("search", q.Search)
	set("category", q.Category)
	set("thematic_area", q.ThematicArea)
	set("study_design", q.StudyDesign)
	set("country", q.Country)
	set("access", string(q.Access))
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		v.Set("page_size", strconv.Itoa(q.PageSize))
	}
	return v
}

// Filtered reports whether any filter (other than paging) is set.
func (q Query) Filtered() bool {
	return q.Search != "" || q.Category != "" || q.ThematicArea != "" ||
		q.StudyDesign != "" || q.Country != "" || q.Access != ""
}

type Page struct {
	Count    int       `json:"count"`
	Next     *string   `json:"next"`
	Previous *string   `json:"previous"`
	Results  []Summary `json:"results"`
}

type Facets struct {
	Categories    []string `json:"categories"`
	ThematicAreas []string `json:"thematic_areas"`
	StudyDesigns  []string `json:"study_designs"`
	Countries     []string `json:"countries"`
}

type Variable struct {
	Name        string   `json:"name"`
	Label       string   `json:"label"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Values      []string `json:"values,omitempty"`
}

type Dictionary struct {
	DataSetID string     `json:"data_set_id"`
	Variables []Variable `json:"variables"`
}
