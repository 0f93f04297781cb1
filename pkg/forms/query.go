package forms

import (
	"net/url"
	"strconv"

	apidatasets "github.com/amrdata/amrportal/pkg/api/types/datasets"
)

const (
	DefaultPageSize = 20
	MinPageSize     = 1
	MaxPageSize     = 100
)

// ValidatePageSize clamps size into [MinPageSize, MaxPageSize].
func ValidatePageSize(size int) int {
	if size < MinPageSize {
		return MinPageSize
	}
	if size > MaxPageSize {
		return MaxPageSize
	}
	return size
}

// parseInt parses v[key] with a default for empty or broken values.
func parseInt(v url.Values, key string, defaultVal int) int {
	s := get(v, key)
	if s == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return i
}

// ParseQuery reads the catalogue filter from query parameters.
//
// Broken values are replaced by defaults rather than rejected.
func ParseQuery(v url.Values) apidatasets.Query {
	q := apidatasets.Query{
		Search:       get(v, "search"),
		Category:     get(v, "category"),
		ThematicArea: get(v, "thematic_area"),
		StudyDesign:  get(v, "study_design"),
		Country:      get(v, "country"),
		Page:         parseInt(v, "page", 1),
		PageSize:     ValidatePageSize(parseInt(v, "page_size", DefaultPageSize)),
	}
	if q.Page < 1 {
		q.Page = 1
	}
	switch a := apidatasets.Access(get(v, "access")); a {
	case apidatasets.Open, apidatasets.Restricted:
		q.Access = a
	}
	return q
}

// Pages is the number of pages for count items.
func Pages(count, pageSize int) int {
	if count <= 0 || pageSize <= 0 {
		return 1
	}
	return (count + pageSize - 1) / pageSize
}
