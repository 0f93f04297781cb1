package datasets_test

import (
	"testing"

	"github.com/amrdata/amrportal/pkg/api/types/datasets"
)

func TestQueryValues(t *testing.T) {
	t.Run("zero query has no parameters and is not filtered", func(t *testing.T) {
		q := datasets.Query{}
		if enc := q.Values().Encode(); enc != "" {
			t.Errorf("unexpected parameters: %s", enc)
		}
		if q.Filtered() {
			t.Error("zero query is filtered")
		}
	})

	t.Run("set fields are encoded", func(t *testing.T) {
		q := datasets.Query{
			Search: "E. coli", Category: "surveillance", Access: datasets.Restricted,
			Page: 2, PageSize: 50,
		}
		got := q.Values().Encode()
		want := "access=restricted&category=surveillance&page=2&page_size=50&search=E.+coli"
		if got != want {
			t.Errorf("unexpected: %s\nwant: %s", got, want)
		}
		if !q.Filtered() {
			t.Error("query is not filtered")
		}
	})

	t.Run("paging alone is not filtering", func(t *testing.T) {
		if (datasets.Query{Page: 3}).Filtered() {
			t.Error("paging is filtering")
		}
	})
}
