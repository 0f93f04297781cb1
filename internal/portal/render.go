package portal

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"path"
	"slices"
	"strings"
	"time"

	apiusers "github.com/amrdata/amrportal/pkg/api/types/users"
	"github.com/amrdata/amrportal/pkg/forms"
	"github.com/amrdata/amrportal/pkg/markup"
	"github.com/amrdata/amrportal/pkg/session"
	humanize "github.com/dustin/go-humanize"
	"github.com/gorilla/csrf"
	"github.com/labstack/echo/v4"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates
var templatesFS embed.FS

//go:embed static
var staticFS embed.FS

// renderer holds one parsed template per page: the layout plus the page's "content".
type renderer struct {
	pages    map[string]*template.Template
	basePath string
	site     Site
}

// PageData contains common data for all pages.
type PageData struct {
	Title       string
	BasePath    string
	CurrentPath string
	Site        Site

	// User is the logged-in user. nil for anonymous.
	User *session.Claims

	// CSRF is the hidden input carrying the CSRF token. Every POST form should include it.
	CSRF template.HTML

	Flash *Flash
	Data  any
}

// IsAdmin reports whether the user may use the administration pages.
func (pd PageData) IsAdmin() bool {
	return pd.User != nil && pd.User.HasRole(apiusers.RoleAdmin)
}

// IsReviewer reports whether the user may decide permission requests.
func (pd PageData) IsReviewer() bool {
	return pd.User != nil && pd.User.HasRole(apiusers.RoleAdmin, apiusers.RoleReferee)
}

func newRenderer(basePath string, site Site) (*renderer, error) {
	base, err := template.New("base").
		Funcs(templateFuncs(basePath)).
		ParseFS(templatesFS, "templates/layout/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	names, err := fs.Glob(templatesFS, "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	pages := make(map[string]*template.Template, len(names))
	for _, name := range names {
		// each page defines its own "content", so it gets its own copy of the layout.
		t, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("clone template: %w", err)
		}
		if _, err := t.ParseFS(templatesFS, name); err != nil {
			return nil, fmt.Errorf("parse page template %s: %w", name, err)
		}
		pages[path.Base(name)] = t
	}

	return &renderer{pages: pages, basePath: basePath, site: site}, nil
}

// render writes the page name with status.
//
// The page is rendered into a buffer first, so a template error does not leave a half page.
func (r *renderer) render(w http.ResponseWriter, req *http.Request, status int, name string, pd PageData) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown page template: %s", name)
	}

	pd.BasePath = r.basePath
	pd.CurrentPath = req.URL.Path
	pd.Site = r.site
	if claims, ok := session.FromContext(req.Context()); ok {
		pd.User = &claims
	}
	pd.CSRF = csrf.TemplateField(req)

	buf := new(bytes.Buffer)
	if err := t.ExecuteTemplate(buf, "base", pd); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}

	w.Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	w.Header().Set(echo.HeaderCacheControl, "no-store")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// page renders a page for c, taking the flash message left by the previous response.
func (p *Portal) page(c echo.Context, status int, name string, title string, data any) error {
	return p.render.render(c.Response(), c.Request(), status, name, PageData{
		Title: title,
		Flash: popFlash(c, p.opts.BasePath),
		Data:  data,
	})
}

func templateFuncs(basePath string) template.FuncMap {
	return template.FuncMap{
		"path": func(s string) string { return basePath + s },
		"title": func(s string) string {
			// Caser is stateful; one per call.
			return cases.Title(language.English).String(strings.ReplaceAll(s, "_", " "))
		},
		"bytes": func(n int64) string {
			if n < 0 {
				return "-"
			}
			return humanize.Bytes(uint64(n))
		},
		"comma": func(n any) string {
			switch v := n.(type) {
			case int:
				return humanize.Comma(int64(v))
			case int64:
				return humanize.Comma(v)
			}
			return fmt.Sprint(n)
		},
		"ago":      formatAgo,
		"date":     formatDate,
		"datetime": formatDateTime,
		"markdown": markup.Markdown,
		"country":  forms.CountryName,
		"percent":  func(f float64) string { return fmt.Sprintf("%.1f %%", f*100) },
		"signed":   func(f float64) string { return fmt.Sprintf("%+.3f", f) },
		"join":     strings.Join,
		"has":      func(list []string, s string) bool { return slices.Contains(list, s) },
		"add":      func(a, b int) int { return a + b },
		"sub":      func(a, b int) int { return a - b },
		"query":    func(v url.Values) template.URL { return template.URL(v.Encode()) },
	}
}

func formatAgo(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func formatDate(v any) string {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return "-"
		}
		return t.Format("2 Jan 2006")
	case *time.Time:
		if t == nil || t.IsZero() {
			return "-"
		}
		return t.Format("2 Jan 2006")
	}
	return "-"
}

func formatDateTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04 UTC")
}
