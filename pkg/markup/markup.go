// Package markup renders user-provided markdown into safe HTML.
package markup

import (
	"bytes"
	"html/template"
	"strings"
	"sync"

	xe "github.com/amrdata/amrportal/pkg/errors"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

// Renderer converts markdown to sanitised HTML.
//
// It is safe for concurrent use.
type Renderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// New returns a Renderer with GFM (tables, autolinks, strikethrough, task lists)
// and the UGC sanitising policy.
//
// Links to other sites are opened in a new tab.
func New() *Renderer {
	policy := bluemonday.UGCPolicy()
	policy.AddTargetBlankToFullyQualifiedLinks(true)
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		),
		policy: policy,
	}
}

// Render converts markdown. Raw HTML in the source is dropped or escaped.
func (r *Renderer) Render(source string) (template.HTML, error) {
	if strings.TrimSpace(source) == "" {
		return "", nil
	}
	buf := new(bytes.Buffer)
	if err := r.md.Convert([]byte(source), buf); err != nil {
		return "", xe.WrapWithNote("rendering markdown", err)
	}
	return template.HTML(r.policy.SanitizeBytes(buf.Bytes())), nil
}

var defaultRenderer = sync.OnceValue(New)

// Markdown renders with the default Renderer.
//
// When rendering fails, it falls back to the escaped source. This is for templates.
func Markdown(source string) template.HTML {
	h, err := defaultRenderer().Render(source)
	if err != nil {
		return template.HTML("<p>" + template.HTMLEscapeString(source) + "</p>")
	}
	return h
}
