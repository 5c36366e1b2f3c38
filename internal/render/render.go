// Package render turns article submissions into standalone HTML documents.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/bilgisen/blog-editor/internal/models"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Options are the site-wide values printed in every article
type Options struct {
	SiteOwner      string
	CopyrightStart int
}

type Renderer struct {
	tmpl *template.Template
	opts Options
}

type articleData struct {
	Title          string
	Subtitle       string
	Author         string
	Date           string
	Content        string
	References     []string
	SiteOwner      string
	CopyrightStart int
}

func New(opts Options) (*Renderer, error) {
	tmpl, err := template.New("article.html.tmpl").
		Funcs(sprig.TxtFuncMap()).
		ParseFS(templateFS, "templates/article.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse article template: %w", err)
	}
	if opts.CopyrightStart == 0 {
		opts.CopyrightStart = 2018
	}
	return &Renderer{tmpl: tmpl, opts: opts}, nil
}

// TrustedRender renders the article document. Every field is interpolated
// verbatim, without HTML escaping: the editor has a single local author and
// content already arrives as markup. An escaping policy belongs here.
func (r *Renderer) TrustedRender(sub models.ArticleSubmission) (string, error) {
	data := articleData{
		Title:          sub.Title,
		Subtitle:       sub.Subtitle,
		Author:         sub.Author,
		Date:           sub.Date,
		Content:        sub.Content,
		References:     sub.FilteredReferences(),
		SiteOwner:      r.opts.SiteOwner,
		CopyrightStart: r.opts.CopyrightStart,
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render article %q: %w", sub.Title, err)
	}
	return buf.String(), nil
}
