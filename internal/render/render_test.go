package render

import (
	"strings"
	"testing"

	"github.com/bilgisen/blog-editor/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := New(Options{SiteOwner: "Jane Doe"})
	require.NoError(t, err)
	return r
}

func TestTrustedRenderFullDocument(t *testing.T) {
	r := newRenderer(t)

	out, err := r.TrustedRender(models.ArticleSubmission{
		Title:      "On <em>Inflation</em>",
		Subtitle:   "A short tour",
		Author:     "Jane Doe",
		Date:       "March 5, 2024",
		Content:    `<p>Hi & <strong>bye</strong></p><script>alert(1)</script>`,
		References: []string{"Guth, 1981", "", "Linde & Albrecht, <i>1982</i>"},
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))
	assert.Contains(t, out, "<title>On <em>Inflation</em></title>")
	assert.Contains(t, out, `<h1 class="blog-title">On <em>Inflation</em></h1>`)
	assert.Contains(t, out, `<div class="blog-subtitle">`)
	assert.Contains(t, out, "<strong>Author:</strong> Jane Doe")
	assert.Contains(t, out, "<strong>Date:</strong> March 5, 2024")
	assert.Contains(t, out, `<p>Hi & <strong>bye</strong></p><script>alert(1)</script>`)
	assert.Contains(t, out, "tex-mml-chtml.js")
	assert.Contains(t, out, `id="modeToggle"`)
	assert.Contains(t, out, "blog-style.css")
	assert.Contains(t, out, "favicon.svg")
	assert.Contains(t, out, "Jane Doe.")

	assert.Contains(t, out, `<li id="ref-ref1">Guth, 1981</li>`)
	assert.Contains(t, out, `<li id="ref-ref2">Linde & Albrecht, <i>1982</i></li>`)
	assert.NotContains(t, out, `ref-ref3`)
	assert.Equal(t, 2, strings.Count(out, "<li id=\"ref-ref"))
}

func TestTrustedRenderOptionalSections(t *testing.T) {
	r := newRenderer(t)

	out, err := r.TrustedRender(models.ArticleSubmission{
		Title:      "Bare",
		Content:    "<p>x</p>",
		References: []string{"", "   "},
	})
	require.NoError(t, err)

	assert.NotContains(t, out, "references-section")
	assert.NotContains(t, out, "blog-subtitle")
	assert.NotContains(t, out, "author-info")
	assert.NotContains(t, out, "<strong>Author:</strong>")
}

func TestTrustedRenderDateOnly(t *testing.T) {
	r := newRenderer(t)

	out, err := r.TrustedRender(models.ArticleSubmission{Title: "T", Content: "c", Date: "2024-01-01"})
	require.NoError(t, err)

	assert.Contains(t, out, "author-info")
	assert.Contains(t, out, "<strong>Date:</strong> 2024-01-01")
	assert.NotContains(t, out, "<strong>Author:</strong>")
}
