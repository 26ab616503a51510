package crawler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract(t *testing.T) {
	t.Parallel()

	doc := `<!doctype html>
<html><head>
  <title>  Example Domain </title>
  <meta name="description" content="plain description">
  <meta property="og:description" content="Open Graph description">
  <style>body { color: red; }</style>
  <script>var hidden = "SCRIPT TEXT";</script>
</head>
<body>
  <h1>Hello   World</h1>
  <p>First<br>Second</p>
  <noscript>enable javascript</noscript>
  <ul><li>One</li><li>Two</li></ul>
</body></html>`

	page := Extract(strings.NewReader(doc))

	assert.Equal(t, "Example Domain", page.Title)
	assert.Equal(t, "Open Graph description", page.Description)
	assert.Equal(t, "hello world first second one two", page.Text)
	assert.NotContains(t, page.Text, "script")
	assert.NotContains(t, page.Text, "javascript")
	assert.NotContains(t, page.Text, "color")
}

func TestExtractDescriptionFallback(t *testing.T) {
	t.Parallel()

	page := Extract(strings.NewReader(`<html><head><meta name="description" content=" plain "></head><body>x</body></html>`))
	assert.Equal(t, "plain", page.Description)
	assert.Equal(t, "", page.Title)
	assert.Equal(t, "x", page.Text)
}

func TestExtractEmpty(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Page{}, Extract(strings.NewReader("")))
}
