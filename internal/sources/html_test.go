package sources

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
  <title>  Red &amp; Green
  Apples </title>
  <meta property="og:description" content="OpenGraph text">
  <meta name="Description" content="All about &quot;apples&quot;.">
  <style>body { color: red; }</style>
</head>
<body>
  <script>var x = "<p>not text</p>";</script>
  <h1>Apples</h1>
  <p>Red apples are   sweet.<br>Green apples are sour.</p>
  <!-- hidden comment -->
  <ul><li>Fuji</li><li>Gala &amp; Honeycrisp</li></ul>
</body>
</html>`

func TestPageTitle(t *testing.T) {
	assert.Equal(t, "Red & Green Apples", pageTitle(samplePage))
	assert.Equal(t, "", pageTitle("<html><body>no title</body></html>"))
}

func TestMetaDescription(t *testing.T) {
	assert.Equal(t, `All about "apples".`, metaDescription(samplePage))
	assert.Equal(t, "OpenGraph text", metaDescription(`<meta property="og:description" content='OpenGraph text'>`))
	assert.Equal(t, "", metaDescription("<p>nothing</p>"))
}

func TestPageText(t *testing.T) {
	assert.Equal(t,
		"Apples\nRed apples are sweet.\nGreen apples are sour.\nFuji\nGala & Honeycrisp",
		pageText(samplePage))
}
