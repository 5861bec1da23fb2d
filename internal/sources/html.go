package sources

import (
	"html"
	"regexp"
	"strings"
)

var (
	titleTag          = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	metaTag           = regexp.MustCompile(`(?is)<meta\s[^>]*>`)
	metaAttr          = regexp.MustCompile(`(?is)([a-z-]+)\s*=\s*(?:"([^"]*)"|'([^']*)')`)
	scriptTag         = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleTag          = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	noscriptTag       = regexp.MustCompile(`(?is)<noscript[^>]*>.*?</noscript>`)
	headTag           = regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`)
	svgTag            = regexp.MustCompile(`(?is)<svg[^>]*>.*?</svg>`)
	htmlComments      = regexp.MustCompile(`(?s)<!--.*?-->`)
	blockElements     = regexp.MustCompile(`(?i)</(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article)>`)
	openBlockElements = regexp.MustCompile(`(?i)<(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article)[^>]*>`)
	breakTags         = regexp.MustCompile(`(?i)<(br|hr)\s*/?>`)
	allTags           = regexp.MustCompile(`<[^>]+>`)
	multiSpaces       = regexp.MustCompile(`[ \t]+`)
)

// pageTitle returns the decoded <title>, or "" when absent.
func pageTitle(page string) string {
	m := titleTag.FindStringSubmatch(page)
	if len(m) < 2 {
		return ""
	}
	return collapse(html.UnescapeString(m[1]))
}

// metaDescription returns the content of <meta name="description"> or,
// failing that, <meta property="og:description">.
func metaDescription(page string) string {
	var og string
	for _, tag := range metaTag.FindAllString(page, -1) {
		attrs := map[string]string{}
		for _, a := range metaAttr.FindAllStringSubmatch(tag, -1) {
			attrs[strings.ToLower(a[1])] = a[2] + a[3]
		}
		content := collapse(html.UnescapeString(attrs["content"]))
		switch {
		case strings.EqualFold(attrs["name"], "description"):
			return content
		case strings.EqualFold(attrs["property"], "og:description") && og == "":
			og = content
		}
	}
	return og
}

// pageText strips markup and returns readable text, one block per line.
func pageText(page string) string {
	for _, re := range []*regexp.Regexp{scriptTag, styleTag, noscriptTag, headTag, svgTag, htmlComments} {
		page = re.ReplaceAllString(page, "")
	}
	page = openBlockElements.ReplaceAllString(page, "\n")
	page = blockElements.ReplaceAllString(page, "\n")
	page = breakTags.ReplaceAllString(page, "\n")
	page = allTags.ReplaceAllString(page, "")
	page = html.UnescapeString(page)
	page = multiSpaces.ReplaceAllString(page, " ")

	lines := strings.Split(page, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
