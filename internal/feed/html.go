package feed

import (
	"html"
	"regexp"
	"strings"
)

var (
	brRe   = regexp.MustCompile(`(?i)<br\s*/?>`)
	pRe    = regexp.MustCompile(`(?i)</p>\s*<p>`)
	tagRe  = regexp.MustCompile(`<[^>]+>`)
	wsRe   = regexp.MustCompile(`[ \t]+`)
	manyNL = regexp.MustCompile(`\n{3,}`)
)

// StripHTML converts a Mastodon status body (HTML) to plain text:
// paragraph and line breaks become newlines, all other tags are dropped,
// and entities are unescaped.
func StripHTML(s string) string {
	s = brRe.ReplaceAllString(s, "\n")
	s = pRe.ReplaceAllString(s, "\n\n")
	s = tagRe.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = wsRe.ReplaceAllString(s, " ")
	s = manyNL.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
