package feed

import (
	"regexp"
	"strings"
)

var (
	breakTags   = regexp.MustCompile(`(?i)<(?:br\s*/?|/p|/div|/li)>`)
	anyTag      = regexp.MustCompile(`<[^>]*>`)
	newlineRuns = regexp.MustCompile(`[\r\n]+`)
)

// StripToPlainText derives the plain-text variant of a rich
// description: block-level break tags become newlines, all remaining
// markup is stripped, newline runs collapse to one, and surrounding
// whitespace is trimmed.
func StripToPlainText(html string) string {
	text := breakTags.ReplaceAllString(html, "\n")
	text = anyTag.ReplaceAllString(text, "")
	text = newlineRuns.ReplaceAllString(text, "\n")
	return strings.TrimSpace(text)
}
