// Package sanitize normalizes editor- and visitor-supplied text to the
// printable ASCII range. Podcast directories reject feeds containing
// control characters or typographic Unicode, so every value that ends
// up in a feed is passed through here before it is stored.
package sanitize

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// smart typography and its closest ASCII rendering
var replacements = strings.NewReplacer(
	"‘", "'", // left single quote
	"’", "'", // right single quote
	"“", `"`, // left double quote
	"”", `"`, // right double quote
	"′", "'", // prime
	"″", `"`, // double prime
	"–", "-", // en dash
	"—", "--", // em dash
	"…", "...", // ellipsis
	" ", " ", // non-breaking space
)

// Sanitizer carries the once-per-batch advisory state. Create one per
// logical operation (form submission, import run) and reuse it for
// every field in that batch; the advisory fires at most once.
type Sanitizer struct {
	warned bool
}

// New returns a fresh Sanitizer batch.
func New() *Sanitizer {
	return &Sanitizer{}
}

// Sanitize reduces text to printable ASCII. The second return value
// reports that characters were removed for compatibility; it is true
// on at most one call per Sanitizer so callers can surface a single
// advisory for a whole batch of fields.
func (s *Sanitizer) Sanitize(text string) (string, bool) {
	cleaned := Clean(text)
	if cleaned == text || s.warned {
		return cleaned, false
	}
	s.warned = true
	return cleaned, true
}

// Clean is the underlying pure transformation. It is deterministic and
// idempotent: Clean(Clean(x)) == Clean(x).
func Clean(text string) string {
	if text == "" {
		return ""
	}

	// Decompose first so accented letters degrade to their base letter
	// plus combining marks; the ASCII filter below then keeps the base
	// letter instead of dropping the whole character.
	text = norm.NFD.String(text)

	text = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)

	text = replacements.Replace(text)

	return strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e {
			return -1
		}
		return r
	}, text)
}
