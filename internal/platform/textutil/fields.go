package textutil

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

var strictPolicy = bluemonday.StrictPolicy()

// maxDecodePasses bounds entity decoding of nested encodings such as "&amp;lt;".
const maxDecodePasses = 4

// NormalizeField decodes entities, folds full-width forms and applies NFKC, then strips
// markup and collapses runs of whitespace. Angle brackets never survive.
func NormalizeField(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	cleaned := value
	for i := 0; i < maxDecodePasses; i++ {
		next := norm.NFKC.String(width.Fold.String(html.UnescapeString(cleaned)))
		if next == cleaned {
			break
		}
		cleaned = next
	}
	cleaned = html.UnescapeString(strictPolicy.Sanitize(cleaned))
	cleaned = strings.Map(func(r rune) rune {
		if r == '<' || r == '>' {
			return ' '
		}
		return r
	}, cleaned)
	return strings.Join(strings.Fields(cleaned), " ")
}

// NormalizeDigits folds full-width digits to ASCII and removes spaces and hyphens, as used
// in phone numbers and postal codes.
func NormalizeDigits(value string) string {
	folded := width.Narrow.String(strings.TrimSpace(value))
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if r == '-' || r == ' ' || unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// IsDigits reports whether value is non-empty and consists only of ASCII digits.
func IsDigits(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
