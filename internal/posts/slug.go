package posts

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var deaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify derives a URL slug from a title: diacritics stripped, lower
// cased, runs of non-alphanumerics collapsed to single hyphens.
func Slugify(title string) string {
	flat, _, err := transform.String(deaccent, title)
	if err != nil {
		flat = title
	}

	var b strings.Builder
	b.Grow(len(flat))
	pendingHyphen := false
	for _, r := range strings.ToLower(flat) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		default:
			pendingHyphen = true
		}
	}
	return b.String()
}
