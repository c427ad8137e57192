package render

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxSlugLen = 80

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify turns a title into a file-name-safe slug. Accents are folded
// ("Énergie" becomes "energie"). An empty result falls back to a timestamp.
func Slugify(title string, fallback time.Time) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, title)
	if err != nil {
		folded = title
	}

	s := nonSlug.ReplaceAllString(strings.ToLower(folded), "-")
	s = strings.Trim(s, "-")
	if len(s) > maxSlugLen {
		s = strings.TrimRight(s[:maxSlugLen], "-")
	}
	if s == "" {
		return fallback.UTC().Format("20060102150405")
	}
	return s
}
