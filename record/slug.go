package record

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	tagPattern      = regexp.MustCompile(`<[^>]*>`)
	nonSlugPattern  = regexp.MustCompile(`[^\p{L}\p{N}]+`)
	ligatureReplace = strings.NewReplacer(
		"ß", "ss", "æ", "ae", "Æ", "ae", "œ", "oe", "Œ", "oe",
		"ø", "o", "Ø", "o", "đ", "d", "Đ", "d", "ł", "l", "Ł", "l",
		"þ", "th", "Þ", "th", "&", " ",
	)
)

// Slugify normalizes s into a slug: tags stripped, diacritics removed,
// lowercased, every run of characters that are neither letters nor digits
// collapsed to a single dash, leading and trailing dashes trimmed. Letters
// outside the Latin alphabet are kept, so such names still map to one slug.
func Slugify(s string) string {
	s = tagPattern.ReplaceAllString(s, "")
	s = ligatureReplace.Replace(s)

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(t, s); err == nil {
		s = folded
	}

	s = strings.ToLower(s)
	s = nonSlugPattern.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
