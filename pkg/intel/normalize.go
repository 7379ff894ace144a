package intel

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldTransformer decomposes text and strips combining marks, so keyword
// matching is not defeated by accented or decorated lookalike characters
// ("vérify immédiately"). Compiled once at package load.
var foldTransformer = transform.Chain(
	norm.NFKD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// Fold normalizes text for case- and accent-insensitive matching.
// Falls back to plain lowercasing if the transform fails on garbage input.
func Fold(text string) string {
	folded, _, err := transform.String(foldTransformer, text)
	if err != nil {
		return strings.ToLower(text)
	}
	return strings.ToLower(folded)
}
