package slot

import (
	"strings"
	"unicode"
)

// Normalize canonicalizes an utterance or choice token for exact matching:
// lowercase, trim, strip surrounding punctuation and collapse inner
// whitespace. "  Primary. " and "primary" normalize identically.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
	return strings.Join(strings.Fields(s), " ")
}

// squash additionally removes inner whitespace and punctuation so "under 5",
// "under-5" and "under5" collide. Used as a second-chance key in the fast
// path alias table.
func squash(s string) string {
	var b strings.Builder
	for _, r := range Normalize(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
