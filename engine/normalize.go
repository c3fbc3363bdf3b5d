package engine

import (
	"strings"
	"unicode"

	"github.com/mozillazg/go-unidecode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// First code points of the enclosed Latin capital letter runs A..Z:
// parenthesized, squared, negative circled, negative squared, regional indicators.
var letterBlocks = []rune{0x1F110, 0x1F130, 0x1F150, 0x1F170, 0x1F1E6}

func enclosedLetter(r rune) rune {
	for _, base := range letterBlocks {
		if r >= base && r < base+26 {
			return 'a' + (r - base)
		}
	}
	return r
}

// Normalize transliterates text to ASCII, lowercases it and drops every
// character outside [a-z0-9]. Already normalized text is returned unchanged.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	// transform chains keep internal state, so build one per call
	fold := transform.Chain(runes.Map(enclosedLetter), norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	decomposed, _, err := transform.String(fold, text)
	if err != nil {
		decomposed = text
	}

	ascii := strings.ToLower(unidecode.Unidecode(decomposed))
	var b strings.Builder
	b.Grow(len(ascii))
	for _, r := range ascii {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
