package location

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var accentStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeName canonicalizes a zone or area name for comparison: accents
// stripped, lowercased, interior whitespace collapsed. Feed data mixes
// "Nueva Andalucía", "NUEVA ANDALUCIA" and "nueva  andalucia" for the same
// zone, so every comparison in the engine goes through this form.
func NormalizeName(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return ""
	}
	stripped, _, err := transform.String(accentStripper, trimmed)
	if err != nil {
		stripped = trimmed
	}
	return strings.Join(strings.Fields(strings.ToLower(stripped)), " ")
}
