package ingest

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// normalizeName normalizes a player name for matching: lowercase, accents
// stripped, whitespace collapsed. "Sávio" matches "savio" when the source
// drops the diacritic; æ and ø are letters rather than accents and are kept
// as-is, so "Sæter" only matches "sæter".
func normalizeName(name string) string {
	name = strings.ToLower(name)

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	name, _, _ = transform.String(t, name)

	name = strings.Join(strings.Fields(name), " ")
	return strings.TrimSpace(name)
}
