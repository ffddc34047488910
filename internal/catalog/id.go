package catalog

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DeriveID turns a title into a URL-safe identifier: the title is
// lower-cased, every run of characters outside [a-z0-9] becomes a single
// "-", and leading/trailing separators are dropped. Accented letters are
// separators, so "Café Noir" becomes "caf-noir".
//
// Titles that differ only in case or punctuation derive the same identifier.
func DeriveID(title string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.ToLower(title) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pending && b.Len() > 0 {
				b.WriteByte('-')
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		pending = true
	}
	return b.String()
}

// foldedID derives the identifier of title with diacritics removed. Two
// titles with the same folded id differ only in accents, case or
// punctuation.
func foldedID(title string) string {
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, title)
	if err != nil {
		folded = title
	}
	return DeriveID(folded)
}
