package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// markReplacer drops legal marks before decomposition turns them into letters.
var markReplacer = strings.NewReplacer("™", "", "®", "", "©", "", "℠", "")

// NormalizeName returns the comparison key for a product name.
func NormalizeName(name string) string {
	name = strings.TrimSpace(markReplacer.Replace(name))
	if name == "" {
		return ""
	}
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, name)
	if err != nil {
		stripped = name
	}
	folded := cases.Fold().String(stripped)

	var b strings.Builder
	b.Grow(len(folded))
	space := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
			continue
		}
		// Apostrophes join words: "Assassin's" and "Assassins" share a key.
		if r == '\'' || r == '’' {
			continue
		}
		space = true
	}
	return b.String()
}

// EqualNames reports whether two names share a normalized key.
func EqualNames(a, b string) bool {
	na := NormalizeName(a)
	return na != "" && na == NormalizeName(b)
}
