package extras

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeTitle maps a title into the shared key space: NFKC compatibility
// form, Unicode case folding, dashes/colons/underscores treated as spaces, and
// whitespace runs collapsed. Full-width and half-width variants normalize alike.
func NormalizeTitle(title string) string {
	folded := cases.Fold().String(norm.NFKC.String(title))
	var b strings.Builder
	b.Grow(len(folded))
	pendingSpace := false
	for _, r := range folded {
		if unicode.IsSpace(r) || r == '-' || r == ':' || r == '_' {
			pendingSpace = b.Len() > 0
			continue
		}
		if pendingSpace {
			b.WriteByte(' ')
			pendingSpace = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// NormalizeKey normalizes a raw key according to the keying.
func NormalizeKey(keying Keying, key string) string {
	if keying == ByID {
		return strings.TrimSpace(key)
	}
	return NormalizeTitle(key)
}
