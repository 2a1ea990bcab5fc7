package dedup

import (
	"strings"
	"unicode"
)

// Normalize lowercases s, replaces punctuation with spaces, and collapses
// whitespace runs. All matching operates on normalized strings.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func tokenSet(normalized string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(normalized) {
		set[tok] = struct{}{}
	}
	return set
}

// venueArticles are filler tokens that venue listings add or drop freely
// ("The O2" vs "O2 Arena").
var venueArticles = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "at": {},
}

// stripArticles removes article tokens from a normalized venue string. The
// original string is returned when stripping would leave nothing.
func stripArticles(normalized string) string {
	fields := strings.Fields(normalized)
	kept := fields[:0]
	for _, tok := range fields {
		if _, skip := venueArticles[tok]; !skip {
			kept = append(kept, tok)
		}
	}
	if len(kept) == 0 {
		return normalized
	}
	return strings.Join(kept, " ")
}
