package lpr

import (
	"strings"
	"unicode"
)

// NormalizePlate canonicalizes a raw vendor plate string: whitespace,
// hyphens and punctuation are stripped, ASCII letters are uppercased,
// and non-ASCII letters (Hangul plate class markers among them) pass
// through unchanged.
func NormalizePlate(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))

	for _, r := range raw {
		switch {
		case unicode.IsSpace(r), r == '-', r == '.', r == '_':
			continue
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - ('a' - 'A'))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		}
	}
	return b.String()
}
