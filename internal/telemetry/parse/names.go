package parse

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// UnknownName is the placeholder returned when a participant name field
// decodes to nothing usable.
const UnknownName = "UNK"

// displayNameRunes is the length of the on-screen abbreviation.
const displayNameRunes = 3

// DisplayName derives the short on-screen abbreviation from a raw participant
// name field. Invalid UTF-8 is dropped, the string ends at the first NUL, and
// the first three characters of the last whitespace-separated token are
// upper-cased ("Lewis HAMILTON" -> "HAM"). ok is false when the field holds
// fewer than two characters or only whitespace.
func DisplayName(raw []byte) (name string, ok bool) {
	s := strings.ToValidUTF8(string(raw), "")
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	if utf8.RuneCountInString(s) <= 1 {
		return UnknownName, false
	}

	parts := strings.Fields(s)
	if len(parts) == 0 {
		return UnknownName, false
	}
	token := firstRunes(parts[len(parts)-1], displayNameRunes)

	// Casers are stateful and must not be shared between goroutines.
	return cases.Upper(language.Und).String(token), true
}

// firstRunes returns at most n leading runes of s.
func firstRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
