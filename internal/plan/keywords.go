package plan

import (
	"strings"
	"unicode"
)

func containsAnyPhrase(text string, phrases []string) bool {
	for _, phrase := range phrases {
		if containsPhrase(text, phrase) {
			return true
		}
	}
	return false
}

// containsPhrase reports whether phrase occurs in text starting at a word
// boundary. Risk, rollback and validation rules all match keywords this way.
func containsPhrase(text, phrase string) bool {
	for offset := 0; offset <= len(text); {
		i := strings.Index(text[offset:], phrase)
		if i < 0 {
			return false
		}
		start := offset + i
		if start == 0 || !isWordRune(rune(text[start-1])) {
			return true
		}
		offset = start + 1
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
