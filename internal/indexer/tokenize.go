package indexer

import (
	"unicode"
)

// Tokenize splits text into runs of letters and digits. Punctuation and
// whitespace separate tokens and never appear in them; empty tokens are dropped.
// Combining marks (Mn, Mc) stay inside a token that has already started, so
// scripts such as Devanagari are not broken apart at vowel signs.
func Tokenize(text string) []string {
	var tokens []string
	start := -1
	for i, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			if start < 0 {
				start = i
			}
		case start >= 0 && isCombiningMark(r):
		default:
			if start >= 0 {
				tokens = append(tokens, text[start:i])
				start = -1
			}
		}
	}
	if start >= 0 {
		tokens = append(tokens, text[start:])
	}
	return tokens
}

func isCombiningMark(r rune) bool {
	return unicode.In(r, unicode.Mn, unicode.Mc)
}
