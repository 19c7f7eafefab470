package filter

import (
	"strings"
	"unicode"
)

// Token is a whitespace-delimited word of filter input.
type Token struct {
	Text string
	Pos  int // byte offset in the input
}

// Lower returns the token text in lower case.
func (t Token) Lower() string { return strings.ToLower(t.Text) }

// Tokenize splits input into words. The second result is the trailing word
// still being typed: it is non-empty only when the input does not end in
// whitespace, and it is not part of the returned complete tokens.
func Tokenize(input string) (complete []Token, partial Token) {
	start := -1
	for i, r := range input {
		if unicode.IsSpace(r) {
			if start >= 0 {
				complete = append(complete, Token{Text: input[start:i], Pos: start})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		partial = Token{Text: input[start:], Pos: start}
	}
	return complete, partial
}
