// Package tokenizer turns input lines into words. A line is lowercased and
// split on whitespace; every non-empty field is a word. There is no stemming,
// stop-word removal or punctuation handling.
//
// Lines are treated as bytes, not text: only ASCII A-Z is lowercased and only
// ASCII whitespace separates words. Every other byte, valid UTF-8 or not, is
// copied into the word unchanged.
package tokenizer

import (
	"fmt"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/indexgen/pkg/errors"
)

// Token is a single lowercased word and the 1-based line it appeared on.
type Token struct {
	Term string
	Line int
}

// Tokenizer splits lines into tokens, optionally enforcing a word length limit.
type Tokenizer struct {
	maxWordLength int
}

// New returns a Tokenizer. A maxWordLength of 0 disables the length check.
func New(maxWordLength int) *Tokenizer {
	return &Tokenizer{maxWordLength: maxWordLength}
}

// Tokenize breaks one input line into tokens. The trailing line terminator, if
// still present, is treated as whitespace. A word longer than the configured
// limit is an error; it is never truncated.
func (t *Tokenizer) Tokenize(text string, line int) ([]Token, error) {
	words := strings.FieldsFunc(Lower(text), isSpace)
	tokens := make([]Token, 0, len(words))
	for _, word := range words {
		if t.maxWordLength > 0 && len(word) > t.maxWordLength {
			return nil, fmt.Errorf("%w: line %d: %d bytes (limit %d)",
				apperrors.ErrWordTooLong, line, len(word), t.maxWordLength)
		}
		tokens = append(tokens, Token{
			Term: word,
			Line: line,
		})
	}
	return tokens, nil
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

// Lower maps A-Z to a-z and leaves every other byte alone. It is the case
// folding applied to indexed words.
func Lower(s string) string {
	i := strings.IndexFunc(s, func(r rune) bool { return 'A' <= r && r <= 'Z' })
	if i < 0 {
		return s
	}
	b := []byte(s)
	for j := i; j < len(b); j++ {
		if c := b[j]; 'A' <= c && c <= 'Z' {
			b[j] = c + 'a' - 'A'
		}
	}
	return string(b)
}
