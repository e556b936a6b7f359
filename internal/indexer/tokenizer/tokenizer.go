// Package tokenizer turns raw source text into word n-gram terms. It
// lower-cases input, splits on anything that is not a letter, digit or
// underscore, and joins every window of n consecutive tokens with a single
// space.
package tokenizer

import (
	"fmt"
	"strings"
	"unicode"

	apperrors "github.com/Adithya-Monish-Kumar-K/srcindex/pkg/errors"
)

// Tokenizer converts document text into an ordered term sequence. Terms must
// be deterministic for a given input and each must span exactly n tokens.
type Tokenizer interface {
	Terms(text string, n int) []string
}

// Words is the default Tokenizer.
type Words struct{}

func (Words) Terms(text string, n int) []string {
	return Terms(text, n)
}

// Tokens splits text into lower-cased identifier-like tokens.
func Tokens(text string) []string {
	text = strings.ToLower(text)
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}

// Terms returns the word n-grams of text. A text with fewer than n tokens
// yields no terms.
func Terms(text string, n int) []string {
	if n <= 0 {
		return nil
	}
	tokens := Tokens(text)
	if len(tokens) < n {
		return nil
	}
	if n == 1 {
		return tokens
	}
	terms := make([]string, 0, len(tokens)-n+1)
	for i := 0; i+n <= len(tokens); i++ {
		terms = append(terms, strings.Join(tokens[i:i+n], " "))
	}
	return terms
}

// Validate checks that every term is made of exactly n non-empty tokens
// separated by single spaces. A violation means the tokenizer is broken and
// is reported as an invariant violation.
func Validate(terms []string, n int) error {
	for i, term := range terms {
		if err := validateTerm(term, n); err != nil {
			return apperrors.Newf(apperrors.ErrInvariant, "term %d %q: %v", i, term, err)
		}
	}
	return nil
}

func validateTerm(term string, n int) error {
	parts := strings.Split(term, " ")
	if len(parts) != n {
		return fmt.Errorf("spans %d tokens, want %d", len(parts), n)
	}
	for _, p := range parts {
		if p == "" {
			return fmt.Errorf("empty token")
		}
		if strings.IndexFunc(p, unicode.IsSpace) >= 0 {
			return fmt.Errorf("stray whitespace")
		}
	}
	return nil
}
