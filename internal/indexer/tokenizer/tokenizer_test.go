package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/Adithya-Monish-Kumar-K/srcindex/pkg/errors"
)

func TestTerms(t *testing.T) {
	tests := []struct {
		name string
		text string
		n    int
		want []string
	}{
		{"unigrams", "alpha beta alpha", 1, []string{"alpha", "beta", "alpha"}},
		{"code", "func (s *Server) Start_Loop() {", 1, []string{"func", "s", "server", "start_loop"}},
		{"bigrams", "int main(void)", 2, []string{"int main", "main void"}},
		{"trigrams", "a b c d", 3, []string{"a b c", "b c d"}},
		{"too short", "only", 2, nil},
		{"empty", "  \n\t ", 1, nil},
		{"bad width", "a b", 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Terms(tt.text, tt.n)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTermsAlwaysValid(t *testing.T) {
	text := "package main\n\nimport \"fmt\"\n\nfunc main() {\n\tfmt.Println(\"héllo, wörld\")\n}\n"
	for n := 1; n <= 4; n++ {
		assert.NoError(t, Validate(Terms(text, n), n), "n=%d", n)
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate([]string{"a b", "b c"}, 2))
	assert.NoError(t, Validate(nil, 3))

	bad := [][]string{
		{"a b c"},
		{"a  b"},
		{" a"},
		{"a\tb"},
		{"a\nb"},
	}
	for _, terms := range bad {
		assert.ErrorIs(t, Validate(terms, 2), apperrors.ErrInvariant, "%q", terms)
	}
}

func TestWordsImplementsTokenizer(t *testing.T) {
	var tok Tokenizer = Words{}
	assert.Equal(t, []string{"beta gamma"}, tok.Terms("beta gamma", 2))
}
