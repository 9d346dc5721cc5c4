package lda

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNgramTokeniser(t *testing.T) {
	tests := []struct {
		name     string
		min, max int
		input    string
		want     []string
	}{
		{"unigrams", 1, 1, "graph neural network", []string{"graph", "neural", "network"}},
		{"bigrams only", 2, 2, "graph neural network", []string{"graph neural", "neural network"}},
		{"uni and bi", 1, 2, "deep learning", []string{"deep", "learning", "deep learning"}},
		{"too short", 3, 3, "two words", nil},
		{"invalid range clamps", 0, 0, "Word", []string{"word"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := newNgramTokeniser(tt.min, tt.max)
			assert.Equal(t, tt.want, tok.Tokenise(tt.input))
		})
	}
}
