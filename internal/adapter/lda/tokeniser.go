package lda

import "strings"

// ngramTokeniser splits cleaned text on whitespace and emits every n-gram
// with min <= n <= max. It satisfies nlp.Tokeniser.
type ngramTokeniser struct {
	min int
	max int
}

func newNgramTokeniser(min, max int) ngramTokeniser {
	if min < 1 {
		min = 1
	}
	if max < min {
		max = min
	}
	return ngramTokeniser{min: min, max: max}
}

// ForEachIn calls f for each n-gram in input.
func (t ngramTokeniser) ForEachIn(input string, f func(token string)) {
	words := strings.Fields(strings.ToLower(input))
	for n := t.min; n <= t.max; n++ {
		for i := 0; i+n <= len(words); i++ {
			if n == 1 {
				f(words[i])
				continue
			}
			f(strings.Join(words[i:i+n], " "))
		}
	}
}

// Tokenise returns every n-gram in input.
func (t ngramTokeniser) Tokenise(input string) []string {
	var tokens []string
	t.ForEachIn(input, func(token string) {
		tokens = append(tokens, token)
	})
	return tokens
}

func (t ngramTokeniser) counts(input string) map[string]float64 {
	counts := make(map[string]float64)
	t.ForEachIn(input, func(token string) {
		counts[token]++
	})
	return counts
}
