// Package sentiment implements the Sentiment Scorer (spec.md C2): a pure,
// stateless substring-lexicon scorer. Lexicons are injectable so tests
// (and callers needing a different vocabulary) can substitute (spec.md §9).
package sentiment

import "strings"

// Lexicon is a closed set of case-insensitive tokens matched by substring.
type Lexicon []string

// DefaultPositive and DefaultNegative are the fixed lexicons from spec.md §4.2.
var (
	DefaultPositive = Lexicon{"happy", "great", "good", "wonderful", "excited", "love", "amazing", "excellent", "thank", "awesome"}
	DefaultNegative = Lexicon{"sad", "bad", "terrible", "awful", "hate", "angry", "frustrated", "disappointed", "wrong", "fail"}
)

// Scorer computes sentiment against a fixed pair of lexicons.
type Scorer struct {
	positive Lexicon
	negative Lexicon
}

// New returns a Scorer using the default lexicons.
func New() *Scorer {
	return &Scorer{positive: DefaultPositive, negative: DefaultNegative}
}

// NewWithLexicons returns a Scorer using the given lexicons, for tests.
func NewWithLexicons(positive, negative Lexicon) *Scorer {
	return &Scorer{positive: positive, negative: negative}
}

// Score returns clamp(-1, 1, (pos-neg)/3) where pos and neg are
// case-insensitive substring counts against the scorer's lexicons
// (spec.md §4.2). Deterministic and side-effect free.
func (s *Scorer) Score(text string) float64 {
	lower := strings.ToLower(text)
	pos := countMatches(lower, s.positive)
	neg := countMatches(lower, s.negative)
	return clamp(-1, 1, float64(pos-neg)/3)
}

func countMatches(lower string, lexicon Lexicon) int {
	n := 0
	for _, token := range lexicon {
		n += strings.Count(lower, token)
	}
	return n
}

func clamp(lo, hi, v float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
