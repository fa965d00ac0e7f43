package sentiment

import (
	"sync"

	"github.com/jonreiter/govader"
)

// Lexicon is the rule-based VADER compound scorer. The analyzer holds the
// full VADER vocabulary and is safe to share once built.
type Lexicon struct {
	once     sync.Once
	analyzer *govader.SentimentIntensityAnalyzer
}

// NewLexicon returns a scorer over the VADER lexicon. The vocabulary is
// loaded on first use.
func NewLexicon() *Lexicon {
	return &Lexicon{}
}

// Compound returns the normalized polarity of text in [-1, 1]
func (l *Lexicon) Compound(text string) float64 {
	if text == "" {
		return 0
	}
	l.once.Do(func() {
		l.analyzer = govader.NewSentimentIntensityAnalyzer()
	})
	return l.analyzer.PolarityScores(text).Compound
}

// Mean returns the average compound score across texts
func (l *Lexicon) Mean(texts []string) float64 {
	if len(texts) == 0 {
		return 0
	}
	var total float64
	for _, t := range texts {
		total += l.Compound(t)
	}
	return total / float64(len(texts))
}
