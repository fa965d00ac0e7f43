// Package sentiment scores news text with a hosted classifier and falls
// back to a lexicon when the classifier cannot be used.
package sentiment

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/allocator/internal/domain"
)

// DefaultBatchSize is the classifier chunk size
const DefaultBatchSize = 16

// Options configures a Scorer
type Options struct {
	BatchSize int
	// DisableLexicon removes the fallback path
	DisableLexicon bool
}

// Scorer implements domain.SentimentScorer
type Scorer struct {
	holder    *modelHolder
	lexicon   *Lexicon
	batchSize int
	log       zerolog.Logger
}

// NewScorer creates a scorer. init may be nil, in which case only the
// lexicon path is available.
func NewScorer(init InitFunc, opts Options, log zerolog.Logger) *Scorer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	s := &Scorer{
		holder:    newModelHolder(init),
		batchSize: opts.BatchSize,
		log:       log.With().Str("component", "sentiment").Logger(),
	}
	if !opts.DisableLexicon {
		s.lexicon = NewLexicon()
	}
	return s
}

// Status reports the classifier state: uninitialized, ready or unavailable
func (s *Scorer) Status() string {
	return s.holder.current().String()
}

// Score returns a sentiment in [-1, 1] for texts. Blank texts are ignored;
// no usable text scores exactly 0.
func (s *Scorer) Score(ctx context.Context, texts []string) (float64, error) {
	cleaned := make([]string, 0, len(texts))
	for _, t := range texts {
		if t = strings.TrimSpace(t); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	if len(cleaned) == 0 {
		return 0, nil
	}

	wasUninitialized := s.holder.current() == stateUninitialized
	if clf, ok := s.holder.get(ctx); ok {
		score, err := s.scoreWithModel(ctx, clf, cleaned)
		if err == nil {
			return score, nil
		}
		if s.lexicon == nil {
			return 0, fmt.Errorf("%w: %v", domain.ErrScorerUnavailable, err)
		}
		s.log.Warn().Err(err).Int("texts", len(cleaned)).Msg("Classifier failed, using lexicon")
	} else if wasUninitialized {
		s.log.Warn().Err(s.holder.initErr).Msg("Sentiment classifier unavailable, lexicon only")
	}

	if s.lexicon == nil {
		return 0, domain.ErrScorerUnavailable
	}
	return s.lexicon.Mean(cleaned), nil
}

// scoreWithModel averages positive minus negative over all texts
func (s *Scorer) scoreWithModel(ctx context.Context, clf domain.SentimentClassifier, texts []string) (float64, error) {
	var total float64
	for start := 0; start < len(texts); start += s.batchSize {
		end := min(start+s.batchSize, len(texts))
		chunk := texts[start:end]

		labels, err := clf.Classify(ctx, chunk)
		if err != nil {
			return 0, err
		}
		if len(labels) != len(chunk) {
			return 0, fmt.Errorf("classifier returned %d results for %d texts", len(labels), len(chunk))
		}
		for _, l := range labels {
			total += l.Positive - l.Negative
		}
	}

	score := total / float64(len(texts))
	if math.IsNaN(score) {
		return 0, fmt.Errorf("classifier produced NaN")
	}
	return math.Max(-1, math.Min(1, score)), nil
}
