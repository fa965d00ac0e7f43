// Package signals derives momentum and sentiment signals per symbol and
// persists them with a weighted composite score.
package signals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/pkg/formulas"
)

const (
	// DefaultMomentumLookback is the trailing window, in observations
	DefaultMomentumLookback = 60
	// DefaultHeadlineLimit is the number of headlines scored per symbol
	DefaultHeadlineLimit = 30

	// momentumPadDays widens the momentum load window to cover weekends and holidays
	momentumPadDays = 120
	// momentumBackfillPadDays is the extra history fetched when the store is short
	momentumBackfillPadDays = 365
)

// Store is the persistence the engine needs
type Store interface {
	EnsureAssets(ctx context.Context, specs []domain.AssetSpec) ([]int64, error)
	GetAssetBySymbol(ctx context.Context, symbol string) (*domain.Asset, error)
	UpsertPrices(ctx context.Context, rows []domain.PriceObservation) (int64, error)
	LoadPrices(ctx context.Context, assetID int64, start, end time.Time) ([]domain.PriceObservation, error)
	UpsertSignals(ctx context.Context, rows []domain.SignalObservation) (int64, error)
}

// PriceFetcher returns daily bars for a symbol
type PriceFetcher interface {
	FetchDailyPrices(ctx context.Context, symbol string, start, end time.Time) ([]domain.PriceBar, error)
}

// HeadlineFetcher returns de-duplicated headlines for a symbol
type HeadlineFetcher interface {
	FetchHeadlines(ctx context.Context, symbol string, limit int) ([]domain.Headline, error)
}

// Engine computes and persists signals
type Engine struct {
	store   Store
	prices  PriceFetcher
	news    HeadlineFetcher
	scorer  domain.SentimentScorer
	weights Weights
	now     func() time.Time
	log     zerolog.Logger
}

// NewEngine creates a signal engine with DefaultWeights
func NewEngine(store Store, prices PriceFetcher, news HeadlineFetcher, scorer domain.SentimentScorer, log zerolog.Logger) *Engine {
	return &Engine{
		store:   store,
		prices:  prices,
		news:    news,
		scorer:  scorer,
		weights: DefaultWeights(),
		now:     time.Now,
		log:     log.With().Str("component", "signals").Logger(),
	}
}

// WithWeights returns a copy of the engine using w for the composite score
func (e *Engine) WithWeights(w Weights) *Engine {
	cp := *e
	cp.weights = w
	return &cp
}

// Weights returns the composite weights in use
func (e *Engine) Weights() Weights {
	return e.weights
}

func (e *Engine) today() time.Time {
	return domain.Date(e.now())
}

// BackfillPrices ensures the asset exists, fetches [today-lookbackDays, today]
// and upserts the bars. Returns the number of affected rows.
func (e *Engine) BackfillPrices(ctx context.Context, symbol string, lookbackDays int) (int64, error) {
	symbol = domain.NormalizeSymbol(symbol)
	if symbol == "" {
		return 0, fmt.Errorf("empty symbol")
	}

	// Empty name and class keep whatever the asset was registered with.
	ids, err := e.store.EnsureAssets(ctx, []domain.AssetSpec{{Symbol: symbol}})
	if err != nil {
		return 0, fmt.Errorf("failed to ensure asset %s: %w", symbol, err)
	}

	end := e.today()
	start := end.AddDate(0, 0, -lookbackDays)

	bars, err := e.prices.FetchDailyPrices(ctx, symbol, start, end)
	if err != nil {
		return 0, err
	}

	rows := make([]domain.PriceObservation, 0, len(bars))
	for _, b := range bars {
		rows = append(rows, domain.PriceObservation{
			AssetID: ids[0],
			Date:    b.Date,
			Close:   b.Close,
			Volume:  b.Volume,
		})
	}

	affected, err := e.store.UpsertPrices(ctx, rows)
	if err != nil {
		return 0, fmt.Errorf("failed to store prices for %s: %w", symbol, err)
	}

	e.log.Debug().Str("symbol", symbol).Int("bars", len(bars)).Int64("affected", affected).Msg("Backfilled prices")
	return affected, nil
}

// MomentumSignal returns the trailing return over lookback observations.
// Missing history is backfilled once; if it is still short the signal is 0.
func (e *Engine) MomentumSignal(ctx context.Context, symbol string, lookback int) (float64, error) {
	if lookback <= 0 {
		lookback = DefaultMomentumLookback
	}
	symbol = domain.NormalizeSymbol(symbol)

	closes, err := e.loadCloses(ctx, symbol, lookback+momentumPadDays)
	if err != nil {
		return 0, err
	}

	if len(closes) < lookback+1 {
		if _, err := e.BackfillPrices(ctx, symbol, lookback+momentumBackfillPadDays); err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			e.log.Warn().Err(err).Str("symbol", symbol).Msg("Momentum backfill failed")
		}
		if closes, err = e.loadCloses(ctx, symbol, lookback+momentumPadDays); err != nil {
			return 0, err
		}
	}

	value, ok := formulas.TrailingReturn(closes, lookback)
	if !ok {
		e.log.Debug().Str("symbol", symbol).Int("closes", len(closes)).Msg("Insufficient history for momentum")
		return 0, nil
	}
	return value, nil
}

func (e *Engine) loadCloses(ctx context.Context, symbol string, days int) ([]float64, error) {
	asset, err := e.store.GetAssetBySymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, nil
	}

	end := e.today()
	rows, err := e.store.LoadPrices(ctx, asset.ID, end.AddDate(0, 0, -days), end)
	if err != nil {
		return nil, fmt.Errorf("failed to load prices for %s: %w", symbol, err)
	}

	closes := make([]float64, 0, len(rows))
	for _, r := range rows {
		closes = append(closes, r.Close.InexactFloat64())
	}
	return formulas.DropNaN(closes), nil
}

// SentimentSignal scores recent headlines. Provider failures and scorer
// unavailability degrade to 0.
func (e *Engine) SentimentSignal(ctx context.Context, symbol string, limit int) (float64, error) {
	score, _, err := e.sentiment(ctx, symbol, limit)
	return score, err
}

// sentiment also reports how many headlines were scored
func (e *Engine) sentiment(ctx context.Context, symbol string, limit int) (float64, int, error) {
	if limit <= 0 {
		limit = DefaultHeadlineLimit
	}
	symbol = domain.NormalizeSymbol(symbol)

	headlines, err := e.news.FetchHeadlines(ctx, symbol, limit)
	if err != nil {
		if ctx.Err() != nil {
			return 0, 0, ctx.Err()
		}
		e.log.Warn().Err(err).Str("symbol", symbol).Msg("Headline fetch failed, sentiment neutral")
		return 0, 0, nil
	}

	texts := make([]string, 0, len(headlines))
	for _, h := range headlines {
		texts = append(texts, strings.TrimSpace(h.Title+" "+h.Body))
	}

	score, err := e.scorer.Score(ctx, texts)
	if err != nil {
		if errors.Is(err, domain.ErrScorerUnavailable) {
			e.log.Warn().Str("symbol", symbol).Msg("Sentiment scorer unavailable, sentiment neutral")
			return 0, len(texts), nil
		}
		if ctx.Err() != nil {
			return 0, 0, ctx.Err()
		}
		e.log.Warn().Err(err).Str("symbol", symbol).Msg("Sentiment scoring failed, sentiment neutral")
		return 0, len(texts), nil
	}
	return score, len(texts), nil
}

// ComputeAndPersist computes momentum, sentiment and the composite for a
// known asset and upserts all three for date.
func (e *Engine) ComputeAndPersist(ctx context.Context, symbol string, date time.Time) (*domain.SignalSnapshot, error) {
	symbol = domain.NormalizeSymbol(symbol)

	asset, err := e.store.GetAssetBySymbol(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", symbol, err)
	}
	if asset == nil {
		return nil, &domain.UnknownAssetError{Symbol: symbol}
	}

	momentum, err := e.MomentumSignal(ctx, symbol, DefaultMomentumLookback)
	if err != nil {
		return nil, fmt.Errorf("momentum for %s: %w", symbol, err)
	}
	sentiment, headlines, err := e.sentiment(ctx, symbol, DefaultHeadlineLimit)
	if err != nil {
		return nil, fmt.Errorf("sentiment for %s: %w", symbol, err)
	}
	score := e.weights.Combine(momentum, sentiment)

	date = domain.Date(date)
	rows := []domain.SignalObservation{
		{
			AssetID:  asset.ID,
			Date:     date,
			Kind:     domain.SignalMomentum,
			Value:    momentum,
			Metadata: map[string]any{"lookback": DefaultMomentumLookback},
		},
		{
			AssetID:  asset.ID,
			Date:     date,
			Kind:     domain.SignalSentiment,
			Value:    sentiment,
			Metadata: map[string]any{"headlines": headlines},
		},
		{
			AssetID: asset.ID,
			Date:    date,
			Kind:    domain.SignalComposite,
			Value:   score,
			Metadata: map[string]any{
				"momentum_weight":  e.weights.Momentum,
				"sentiment_weight": e.weights.Sentiment,
			},
		},
	}
	if _, err := e.store.UpsertSignals(ctx, rows); err != nil {
		return nil, fmt.Errorf("failed to store signals for %s: %w", symbol, err)
	}

	e.log.Debug().
		Str("symbol", symbol).
		Float64("momentum", momentum).
		Float64("sentiment", sentiment).
		Float64("score", score).
		Msg("Signals persisted")

	return &domain.SignalSnapshot{
		Symbol:    symbol,
		Date:      date.Format(domain.DateLayout),
		Momentum:  momentum,
		Sentiment: sentiment,
		Score:     score,
	}, nil
}

// Combine computes the same snapshot as ComputeAndPersist without writing signals.
func (e *Engine) Combine(ctx context.Context, symbol string) (*domain.SignalSnapshot, error) {
	symbol = domain.NormalizeSymbol(symbol)

	momentum, err := e.MomentumSignal(ctx, symbol, DefaultMomentumLookback)
	if err != nil {
		return nil, err
	}
	sentiment, err := e.SentimentSignal(ctx, symbol, DefaultHeadlineLimit)
	if err != nil {
		return nil, err
	}

	return &domain.SignalSnapshot{
		Symbol:    symbol,
		Date:      e.today().Format(domain.DateLayout),
		Momentum:  momentum,
		Sentiment: sentiment,
		Score:     e.weights.Combine(momentum, sentiment),
	}, nil
}
