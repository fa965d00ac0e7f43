// Package providers fronts the market data and news vendors behind one
// gateway with bounded retry.
package providers

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/metrics"
)

// keyed is implemented by vendor clients that need an API key
type keyed interface {
	Configured() bool
}

// Choose returns premium when it is configured with a key, otherwise fallback.
func Choose[T any](premium, fallback T) T {
	if k, ok := any(premium).(keyed); ok && k.Configured() {
		return premium
	}
	return fallback
}

// Config selects the vendors the gateway talks to
type Config struct {
	Prices domain.PriceProvider
	News   domain.NewsProvider
	// MostActive is nil when no keyed vendor can rank the market
	MostActive domain.MostActiveProvider
	Retry      RetryPolicy
}

// Gateway fetches prices and headlines from exactly one vendor each,
// retrying transient failures.
type Gateway struct {
	prices     domain.PriceProvider
	news       domain.NewsProvider
	mostActive domain.MostActiveProvider
	retry      RetryPolicy
	log        zerolog.Logger
}

// NewGateway creates a provider gateway
func NewGateway(cfg Config, log zerolog.Logger) *Gateway {
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}

	g := &Gateway{
		prices:     cfg.Prices,
		news:       cfg.News,
		mostActive: cfg.MostActive,
		retry:      cfg.Retry,
		log:        log.With().Str("component", "provider_gateway").Logger(),
	}

	g.log.Info().
		Str("prices", cfg.Prices.Name()).
		Str("news", cfg.News.Name()).
		Bool("most_active", cfg.MostActive != nil).
		Msg("Provider gateway configured")

	return g
}

// PriceProviderName returns the active price vendor
func (g *Gateway) PriceProviderName() string {
	return g.prices.Name()
}

// NewsProviderName returns the active news vendor
func (g *Gateway) NewsProviderName() string {
	return g.news.Name()
}

// FetchDailyPrices returns daily bars in [start, end] ascending by date,
// one bar per date.
func (g *Gateway) FetchDailyPrices(ctx context.Context, symbol string, start, end time.Time) ([]domain.PriceBar, error) {
	symbol = domain.NormalizeSymbol(symbol)

	var bars []domain.PriceBar
	err := g.retry.Do(ctx, func(ctx context.Context, attempt int) error {
		var err error
		bars, err = observe(g.prices.Name(), func() ([]domain.PriceBar, error) {
			return g.prices.FetchDailyPrices(ctx, symbol, start, end)
		})
		if err != nil && domain.IsTransient(err) {
			g.log.Warn().Err(err).Str("symbol", symbol).Int("attempt", attempt).Msg("Price fetch failed")
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	return normalizeBars(bars), nil
}

// FetchHeadlines returns up to limit de-duplicated headlines, newest first
// as ordered by the vendor.
func (g *Gateway) FetchHeadlines(ctx context.Context, symbol string, limit int) ([]domain.Headline, error) {
	symbol = domain.NormalizeSymbol(symbol)

	var headlines []domain.Headline
	err := g.retry.Do(ctx, func(ctx context.Context, attempt int) error {
		var err error
		headlines, err = observe(g.news.Name(), func() ([]domain.Headline, error) {
			return g.news.FetchHeadlines(ctx, symbol, limit)
		})
		if err != nil && domain.IsTransient(err) {
			g.log.Warn().Err(err).Str("symbol", symbol).Int("attempt", attempt).Msg("Headline fetch failed")
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	return DedupHeadlines(headlines, limit), nil
}

// ErrNoMostActive is returned when no most-active vendor is configured
var ErrNoMostActive = errors.New("no most-active provider configured")

// MostActive lists the day's most traded symbols
func (g *Gateway) MostActive(ctx context.Context, count int) ([]string, error) {
	if g.mostActive == nil {
		return nil, ErrNoMostActive
	}

	var symbols []string
	err := g.retry.Do(ctx, func(ctx context.Context, _ int) error {
		var err error
		symbols, err = g.mostActive.MostActive(ctx, count)
		return err
	})
	return symbols, err
}

// observe records the outcome and latency of one vendor attempt
func observe[T any](provider string, fn func() (T, error)) (T, error) {
	start := time.Now()
	out, err := fn()
	metrics.ProviderLatency.WithLabelValues(provider).Observe(time.Since(start).Seconds())

	outcome := "ok"
	switch {
	case err == nil:
	case domain.IsTransient(err):
		outcome = "transient"
	case domain.IsNoData(err):
		outcome = "no_data"
	default:
		outcome = "error"
	}
	metrics.ProviderCalls.WithLabelValues(provider, outcome).Inc()

	return out, err
}

// normalizeBars sorts ascending and keeps the last bar seen for each date
func normalizeBars(bars []domain.PriceBar) []domain.PriceBar {
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	out := bars[:0]
	for _, b := range bars {
		b.Date = domain.Date(b.Date)
		if n := len(out); n > 0 && out[n-1].Date.Equal(b.Date) {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}
