// Package yahoo provides keyless daily price history through go-yfinance.
package yahoo

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/wnjoon/go-yfinance/pkg/models"
	"github.com/wnjoon/go-yfinance/pkg/ticker"

	"github.com/aristath/allocator/internal/domain"
)

// ProviderName identifies Yahoo in errors, logs and metrics
const ProviderName = "yahoo"

// historyFunc fetches daily bars for a symbol over a yfinance period string
type historyFunc func(symbol, period string) ([]models.Bar, error)

// Client is the Yahoo Finance history client
type Client struct {
	history historyFunc
	now     func() time.Time
	log     zerolog.Logger
}

// NewClient creates a Yahoo client backed by go-yfinance
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		history: fetchHistory,
		now:     time.Now,
		log:     log.With().Str("client", ProviderName).Logger(),
	}
}

// Name implements domain.PriceProvider
func (c *Client) Name() string {
	return ProviderName
}

// FetchDailyPrices returns adjusted daily bars for symbol in [start, end], ascending.
// go-yfinance has no context support, so cancellation is only checked before the call.
func (c *Client) FetchDailyPrices(ctx context.Context, symbol string, start, end time.Time) ([]domain.PriceBar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	symbol = domain.NormalizeSymbol(symbol)
	start, end = domain.Date(start), domain.Date(end)
	period := periodFor(c.now().Sub(start))

	raw, err := c.history(symbol, period)
	if err != nil {
		return nil, domain.NewTransientError(ProviderName, symbol, 0, err)
	}

	bars := make([]domain.PriceBar, 0, len(raw))
	for _, b := range raw {
		d := domain.Date(b.Date)
		if d.Before(start) || d.After(end) || b.Close <= 0 {
			continue
		}
		bars = append(bars, domain.PriceBar{
			Date:   d,
			Close:  decimal.NewFromFloat(b.Close),
			Volume: decimal.NewFromFloat(float64(b.Volume)),
		})
	}
	if len(bars) == 0 {
		return nil, domain.NewNoDataError(ProviderName, symbol, 0, fmt.Errorf("no history in window"))
	}

	c.log.Debug().Str("symbol", symbol).Str("period", period).Int("bars", len(bars)).Msg("Fetched history")
	return bars, nil
}

// periodFor picks the smallest yfinance period covering span
func periodFor(span time.Duration) string {
	days := int(span.Hours()/24) + 1
	switch {
	case days <= 30:
		return "1mo"
	case days <= 90:
		return "3mo"
	case days <= 180:
		return "6mo"
	case days <= 365:
		return "1y"
	case days <= 2*365:
		return "2y"
	case days <= 5*365:
		return "5y"
	case days <= 10*365:
		return "10y"
	default:
		return "max"
	}
}

func fetchHistory(symbol, period string) ([]models.Bar, error) {
	t, err := ticker.New(symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to create ticker: %w", err)
	}
	defer t.Close()

	bars, err := t.History(models.HistoryParams{
		Period:     period,
		Interval:   "1d",
		AutoAdjust: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	return bars, nil
}
