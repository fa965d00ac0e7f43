// Package polygon provides a client for the Polygon.io market data REST API.
// It serves daily aggregates for price backfills and the most-active
// snapshot used to seed the universe.
package polygon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/aristath/allocator/internal/domain"
)

const (
	// ProviderName identifies Polygon in errors, logs and metrics
	ProviderName = "polygon"

	defaultBaseURL = "https://api.polygon.io"
	// Free tier allows 5 requests per minute
	defaultRequestsPerMin = 5
)

// Config holds Polygon client settings
type Config struct {
	APIKey         string
	BaseURL        string
	RequestsPerMin float64
	Timeout        time.Duration
}

// aggregate is one bar of /v2/aggs. T is the bar start in epoch milliseconds.
type aggregate struct {
	T int64   `json:"t"`
	C float64 `json:"c"`
	V float64 `json:"v"`
}

type aggregatesResponse struct {
	Status       string      `json:"status"`
	ResultsCount int         `json:"resultsCount"`
	Results      []aggregate `json:"results"`
}

type snapshotResponse struct {
	Status  string `json:"status"`
	Tickers []struct {
		Ticker string `json:"ticker"`
	} `json:"tickers"`
}

// Client is the Polygon.io API client
type Client struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	log         zerolog.Logger
}

// NewClient creates a Polygon client. An empty APIKey yields a client whose
// calls fail with a no-data error; callers should check Configured first.
func NewClient(cfg Config, log zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.RequestsPerMin <= 0 {
		cfg.RequestsPerMin = defaultRequestsPerMin
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerMin/60), 1),
		log:         log.With().Str("client", ProviderName).Logger(),
	}
}

// Name implements domain.PriceProvider
func (c *Client) Name() string {
	return ProviderName
}

// Configured reports whether an API key is present
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// FetchDailyPrices returns adjusted daily bars for symbol in [start, end], ascending.
func (c *Client) FetchDailyPrices(ctx context.Context, symbol string, start, end time.Time) ([]domain.PriceBar, error) {
	symbol = domain.NormalizeSymbol(symbol)
	path := fmt.Sprintf("/v2/aggs/ticker/%s/range/1/day/%s/%s",
		url.PathEscape(symbol), start.Format(domain.DateLayout), end.Format(domain.DateLayout))

	params := url.Values{}
	params.Set("adjusted", "true")
	params.Set("sort", "asc")
	params.Set("limit", "50000")

	var resp aggregatesResponse
	if err := c.get(ctx, symbol, path, params, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, domain.NewNoDataError(ProviderName, symbol, 0, fmt.Errorf("no aggregates returned"))
	}

	bars := make([]domain.PriceBar, 0, len(resp.Results))
	for _, a := range resp.Results {
		bars = append(bars, domain.PriceBar{
			Date:   domain.Date(time.UnixMilli(a.T)),
			Close:  decimal.NewFromFloat(a.C),
			Volume: decimal.NewFromFloat(a.V),
		})
	}

	c.log.Debug().Str("symbol", symbol).Int("bars", len(bars)).Msg("Fetched aggregates")
	return bars, nil
}

// MostActive returns up to count tickers from the most-active snapshot,
// skipping warrants, units and index-like symbols.
func (c *Client) MostActive(ctx context.Context, count int) ([]string, error) {
	var resp snapshotResponse
	if err := c.get(ctx, "", "/v2/snapshot/locale/us/markets/stocks/most-active", url.Values{}, &resp); err != nil {
		return nil, err
	}

	tickers := make([]string, 0, count)
	for _, t := range resp.Tickers {
		if len(tickers) >= count {
			break
		}
		if t.Ticker == "" || excludedTicker(t.Ticker) {
			continue
		}
		tickers = append(tickers, t.Ticker)
	}
	if len(tickers) == 0 {
		return nil, domain.NewNoDataError(ProviderName, "", 0, fmt.Errorf("empty most-active snapshot"))
	}
	return tickers, nil
}

func excludedTicker(ticker string) bool {
	for _, marker := range []string{"-", "^", ".U", ".W"} {
		if strings.Contains(ticker, marker) {
			return true
		}
	}
	return false
}

// get performs one rate-limited GET and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, symbol, path string, params url.Values, out any) error {
	if c.apiKey == "" {
		return domain.NewNoDataError(ProviderName, symbol, 0, fmt.Errorf("api key not configured"))
	}
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	params.Set("apiKey", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return domain.NewTransientError(ProviderName, symbol, 0, err)
	}
	defer resp.Body.Close()

	if err := domain.ClassifyStatus(ProviderName, symbol, resp.StatusCode); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.NewNoDataError(ProviderName, symbol, resp.StatusCode, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}
