// Package newsapi provides a client for the NewsAPI /v2/everything endpoint.
package newsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/aristath/allocator/internal/domain"
)

// ProviderName identifies NewsAPI in errors, logs and metrics
const ProviderName = "newsapi"

const (
	defaultBaseURL = "https://newsapi.org"
	maxPageSize    = 100
)

type article struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"publishedAt"`
}

type everythingResponse struct {
	Status   string    `json:"status"`
	Code     string    `json:"code"`
	Message  string    `json:"message"`
	Articles []article `json:"articles"`
}

// Client is the NewsAPI client
type Client struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	log         zerolog.Logger
}

// NewClient creates a NewsAPI client
func NewClient(apiKey, baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		// Developer plan: 100 requests/day, bursts are fine
		rateLimiter: rate.NewLimiter(rate.Limit(1), 5),
		log:         log.With().Str("client", ProviderName).Logger(),
	}
}

// Name implements domain.NewsProvider
func (c *Client) Name() string {
	return ProviderName
}

// Configured reports whether an API key is present
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// FetchHeadlines returns the newest English articles mentioning symbol.
// Articles without a title are dropped.
func (c *Client) FetchHeadlines(ctx context.Context, symbol string, limit int) ([]domain.Headline, error) {
	symbol = domain.NormalizeSymbol(symbol)
	if c.apiKey == "" {
		return nil, domain.NewNoDataError(ProviderName, symbol, 0, fmt.Errorf("api key not configured"))
	}
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	pageSize := limit
	if pageSize <= 0 || pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	params := url.Values{}
	params.Set("q", fmt.Sprintf("%q OR %s", symbol, symbol))
	params.Set("language", "en")
	params.Set("sortBy", "publishedAt")
	params.Set("pageSize", strconv.Itoa(pageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/everything?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.NewTransientError(ProviderName, symbol, 0, err)
	}
	defer resp.Body.Close()

	if err := domain.ClassifyStatus(ProviderName, symbol, resp.StatusCode); err != nil {
		return nil, err
	}

	var body everythingResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, domain.NewNoDataError(ProviderName, symbol, resp.StatusCode, fmt.Errorf("failed to decode response: %w", err))
	}
	if body.Status == "error" {
		return nil, domain.NewNoDataError(ProviderName, symbol, resp.StatusCode, fmt.Errorf("%s: %s", body.Code, body.Message))
	}

	headlines := make([]domain.Headline, 0, len(body.Articles))
	for _, a := range body.Articles {
		if strings.TrimSpace(a.Title) == "" {
			continue
		}
		headlines = append(headlines, domain.Headline{
			PublishedAt: a.PublishedAt,
			Title:       a.Title,
			Body:        a.Description,
			URL:         a.URL,
		})
	}
	if len(headlines) == 0 {
		return nil, domain.NewNoDataError(ProviderName, symbol, resp.StatusCode, fmt.Errorf("no articles"))
	}

	c.log.Debug().Str("symbol", symbol).Int("articles", len(headlines)).Msg("Fetched headlines")
	return headlines, nil
}
