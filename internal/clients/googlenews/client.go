// Package googlenews reads the keyless Google News RSS search feed.
package googlenews

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/aristath/allocator/internal/domain"
)

// ProviderName identifies Google News in errors, logs and metrics
const ProviderName = "googlenews"

const defaultBaseURL = "https://news.google.com"

type rssFeed struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

// Client is the Google News RSS client
type Client struct {
	baseURL    string
	httpClient *http.Client
	sanitizer  *bluemonday.Policy
	log        zerolog.Logger
}

// NewClient creates a Google News RSS client
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		sanitizer:  bluemonday.StrictPolicy(),
		log:        log.With().Str("client", ProviderName).Logger(),
	}
}

// Name implements domain.NewsProvider
func (c *Client) Name() string {
	return ProviderName
}

// FetchHeadlines returns feed items for "{symbol} stock" with HTML stripped
// from titles and descriptions. limit is applied by the caller after dedup.
func (c *Client) FetchHeadlines(ctx context.Context, symbol string, limit int) ([]domain.Headline, error) {
	symbol = domain.NormalizeSymbol(symbol)

	params := url.Values{}
	params.Set("q", symbol+" stock")
	params.Set("hl", "en-US")
	params.Set("gl", "US")
	params.Set("ceid", "US:en")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/rss/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

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

	var feed rssFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, domain.NewNoDataError(ProviderName, symbol, resp.StatusCode, fmt.Errorf("failed to decode feed: %w", err))
	}

	headlines := make([]domain.Headline, 0, len(feed.Channel.Items))
	for _, item := range feed.Channel.Items {
		title := c.strip(item.Title)
		if title == "" {
			continue
		}
		h := domain.Headline{
			Title: title,
			Body:  c.strip(item.Description),
			URL:   strings.TrimSpace(item.Link),
		}
		if t, err := time.Parse(time.RFC1123, item.PubDate); err == nil {
			h.PublishedAt = t.UTC()
		}
		headlines = append(headlines, h)
	}
	if len(headlines) == 0 {
		return nil, domain.NewNoDataError(ProviderName, symbol, resp.StatusCode, fmt.Errorf("empty feed"))
	}

	c.log.Debug().Str("symbol", symbol).Int("items", len(headlines)).Int("limit", limit).Msg("Fetched feed")
	return headlines, nil
}

// strip removes markup and decodes entities
func (c *Client) strip(s string) string {
	return strings.TrimSpace(html.UnescapeString(c.sanitizer.Sanitize(s)))
}
