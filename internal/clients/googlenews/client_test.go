package googlenews

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/allocator/internal/domain"
)

const feed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel>
<title>"VOO stock" - Google News</title>
<item>
  <title>Vanguard S&amp;P 500 ETF hits record</title>
  <link>https://news.example/1</link>
  <pubDate>Mon, 01 Jul 2024 13:00:00 GMT</pubDate>
  <description>&lt;a href="https://news.example/1"&gt;Record &lt;b&gt;close&lt;/b&gt;&lt;/a&gt;&amp;nbsp;&lt;font color="#6f6f6f"&gt;Reuters&lt;/font&gt;</description>
</item>
<item>
  <title></title>
  <link>https://news.example/2</link>
</item>
</channel></rss>`

func TestFetchHeadlines_ParsesAndStrips(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rss/search", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "VOO stock", q.Get("q"))
		assert.Equal(t, "en-US", q.Get("hl"))
		assert.Equal(t, "US", q.Get("gl"))
		assert.Equal(t, "US:en", q.Get("ceid"))

		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(feed))
	}))
	defer server.Close()

	c := NewClient(server.URL, 0, zerolog.Nop())
	headlines, err := c.FetchHeadlines(context.Background(), "voo", 10)
	require.NoError(t, err)
	require.Len(t, headlines, 1)

	h := headlines[0]
	assert.Equal(t, "Vanguard S&P 500 ETF hits record", h.Title)
	assert.NotContains(t, h.Body, "<")
	assert.Contains(t, h.Body, "Record close")
	assert.Contains(t, h.Body, "Reuters")
	assert.Equal(t, "https://news.example/1", h.URL)
	assert.Equal(t, 2024, h.PublishedAt.Year())
}

func TestFetchHeadlines_Malformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<rss><channel><item>"))
	}))
	defer server.Close()

	c := NewClient(server.URL, 0, zerolog.Nop())
	_, err := c.FetchHeadlines(context.Background(), "VOO", 10)
	assert.True(t, domain.IsNoData(err))
}

func TestFetchHeadlines_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewClient(server.URL, 0, zerolog.Nop())
	_, err := c.FetchHeadlines(context.Background(), "VOO", 10)
	assert.True(t, domain.IsTransient(err))
}
