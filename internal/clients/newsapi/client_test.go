package newsapi

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

func TestFetchHeadlines_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/everything", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		q := r.URL.Query()
		assert.Equal(t, `"AAPL" OR AAPL`, q.Get("q"))
		assert.Equal(t, "en", q.Get("language"))
		assert.Equal(t, "publishedAt", q.Get("sortBy"))
		assert.Equal(t, "100", q.Get("pageSize"))

		_, _ = w.Write([]byte(`{"status":"ok","articles":[
			{"title":"Apple beats estimates","description":"Strong quarter","url":"https://a","publishedAt":"2024-05-01T10:00:00Z"},
			{"title":"","description":"untitled"},
			{"title":"Apple slides","description":null,"url":"https://b"}
		]}`))
	}))
	defer server.Close()

	c := NewClient("secret", server.URL, 0, zerolog.Nop())
	headlines, err := c.FetchHeadlines(context.Background(), "aapl", 250)
	require.NoError(t, err)
	require.Len(t, headlines, 2)
	assert.Equal(t, "Apple beats estimates", headlines[0].Title)
	assert.Equal(t, "Strong quarter", headlines[0].Body)
	assert.Equal(t, 2024, headlines[0].PublishedAt.Year())
	assert.Equal(t, "", headlines[1].Body)
}

func TestFetchHeadlines_PageSizeFollowsLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "30", r.URL.Query().Get("pageSize"))
		_, _ = w.Write([]byte(`{"status":"ok","articles":[{"title":"x"}]}`))
	}))
	defer server.Close()

	c := NewClient("secret", server.URL, 0, zerolog.Nop())
	_, err := c.FetchHeadlines(context.Background(), "AAPL", 30)
	require.NoError(t, err)
}

func TestFetchHeadlines_Errors(t *testing.T) {
	status := http.StatusServiceUnavailable
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"status":"error","code":"x","message":"y"}`))
	}))
	defer server.Close()

	c := NewClient("secret", server.URL, 0, zerolog.Nop())
	_, err := c.FetchHeadlines(context.Background(), "AAPL", 10)
	assert.True(t, domain.IsTransient(err))

	status = http.StatusUnauthorized
	_, err = c.FetchHeadlines(context.Background(), "AAPL", 10)
	assert.True(t, domain.IsNoData(err))

	status = http.StatusOK
	_, err = c.FetchHeadlines(context.Background(), "AAPL", 10)
	assert.True(t, domain.IsNoData(err))
}
