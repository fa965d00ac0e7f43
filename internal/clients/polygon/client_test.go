package polygon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/allocator/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(Config{APIKey: "test-key", BaseURL: server.URL, RequestsPerMin: 6000}, zerolog.Nop())
}

func TestFetchDailyPrices_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/aggs/ticker/VOO/range/1/day/2024-01-02/2024-01-03", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("adjusted"))
		assert.Equal(t, "asc", r.URL.Query().Get("sort"))
		assert.Equal(t, "50000", r.URL.Query().Get("limit"))
		assert.Equal(t, "test-key", r.URL.Query().Get("apiKey"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"OK","results":[
			{"t":1704171600000,"c":435.5,"v":1200},
			{"t":1704258000000,"c":437.25,"v":1300.5}
		]}`))
	})

	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars, err := client.FetchDailyPrices(context.Background(), "voo", start, start.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, bars, 2)

	assert.Equal(t, start, bars[0].Date)
	assert.Equal(t, "435.5", bars[0].Close.String())
	assert.Equal(t, "1300.5", bars[1].Volume.String())
}

func TestFetchDailyPrices_EmptyIsNoData(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"OK","results":[]}`))
	})

	_, err := client.FetchDailyPrices(context.Background(), "VOO", time.Now(), time.Now())
	require.Error(t, err)
	assert.True(t, domain.IsNoData(err))
	assert.False(t, domain.IsTransient(err))
}

func TestFetchDailyPrices_StatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
		{http.StatusForbidden, false},
		{http.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})

			_, err := client.FetchDailyPrices(context.Background(), "VOO", time.Now(), time.Now())
			require.Error(t, err)
			assert.Equal(t, tt.transient, domain.IsTransient(err))
			assert.Equal(t, !tt.transient, domain.IsNoData(err))
		})
	}
}

func TestFetchDailyPrices_MalformedIsNoData(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})

	_, err := client.FetchDailyPrices(context.Background(), "VOO", time.Now(), time.Now())
	assert.True(t, domain.IsNoData(err))
}

func TestMostActive_FiltersOddTickers(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/snapshot/locale/us/markets/stocks/most-active", r.URL.Path)
		_, _ = w.Write([]byte(`{"tickers":[
			{"ticker":"AAPL"},{"ticker":"BRK-B"},{"ticker":"^VIX"},
			{"ticker":"ABC.U"},{"ticker":"XYZ.W"},{"ticker":"TSLA"},{"ticker":"NVDA"}
		]}`))
	})

	tickers, err := client.MostActive(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "TSLA"}, tickers)
}

func TestClient_WithoutKey(t *testing.T) {
	client := NewClient(Config{}, zerolog.Nop())
	assert.False(t, client.Configured())
	assert.Equal(t, ProviderName, client.Name())

	_, err := client.MostActive(context.Background(), 10)
	assert.True(t, domain.IsNoData(err))
}
