package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/modules/orchestrator"
	"github.com/aristath/allocator/internal/modules/store"
)

type fakeRecommender struct {
	req orchestrator.Request
	err error
}

func (f *fakeRecommender) Recommend(ctx context.Context, req orchestrator.Request) (*orchestrator.Recommendation, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &orchestrator.Recommendation{
		Inputs:            req,
		AllocationWeights: map[string]float64{"VOO": 1},
		AllocationDollars: map[string]float64{"VOO": req.Amount},
		Notes:             []string{"ok"},
	}, nil
}

type fakeUniverse struct {
	count int
}

func (f *fakeUniverse) ExpandedUniverse(ctx context.Context, count int) []string {
	f.count = count
	return []string{"VOO", "AAPL"}
}

type fakeBackfiller struct {
	symbols  []string
	lookback int
}

func (f *fakeBackfiller) Backfill(ctx context.Context, symbols []string, lookbackDays int) map[string]int64 {
	f.symbols, f.lookback = symbols, lookbackDays
	out := map[string]int64{}
	for _, s := range symbols {
		out[s] = 10
	}
	return out
}

type fakeCatalog struct {
	assets     map[string]*domain.Asset
	ensured    []domain.AssetSpec
	universe   []store.UniverseEntry
	saved      []domain.SavedPortfolio
	listOffset int
	listLimit  int
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{assets: map[string]*domain.Asset{}}
}

func (f *fakeCatalog) EnsureAssets(ctx context.Context, specs []domain.AssetSpec) ([]int64, error) {
	f.ensured = append(f.ensured, specs...)
	ids := make([]int64, len(specs))
	for i, s := range specs {
		a := &domain.Asset{ID: int64(len(f.assets) + 1), Symbol: s.Symbol, Name: s.Name, AssetClass: s.AssetClass}
		f.assets[s.Symbol] = a
		ids[i] = a.ID
	}
	return ids, nil
}

func (f *fakeCatalog) GetAssetBySymbol(ctx context.Context, symbol string) (*domain.Asset, error) {
	return f.assets[symbol], nil
}

func (f *fakeCatalog) ListAssets(ctx context.Context, offset, limit int) ([]domain.Asset, error) {
	f.listOffset, f.listLimit = offset, limit
	return []domain.Asset{{ID: 1, Symbol: "VOO"}}, nil
}

func (f *fakeCatalog) ListUniverse(ctx context.Context) ([]store.UniverseEntry, error) {
	return f.universe, nil
}

func (f *fakeCatalog) SavePortfolio(ctx context.Context, p domain.SavedPortfolio) (*domain.SavedPortfolio, error) {
	p.ID = int64(len(f.saved) + 1)
	f.saved = append(f.saved, p)
	return &p, nil
}

func (f *fakeCatalog) LoadPortfolios(ctx context.Context, userID string) ([]domain.SavedPortfolio, error) {
	var out []domain.SavedPortfolio
	for _, p := range f.saved {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

type fixture struct {
	rec      *fakeRecommender
	universe *fakeUniverse
	backfill *fakeBackfiller
	catalog  *fakeCatalog
	router   http.Handler
}

func newFixture() *fixture {
	f := &fixture{
		rec:      &fakeRecommender{},
		universe: &fakeUniverse{},
		backfill: &fakeBackfiller{},
		catalog:  newFakeCatalog(),
	}
	r := chi.NewRouter()
	NewHandler(f.rec, f.universe, f.backfill, f.catalog, zerolog.Nop()).RegisterRoutes(r)
	f.router = r
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestHandleRecommend_Defaults(t *testing.T) {
	f := newFixture()
	rec := f.do(t, "GET", "/recommend", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "balanced", f.rec.req.Risk)
	assert.Equal(t, 10000.0, f.rec.req.Amount)
	assert.Empty(t, f.rec.req.Symbols)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "allocation_weights")
	assert.Contains(t, body, "allocation_dollars")
	assert.Contains(t, body, "cov_estimation_days")
}

func TestHandleRecommend_ParsesQuery(t *testing.T) {
	f := newFixture()
	rec := f.do(t, "GET", "/recommend?risk=Aggressive&amount=2500.5&symbols=VOO,qqqm&symbols=AGG", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "aggressive", f.rec.req.Risk)
	assert.Equal(t, 2500.5, f.rec.req.Amount)
	assert.Equal(t, []string{"VOO", "qqqm", "AGG"}, f.rec.req.Symbols)
}

func TestHandleRecommend_Validation(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{name: "unknown tier", query: "risk=yolo"},
		{name: "zero amount", query: "amount=0"},
		{name: "bad amount", query: "amount=lots"},
		{name: "infinite amount", query: "amount=Inf"},
		{name: "nan amount", query: "amount=NaN"},
		{name: "long symbol", query: "symbols=ABCDEFGHIJKLMNOPQRSTUVWXYZ"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			rec := f.do(t, "GET", "/recommend?"+tt.query, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandleRecommend_Failure(t *testing.T) {
	f := newFixture()
	f.rec.err = errors.New("db down")

	rec := f.do(t, "GET", "/recommend", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleBuildUniverse(t *testing.T) {
	f := newFixture()
	rec := f.do(t, "POST", "/universe/build", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 100, f.universe.count)
	assert.Equal(t, 1095, f.backfill.lookback)
	assert.Equal(t, []string{"VOO", "AAPL"}, f.backfill.symbols)
	require.Len(t, f.catalog.ensured, 2)
	assert.Equal(t, domain.AssetClassETF, f.catalog.ensured[0].AssetClass)
	assert.Equal(t, domain.AssetClassEquity, f.catalog.ensured[1].AssetClass)

	var body map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, map[string]interface{}{"VOO": float64(10), "AAPL": float64(10)}, body["data"]["upserts"])
}

func TestHandleBuildUniverse_CountBounds(t *testing.T) {
	for _, body := range []string{`{"count":9}`, `{"count":501}`, `{"nope":1}`} {
		f := newFixture()
		rec := f.do(t, "POST", "/universe/build", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestHandleListUniverse_Limit(t *testing.T) {
	f := newFixture()
	score := 0.4
	f.catalog.universe = []store.UniverseEntry{
		{Asset: domain.Asset{Symbol: "VOO"}, Score: &score},
		{Asset: domain.Asset{Symbol: "AGG"}},
		{Asset: domain.Asset{Symbol: "IWM"}},
	}

	rec := f.do(t, "GET", "/universe/list?limit=2", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(3), body["data"]["count"])
	assert.Equal(t, []interface{}{"VOO", "AGG"}, body["data"]["symbols"])
}

func TestHandleAssets(t *testing.T) {
	f := newFixture()

	rec := f.do(t, "POST", "/assets", `{"symbol":"voo","name":"Vanguard S&P 500","asset_class":"etf"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, f.catalog.assets, "VOO")
	assert.Equal(t, domain.AssetClassETF, f.catalog.assets["VOO"].AssetClass)

	rec = f.do(t, "POST", "/assets", `{"symbol":"VOO"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, "POST", "/assets", `{"symbol":"X","asset_class":"commodity"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, "GET", "/assets?offset=5&limit=20", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, f.catalog.listOffset)
	assert.Equal(t, 20, f.catalog.listLimit)

	rec = f.do(t, "GET", "/assets?limit=5000", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlePortfolios(t *testing.T) {
	f := newFixture()

	rec := f.do(t, "POST", "/portfolios", `{"user_id":"u1","allocations":{"VOO":0.6,"AGG":0.4},"policy":{"max_weight":0.4}}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, "POST", "/portfolios", `{"user_id":"u1","allocations":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, "GET", "/portfolios/u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data []domain.SavedPortfolio `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, 0.6, body.Data[0].Allocations["VOO"])

	rec = f.do(t, "GET", "/portfolios/nobody", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data":[]`)
}
