package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/allocator/internal/domain"
)

type fakeEngine struct {
	backfillSymbol string
	backfillDays   int
	computeDate    time.Time
	err            error
}

func (f *fakeEngine) BackfillPrices(ctx context.Context, symbol string, lookbackDays int) (int64, error) {
	f.backfillSymbol, f.backfillDays = symbol, lookbackDays
	return 42, f.err
}

func (f *fakeEngine) ComputeAndPersist(ctx context.Context, symbol string, date time.Time) (*domain.SignalSnapshot, error) {
	f.computeDate = date
	if f.err != nil {
		return nil, f.err
	}
	return &domain.SignalSnapshot{Symbol: symbol, Score: 0.3}, nil
}

func (f *fakeEngine) Combine(ctx context.Context, symbol string) (*domain.SignalSnapshot, error) {
	return &domain.SignalSnapshot{Symbol: symbol, Momentum: 0.1}, f.err
}

type fakeLatest struct {
	rows map[domain.SignalKind]domain.SignalObservation
}

func (f *fakeLatest) LatestSignals(ctx context.Context, symbol string) (map[domain.SignalKind]domain.SignalObservation, error) {
	return f.rows, nil
}

func newRouter(engine *fakeEngine, latest *fakeLatest) http.Handler {
	r := chi.NewRouter()
	NewHandler(engine, latest, zerolog.Nop()).RegisterRoutes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleBackfill(t *testing.T) {
	engine := &fakeEngine{}
	rec := do(t, newRouter(engine, &fakeLatest{}), "POST", "/signals/backfill", `{"symbol":"voo"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "voo", engine.backfillSymbol)
	assert.Equal(t, 1095, engine.backfillDays)

	var body map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "VOO", body["data"]["symbol"])
	assert.Equal(t, float64(42), body["data"]["upserted"])
}

func TestHandleBackfill_Validation(t *testing.T) {
	rec := do(t, newRouter(&fakeEngine{}, &fakeLatest{}), "POST", "/signals/backfill", `{"lookback_days":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCompute_DateAndErrors(t *testing.T) {
	engine := &fakeEngine{}
	router := newRouter(engine, &fakeLatest{})

	rec := do(t, router, "POST", "/signals/compute", `{"symbol":"VOO","date":"2024-01-05"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), engine.computeDate)

	rec = do(t, router, "POST", "/signals/compute", `{"symbol":"VOO","date":"05/01/2024"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	engine.err = &domain.UnknownAssetError{Symbol: "VOO"}
	rec = do(t, router, "POST", "/signals/compute", `{"symbol":"VOO"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlePreview(t *testing.T) {
	router := newRouter(&fakeEngine{}, &fakeLatest{})

	assert.Equal(t, http.StatusBadRequest, do(t, router, "GET", "/signals/", "").Code)

	rec := do(t, router, "GET", "/signals/?symbol=QQQM", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"momentum":0.1`)
}

func TestHandleLatest(t *testing.T) {
	latest := &fakeLatest{}
	router := newRouter(&fakeEngine{}, latest)

	assert.Equal(t, http.StatusNotFound, do(t, router, "GET", "/signals/VOO/latest", "").Code)

	latest.rows = map[domain.SignalKind]domain.SignalObservation{
		domain.SignalComposite: {Date: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), Value: 0.25},
	}
	rec := do(t, router, "GET", "/signals/VOO/latest", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"composite"`)
	assert.Contains(t, rec.Body.String(), `"2024-01-05"`)
}
