package signals

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/allocator/internal/database"
	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/modules/store"
)

var testToday = time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC)

// seriesFetcher serves closes on consecutive days ending at testToday
type seriesFetcher struct {
	closes []float64
	err    error
	calls  int
}

func (f *seriesFetcher) FetchDailyPrices(ctx context.Context, symbol string, start, end time.Time) ([]domain.PriceBar, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	bars := make([]domain.PriceBar, 0, len(f.closes))
	first := testToday.AddDate(0, 0, -(len(f.closes) - 1))
	for i, c := range f.closes {
		d := first.AddDate(0, 0, i)
		if d.Before(start) || d.After(end) {
			continue
		}
		bars = append(bars, domain.PriceBar{Date: d, Close: decimal.NewFromFloat(c), Volume: decimal.NewFromInt(1000)})
	}
	return bars, nil
}

type fakeNews struct {
	headlines []domain.Headline
	err       error
}

func (f *fakeNews) FetchHeadlines(ctx context.Context, symbol string, limit int) ([]domain.Headline, error) {
	return f.headlines, f.err
}

type fakeScorer struct {
	score float64
	err   error
	texts []string
}

func (f *fakeScorer) Score(ctx context.Context, texts []string) (float64, error) {
	f.texts = texts
	return f.score, f.err
}

type fixture struct {
	engine *Engine
	store  *store.Store
	prices *seriesFetcher
	news   *fakeNews
	scorer *fakeScorer
}

func newFixture(t *testing.T, closes []float64) *fixture {
	t.Helper()

	db, err := database.New(database.Config{Path: database.MemoryPath, Driver: database.DriverCGO, Name: "signals-test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	f := &fixture{
		store:  store.New(db.Conn(), zerolog.Nop()),
		prices: &seriesFetcher{closes: closes},
		news:   &fakeNews{},
		scorer: &fakeScorer{},
	}
	f.engine = NewEngine(f.store, f.prices, f.news, f.scorer, zerolog.Nop())
	f.engine.now = func() time.Time { return testToday.Add(15 * time.Hour) }
	return f
}

func flat(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func countSignals(t *testing.T, s *store.Store, symbol string) int {
	t.Helper()
	a, err := s.GetAssetBySymbol(context.Background(), symbol)
	require.NoError(t, err)
	if a == nil {
		return 0
	}
	n, err := s.CountSignals(context.Background(), a.ID)
	require.NoError(t, err)
	return n
}

func TestBackfillPrices_Idempotent(t *testing.T) {
	f := newFixture(t, flat(30, 100))
	ctx := context.Background()

	n, err := f.engine.BackfillPrices(ctx, "voo", 365)
	require.NoError(t, err)
	assert.Equal(t, int64(30), n)

	_, err = f.engine.BackfillPrices(ctx, "VOO", 365)
	require.NoError(t, err)

	a, err := f.store.GetAssetBySymbol(ctx, "VOO")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, domain.AssetClassETF, a.AssetClass)

	rows, err := f.store.LoadPrices(ctx, a.ID, testToday.AddDate(-1, 0, 0), testToday)
	require.NoError(t, err)
	assert.Len(t, rows, 30)
}

func TestBackfillPrices_KeepsRegisteredClass(t *testing.T) {
	f := newFixture(t, flat(30, 100))
	ctx := context.Background()

	_, err := f.store.EnsureAssets(ctx, []domain.AssetSpec{{Symbol: "AAPL", Name: "Apple", AssetClass: domain.AssetClassEquity}})
	require.NoError(t, err)

	_, err = f.engine.BackfillPrices(ctx, "AAPL", 30)
	require.NoError(t, err)

	a, err := f.store.GetAssetBySymbol(ctx, "AAPL")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, domain.AssetClassEquity, a.AssetClass)
	assert.Equal(t, "Apple", a.Name)
}

func TestBackfillPrices_PropagatesProviderError(t *testing.T) {
	f := newFixture(t, nil)
	f.prices.err = domain.NewNoDataError("fake", "VOO", 0, nil)

	_, err := f.engine.BackfillPrices(context.Background(), "VOO", 30)
	assert.True(t, domain.IsNoData(err))
}

func TestMomentumSignal_FlatIsZero(t *testing.T) {
	f := newFixture(t, flat(150, 100))

	m, err := f.engine.MomentumSignal(context.Background(), "VOO", 60)
	require.NoError(t, err)
	assert.Equal(t, 0.0, m)
	assert.Equal(t, 1, f.prices.calls, "missing history triggers one backfill")
}

func TestMomentumSignal_LinearTenPercent(t *testing.T) {
	closes := make([]float64, 61)
	for i := range closes {
		closes[i] = 100 + 10*float64(i)/60
	}
	f := newFixture(t, closes)

	m, err := f.engine.MomentumSignal(context.Background(), "VOO", 60)
	require.NoError(t, err)
	assert.InDelta(t, 0.10, m, 1e-9)
}

func TestMomentumSignal_UsesStoredHistory(t *testing.T) {
	f := newFixture(t, flat(100, 50))
	ctx := context.Background()

	_, err := f.engine.BackfillPrices(ctx, "VOO", 365)
	require.NoError(t, err)
	require.Equal(t, 1, f.prices.calls)

	_, err = f.engine.MomentumSignal(ctx, "VOO", 60)
	require.NoError(t, err)
	assert.Equal(t, 1, f.prices.calls, "enough stored closes, no refetch")
}

func TestMomentumSignal_InsufficientAfterBackfill(t *testing.T) {
	f := newFixture(t, flat(20, 100))

	m, err := f.engine.MomentumSignal(context.Background(), "VOO", 60)
	require.NoError(t, err)
	assert.Equal(t, 0.0, m)
}

func TestMomentumSignal_BackfillFailureIsZero(t *testing.T) {
	f := newFixture(t, nil)
	f.prices.err = domain.NewTransientError("fake", "VOO", 503, nil)

	m, err := f.engine.MomentumSignal(context.Background(), "VOO", 60)
	require.NoError(t, err)
	assert.Equal(t, 0.0, m)
}

func TestSentimentSignal_Degrades(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.news.err = domain.NewTransientError("fake", "VOO", 500, nil)
	s, err := f.engine.SentimentSignal(ctx, "VOO", 10)
	require.NoError(t, err)
	assert.Equal(t, 0.0, s)

	f.news.err = nil
	f.news.headlines = []domain.Headline{{Title: "Up", Body: "big"}}
	f.scorer.err = domain.ErrScorerUnavailable
	s, err = f.engine.SentimentSignal(ctx, "VOO", 10)
	require.NoError(t, err)
	assert.Equal(t, 0.0, s)

	f.scorer.err = nil
	f.scorer.score = 0.4
	s, err = f.engine.SentimentSignal(ctx, "VOO", 10)
	require.NoError(t, err)
	assert.Equal(t, 0.4, s)
	assert.Equal(t, []string{"Up big"}, f.scorer.texts)
}

func TestComputeAndPersist_UnknownAsset(t *testing.T) {
	f := newFixture(t, flat(100, 100))

	_, err := f.engine.ComputeAndPersist(context.Background(), "NOPE", testToday)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnknownAsset))

	var unknown *domain.UnknownAssetError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "NOPE", unknown.Symbol)
	assert.Equal(t, 0, f.prices.calls)
}

func TestComputeAndPersist_WritesThreeKindsIdempotently(t *testing.T) {
	closes := make([]float64, 61)
	for i := range closes {
		closes[i] = 100 + 10*float64(i)/60
	}
	f := newFixture(t, closes)
	f.scorer.score = 0.5
	f.news.headlines = []domain.Headline{{Title: "x"}}
	ctx := context.Background()

	_, err := f.engine.BackfillPrices(ctx, "VOO", 365)
	require.NoError(t, err)

	snap, err := f.engine.ComputeAndPersist(ctx, "VOO", testToday)
	require.NoError(t, err)
	assert.InDelta(t, 0.10, snap.Momentum, 1e-9)
	assert.Equal(t, 0.5, snap.Sentiment)
	assert.InDelta(t, 0.7*0.10+0.3*0.5, snap.Score, 1e-9)
	assert.Equal(t, "2024-06-28", snap.Date)

	_, err = f.engine.ComputeAndPersist(ctx, "VOO", testToday)
	require.NoError(t, err)
	assert.Equal(t, 3, countSignals(t, f.store, "VOO"))

	latest, err := f.store.LatestSignals(ctx, "VOO")
	require.NoError(t, err)
	assert.InDelta(t, snap.Score, latest[domain.SignalComposite].Value, 1e-12)
}

func TestCombine_DoesNotPersist(t *testing.T) {
	f := newFixture(t, flat(100, 100))
	f.scorer.score = -0.2
	f.news.headlines = []domain.Headline{{Title: "x"}}

	snap, err := f.engine.Combine(context.Background(), "VOO")
	require.NoError(t, err)
	assert.InDelta(t, 0.3*-0.2, snap.Score, 1e-12)
	assert.Equal(t, 0, countSignals(t, f.store, "VOO"))
}

func TestWithWeights(t *testing.T) {
	f := newFixture(t, flat(100, 100))
	f.scorer.score = 1
	f.news.headlines = []domain.Headline{{Title: "x"}}

	e := f.engine.WithWeights(Weights{Momentum: 0, Sentiment: 1})
	snap, err := e.Combine(context.Background(), "VOO")
	require.NoError(t, err)
	assert.Equal(t, 1.0, snap.Score)
	assert.Equal(t, DefaultWeights(), f.engine.Weights())
}
