package orchestrator

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/allocator/internal/database"
	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/aristath/allocator/internal/modules/signals"
	"github.com/aristath/allocator/internal/modules/store"
)

// flatPrices serves one bar per calendar day in the requested range
type flatPrices struct {
	close float64
}

func (f flatPrices) FetchDailyPrices(ctx context.Context, symbol string, start, end time.Time) ([]domain.PriceBar, error) {
	var bars []domain.PriceBar
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		bars = append(bars, domain.PriceBar{Date: d, Close: decimal.NewFromFloat(f.close), Volume: decimal.NewFromInt(1_000_000)})
	}
	return bars, nil
}

type noNews struct{}

func (noNews) FetchHeadlines(ctx context.Context, symbol string, limit int) ([]domain.Headline, error) {
	return nil, nil
}

type zeroScorer struct{}

func (zeroScorer) Score(ctx context.Context, texts []string) (float64, error) { return 0, nil }

func newPool(t *testing.T) *optimization.Pool {
	t.Helper()
	p := optimization.NewPool(optimization.NewMVOptimizer(zerolog.Nop()), 1)
	t.Cleanup(p.Close)
	return p
}

func TestRecommend_EndToEndFlatMarket(t *testing.T) {
	db, err := database.New(database.Config{Path: database.MemoryPath, Driver: database.DriverCGO, Name: "recommend-test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	st := store.New(db.Conn(), zerolog.Nop())
	engine := signals.NewEngine(st, flatPrices{close: 100}, noNews{}, zeroScorer{}, zerolog.Nop())
	rec := NewRecommender(engine, st, newPool(t), zerolog.Nop())

	out, err := rec.Recommend(context.Background(), Request{Risk: "balanced", Amount: 10000, Symbols: []string{"VOO", "QQQM"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"VOO", "QQQM"}, out.Inputs.Symbols)
	assert.Equal(t, map[string]float64{"VOO": 0.5, "QQQM": 0.5}, out.AllocationWeights)
	assert.Equal(t, map[string]float64{"VOO": 5000.00, "QQQM": 5000.00}, out.AllocationDollars)
	require.Len(t, out.Signals, 2)
	for _, s := range out.Signals {
		assert.Equal(t, 0.0, s.Momentum)
		assert.Equal(t, 0.0, s.Sentiment)
		assert.Equal(t, 0.0, s.Score)
	}
	assert.Greater(t, out.CovEstimationDays, 300)
	assert.Equal(t, 0.30, out.Policy.MaxWeight)
	assert.Contains(t, out.Notes, covarianceNote)
}

// scriptedEngine returns fixed snapshots or errors per symbol
type scriptedEngine struct {
	scores      map[string]float64
	computeErr  map[string]error
	backfillErr error
	backfilled  []string
}

func (e *scriptedEngine) BackfillPrices(ctx context.Context, symbol string, lookbackDays int) (int64, error) {
	e.backfilled = append(e.backfilled, symbol)
	return 0, e.backfillErr
}

func (e *scriptedEngine) ComputeAndPersist(ctx context.Context, symbol string, date time.Time) (*domain.SignalSnapshot, error) {
	if err := e.computeErr[symbol]; err != nil {
		return nil, err
	}
	return &domain.SignalSnapshot{Symbol: symbol, Score: e.scores[symbol]}, nil
}

type emptyMatrix struct{}

func (emptyMatrix) LoadPriceMatrix(ctx context.Context, symbols []string, start, end time.Time) (*domain.PriceMatrix, error) {
	return &domain.PriceMatrix{Symbols: symbols}, nil
}

type recordingSolver struct {
	mu        []float64
	cov       [][]float64
	maxWeight float64
	err       error
}

func (s *recordingSolver) Solve(ctx context.Context, mu []float64, cov [][]float64, maxWeight float64) (optimization.Solution, error) {
	s.mu, s.cov, s.maxWeight = mu, cov, maxWeight
	if s.err != nil {
		return optimization.Solution{}, s.err
	}
	return optimization.Solution{Weights: optimization.EqualWeights(len(mu))}, nil
}

func TestRecommend_DefaultsToETFCore(t *testing.T) {
	engine := &scriptedEngine{}
	solver := &recordingSolver{}
	rec := NewRecommender(engine, emptyMatrix{}, solver, zerolog.Nop())

	out, err := rec.Recommend(context.Background(), Request{Risk: "aggressive", Amount: 1200})
	require.NoError(t, err)

	assert.Equal(t, ETFCore, engine.backfilled)
	assert.Equal(t, ETFCore, out.Inputs.Symbols)
	assert.Equal(t, 0.40, solver.maxWeight)
	assert.Equal(t, 0, out.CovEstimationDays)
	assert.Equal(t, 0.04, solver.cov[5][5])
	assert.Equal(t, 200.0, out.AllocationDollars["AGG"])
}

func TestRecommend_UnknownAssetScoresZeroWithNote(t *testing.T) {
	engine := &scriptedEngine{
		scores:     map[string]float64{"VOO": 0.2},
		computeErr: map[string]error{"ZZZ": &domain.UnknownAssetError{Symbol: "ZZZ"}},
	}
	solver := &recordingSolver{}
	rec := NewRecommender(engine, emptyMatrix{}, solver, zerolog.Nop())

	out, err := rec.Recommend(context.Background(), Request{Risk: "unknown", Amount: 100, Symbols: []string{"voo", "zzz"}})
	require.NoError(t, err)

	assert.Equal(t, []float64{0.2, 0}, solver.mu)
	assert.Equal(t, 0.35, solver.maxWeight)
	assert.Contains(t, out.Notes, "ZZZ: unknown asset, score set to 0")
	assert.NotEmpty(t, out.Signals[1].Error)
}

func TestRecommend_BackfillFailureIsNoted(t *testing.T) {
	engine := &scriptedEngine{backfillErr: domain.NewTransientError("yahoo", "VOO", 0, errors.New("timeout"))}
	rec := NewRecommender(engine, emptyMatrix{}, &recordingSolver{}, zerolog.Nop())

	out, err := rec.Recommend(context.Background(), Request{Risk: "balanced", Amount: 100, Symbols: []string{"VOO"}})
	require.NoError(t, err)
	assert.Len(t, out.Notes, 2)
}

func TestRecommend_SolverErrorPropagates(t *testing.T) {
	rec := NewRecommender(&scriptedEngine{}, emptyMatrix{}, &recordingSolver{err: optimization.ErrPoolClosed}, zerolog.Nop())

	_, err := rec.Recommend(context.Background(), Request{Risk: "balanced", Amount: 100})
	assert.ErrorIs(t, err, optimization.ErrPoolClosed)
}

func TestRecommend_RejectsNonFiniteAmount(t *testing.T) {
	for _, amount := range []float64{math.Inf(1), math.Inf(-1), math.NaN(), 0} {
		engine := &scriptedEngine{}
		rec := NewRecommender(engine, emptyMatrix{}, &recordingSolver{}, zerolog.Nop())

		_, err := rec.Recommend(context.Background(), Request{Risk: "balanced", Amount: amount, Symbols: []string{"VOO"}})
		assert.Error(t, err, "amount %v", amount)
		assert.Empty(t, engine.backfilled, "no backfill for amount %v", amount)
	}
}

func TestRecommend_DollarsRoundedToCents(t *testing.T) {
	rec := NewRecommender(&scriptedEngine{}, emptyMatrix{}, &recordingSolver{}, zerolog.Nop())

	out, err := rec.Recommend(context.Background(), Request{Risk: "aggressive", Amount: 100, Symbols: []string{"A", "B", "C"}})
	require.NoError(t, err)

	for _, d := range out.AllocationDollars {
		assert.Equal(t, 33.33, d)
	}
	var sum float64
	for _, w := range out.AllocationWeights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.False(t, math.IsNaN(sum))
}
