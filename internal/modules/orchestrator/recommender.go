package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/aristath/allocator/internal/utils"
)

const (
	// RecommendLookbackDays is the price history ensured per symbol before scoring
	RecommendLookbackDays = 3 * 365

	covarianceNote = "Signals persisted to DB; covariance from realized daily returns (1y fallback to identity)."
)

// MatrixLoader loads aligned closes for covariance estimation
type MatrixLoader interface {
	LoadPriceMatrix(ctx context.Context, symbols []string, start, end time.Time) (*domain.PriceMatrix, error)
}

// Solver runs the mean-variance optimization
type Solver interface {
	Solve(ctx context.Context, mu []float64, cov [][]float64, maxWeight float64) (optimization.Solution, error)
}

// Request is a single recommendation request
type Request struct {
	Risk    string   `json:"risk"`
	Symbols []string `json:"symbols"`
	Amount  float64  `json:"amount"`
}

// Recommendation is the allocation payload returned to callers
type Recommendation struct {
	Inputs            Request                 `json:"inputs"`
	Signals           []domain.SignalSnapshot `json:"signals"`
	AllocationWeights map[string]float64      `json:"allocation_weights"`
	AllocationDollars map[string]float64      `json:"allocation_dollars"`
	Policy            optimization.RiskPolicy `json:"policy"`
	Notes             []string                `json:"notes"`
	CovEstimationDays int                     `json:"cov_estimation_days"`
}

// Recommender turns a risk tier and an amount into an allocation
type Recommender struct {
	engine SignalEngine
	prices MatrixLoader
	solver Solver
	now    func() time.Time
	log    zerolog.Logger
}

// NewRecommender creates a recommender
func NewRecommender(engine SignalEngine, prices MatrixLoader, solver Solver, log zerolog.Logger) *Recommender {
	return &Recommender{
		engine: engine,
		prices: prices,
		solver: solver,
		now:    time.Now,
		log:    log.With().Str("component", "recommender").Logger(),
	}
}

// Recommend backfills and scores each symbol in turn, estimates covariance
// over the last year and optimizes under the tier's policy. Per-symbol
// problems degrade to a zero score with a note.
func (r *Recommender) Recommend(ctx context.Context, req Request) (*Recommendation, error) {
	defer utils.NewTimer("recommend", r.log).Stop()

	if math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) || req.Amount <= 0 {
		return nil, fmt.Errorf("invalid amount %v: must be a positive finite number", req.Amount)
	}

	symbols := domain.NormalizeSymbols(req.Symbols)
	if len(symbols) == 0 {
		symbols = append([]string(nil), ETFCore...)
	}
	req.Symbols = symbols

	today := domain.Date(r.now())
	notes := []string{covarianceNote}

	snaps := make([]domain.SignalSnapshot, 0, len(symbols))
	mu := make([]float64, 0, len(symbols))
	for _, sym := range symbols {
		if _, err := r.engine.BackfillPrices(ctx, sym, RecommendLookbackDays); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			r.log.Warn().Err(err).Str("symbol", sym).Msg("Backfill failed, using stored prices")
			notes = append(notes, fmt.Sprintf("%s: price backfill failed (%v)", sym, err))
		}

		snap, err := r.engine.ComputeAndPersist(ctx, sym, today)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if errors.Is(err, domain.ErrUnknownAsset) {
				notes = append(notes, fmt.Sprintf("%s: unknown asset, score set to 0", sym))
			} else {
				notes = append(notes, fmt.Sprintf("%s: signal computation failed, score set to 0", sym))
			}
			r.log.Warn().Err(err).Str("symbol", sym).Msg("Signals unavailable, scoring 0")
			snap = &domain.SignalSnapshot{Symbol: sym, Error: err.Error()}
		}
		snaps = append(snaps, *snap)
		mu = append(mu, snap.Score)
	}

	pm, err := r.prices.LoadPriceMatrix(ctx, symbols, today.AddDate(0, 0, -optimization.CovarianceLookbackDays), today)
	if err != nil {
		return nil, fmt.Errorf("failed to load price matrix: %w", err)
	}
	cov := optimization.EstimateCovariance(pm, symbols)

	policy := optimization.PolicyFor(req.Risk)
	sol, err := r.solver.Solve(ctx, mu, cov.Matrix, policy.MaxWeight)
	if err != nil {
		return nil, fmt.Errorf("optimizer: %w", err)
	}
	if sol.FellBack {
		notes = append(notes, fmt.Sprintf("optimizer fell back to equal weights (%s)", sol.Reason))
	}

	amount := decimal.NewFromFloat(req.Amount)
	weights := make(map[string]float64, len(symbols))
	dollars := make(map[string]float64, len(symbols))
	for i, sym := range symbols {
		weights[sym] = sol.Weights[i]
		// half away from zero, to the cent
		dollars[sym] = amount.Mul(decimal.NewFromFloat(sol.Weights[i])).Round(2).InexactFloat64()
	}

	r.log.Info().
		Str("risk", policy.Tier).
		Int("symbols", len(symbols)).
		Int("cov_rows", cov.WindowDays).
		Bool("fell_back", sol.FellBack).
		Msg("Recommendation built")

	return &Recommendation{
		Inputs:            req,
		Signals:           snaps,
		AllocationWeights: weights,
		AllocationDollars: dollars,
		Policy:            policy,
		CovEstimationDays: cov.WindowDays,
		Notes:             notes,
	}, nil
}
