package optimization

import (
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/allocator/internal/metrics"
)

// RiskAversion is the default γ in μ'w - γ·w'Σw
var RiskAversion = 1.0

const (
	DefaultMaxIterations = 5000
	DefaultTolerance     = 1e-10

	// feasibilityEps absorbs rounding in n·maxWeight >= 1
	feasibilityEps = 1e-12
	// simplexTolerance bounds |Σw - 1| and bound violations of an accepted solution
	simplexTolerance = 1e-6
	// bisectionSteps is enough to shrink any float64 bracket to machine precision
	bisectionSteps = 200
)

// FallbackReason explains why equal weights were returned
type FallbackReason string

const (
	ReasonNone             FallbackReason = ""
	ReasonEmpty            FallbackReason = "empty_universe"
	ReasonShapeMismatch    FallbackReason = "shape_mismatch"
	ReasonNonFinite        FallbackReason = "non_finite_input"
	ReasonInfeasible       FallbackReason = "infeasible_bounds"
	ReasonNotConverged     FallbackReason = "not_converged"
	ReasonSimplexViolation FallbackReason = "simplex_violation"
)

// Solution is the optimizer output. Weights are always usable: on any
// degenerate input they are equal weights and FellBack is set.
type Solution struct {
	Weights    []float64      `json:"weights"`
	Reason     FallbackReason `json:"reason,omitempty"`
	Iterations int            `json:"iterations"`
	Objective  float64        `json:"objective"`
	FellBack   bool           `json:"fell_back"`
}

// MVOptimizer performs long-only mean-variance optimization with a per-asset cap.
type MVOptimizer struct {
	RiskAversion  float64
	MaxIterations int
	Tolerance     float64
	log           zerolog.Logger
}

// NewMVOptimizer creates a new mean-variance optimizer with package defaults.
func NewMVOptimizer(log zerolog.Logger) *MVOptimizer {
	return &MVOptimizer{
		RiskAversion:  RiskAversion,
		MaxIterations: DefaultMaxIterations,
		Tolerance:     DefaultTolerance,
		log:           log.With().Str("component", "mv_optimizer").Logger(),
	}
}

// Optimize solves
//
//	maximize   μ'w - γ·w'Σw
//	subject to Σw = 1, 0 ≤ w_i ≤ maxWeight
//
// by projected gradient ascent with an exact projection onto the capped
// simplex. It never fails: degenerate inputs yield equal weights.
func (o *MVOptimizer) Optimize(mu []float64, cov [][]float64, maxWeight float64) Solution {
	n := len(mu)

	if reason := validate(mu, cov, maxWeight); reason != ReasonNone {
		return o.fallback(n, reason)
	}

	sigma := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sigma.SetSym(i, j, 0.5*(cov[i][j]+cov[j][i]))
		}
	}

	gamma := o.RiskAversion
	lipschitz := 2 * gamma * largestEigenvalue(sigma)
	step := 1.0
	if lipschitz > 0 {
		step = 1 / lipschitz
	}

	w := EqualWeights(n)
	y := EqualWeights(n)
	momentum := 1.0
	prevObj := objective(mu, sigma, w, gamma)

	muVec := mat.NewVecDense(n, mu)
	yVec := mat.NewVecDense(n, y)
	grad := mat.NewVecDense(n, nil)
	next := make([]float64, n)
	diff := make([]float64, n)

	// Accelerated projected gradient (FISTA) with a restart whenever the
	// objective drops, which keeps the iterates monotone.
	converged := false
	iter := 0
	for iter < o.MaxIterations {
		iter++

		// ∇ = μ - 2γΣy
		grad.MulVec(sigma, yVec)
		grad.AddScaledVec(muVec, -2*gamma, grad)

		for i := 0; i < n; i++ {
			next[i] = y[i] + step*grad.AtVec(i)
		}
		projectCappedSimplex(next, maxWeight)

		floats.SubTo(diff, next, y)
		if floats.Norm(diff, 2) < o.Tolerance {
			copy(w, next)
			converged = true
			break
		}

		obj := objective(mu, sigma, next, gamma)
		if obj < prevObj && momentum > 1 {
			momentum = 1
			copy(y, w)
			continue
		}

		nextMomentum := (1 + math.Sqrt(1+4*momentum*momentum)) / 2
		beta := (momentum - 1) / nextMomentum
		for i := 0; i < n; i++ {
			y[i] = next[i] + beta*(next[i]-w[i])
		}
		copy(w, next)
		momentum = nextMomentum
		prevObj = obj
	}

	if !converged {
		return o.fallback(n, ReasonNotConverged)
	}
	if !onSimplex(w, maxWeight) {
		return o.fallback(n, ReasonSimplexViolation)
	}

	for i := range w {
		w[i] = math.Max(0, math.Min(1, w[i]))
	}

	metrics.OptimizerRuns.WithLabelValues("solved").Inc()
	return Solution{
		Weights:    w,
		Iterations: iter,
		Objective:  objective(mu, sigma, w, gamma),
	}
}

func (o *MVOptimizer) fallback(n int, reason FallbackReason) Solution {
	metrics.OptimizerRuns.WithLabelValues(string(reason)).Inc()
	o.log.Warn().Str("reason", string(reason)).Int("assets", n).Msg("Optimizer fell back to equal weights")

	return Solution{
		Weights:  EqualWeights(n),
		Reason:   reason,
		FellBack: true,
	}
}

// EqualWeights returns n weights of 1/n
func EqualWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1 / float64(n)
	}
	return w
}

func validate(mu []float64, cov [][]float64, maxWeight float64) FallbackReason {
	n := len(mu)
	if n == 0 {
		return ReasonEmpty
	}
	if len(cov) != n {
		return ReasonShapeMismatch
	}
	for _, row := range cov {
		if len(row) != n {
			return ReasonShapeMismatch
		}
	}

	for i, m := range mu {
		if !finite(m) {
			return ReasonNonFinite
		}
		for _, c := range cov[i] {
			if !finite(c) {
				return ReasonNonFinite
			}
		}
	}

	if !finite(maxWeight) || maxWeight <= 0 || float64(n)*maxWeight < 1-feasibilityEps {
		return ReasonInfeasible
	}
	return ReasonNone
}

// projectCappedSimplex replaces y with its Euclidean projection onto
// {w : Σw = 1, 0 ≤ w_i ≤ upper}. It finds the shift τ with
// Σ clip(y_i - τ, 0, upper) = 1 by bisection. Requires n·upper >= 1.
func projectCappedSimplex(y []float64, upper float64) {
	lo := floats.Min(y) - upper
	hi := floats.Max(y)

	mass := func(tau float64) float64 {
		var s float64
		for _, v := range y {
			s += math.Max(0, math.Min(upper, v-tau))
		}
		return s
	}

	for i := 0; i < bisectionSteps && hi-lo > 0; i++ {
		mid := lo + (hi-lo)/2
		if mid == lo || mid == hi {
			break
		}
		if mass(mid) > 1 {
			lo = mid
		} else {
			hi = mid
		}
	}

	tau := lo + (hi-lo)/2
	for i, v := range y {
		y[i] = math.Max(0, math.Min(upper, v-tau))
	}
}

func onSimplex(w []float64, upper float64) bool {
	if math.Abs(floats.Sum(w)-1) > simplexTolerance {
		return false
	}
	for _, v := range w {
		if !finite(v) || v < -simplexTolerance || v > upper+simplexTolerance {
			return false
		}
	}
	return true
}

func objective(mu []float64, sigma *mat.SymDense, w []float64, gamma float64) float64 {
	wVec := mat.NewVecDense(len(w), w)
	return floats.Dot(mu, w) - gamma*mat.Inner(wVec, sigma, wVec)
}

// largestEigenvalue returns λ_max of a symmetric matrix, falling back to the
// Frobenius norm (an upper bound) when the decomposition fails.
func largestEigenvalue(sigma *mat.SymDense) float64 {
	var eig mat.EigenSym
	if !eig.Factorize(sigma, false) {
		return mat.Norm(sigma, 2)
	}
	return math.Max(0, floats.Max(eig.Values(nil)))
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
