package signals

// Composite score weights. Callers override them per engine with WithWeights.
var (
	MomentumWeight  = 0.7
	SentimentWeight = 0.3
)

// Weights blends momentum and sentiment into one score
type Weights struct {
	Momentum  float64 `json:"momentum"`
	Sentiment float64 `json:"sentiment"`
}

// DefaultWeights returns the package-level weights
func DefaultWeights() Weights {
	return Weights{Momentum: MomentumWeight, Sentiment: SentimentWeight}
}

// Combine returns Momentum*m + Sentiment*s
func (w Weights) Combine(momentum, sentiment float64) float64 {
	return w.Momentum*momentum + w.Sentiment*sentiment
}
