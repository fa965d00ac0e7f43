package optimization

import "strings"

// Risk tiers accepted by PolicyFor.
const (
	TierConservative = "conservative"
	TierBalanced     = "balanced"
	TierAggressive   = "aggressive"
)

// RiskPolicy bounds per-asset weights for a risk tier.
type RiskPolicy struct {
	Tier             string   `json:"-"`
	MaxWeight        float64  `json:"max_weight"`
	MinWeight        float64  `json:"min_weight"`
	TargetVolatility *float64 `json:"target_vol"`
}

func vol(v float64) *float64 { return &v }

// PolicyFor maps a tier name to its policy. Unknown tiers get a 0.35 cap and
// no volatility target.
func PolicyFor(tier string) RiskPolicy {
	t := strings.ToLower(strings.TrimSpace(tier))
	switch t {
	case TierConservative:
		return RiskPolicy{Tier: t, MaxWeight: 0.25, TargetVolatility: vol(0.10)}
	case TierBalanced:
		return RiskPolicy{Tier: t, MaxWeight: 0.30, TargetVolatility: vol(0.15)}
	case TierAggressive:
		return RiskPolicy{Tier: t, MaxWeight: 0.40, TargetVolatility: vol(0.25)}
	default:
		return RiskPolicy{Tier: t, MaxWeight: 0.35}
	}
}
