// Package orchestrator composes the signal engine, store and optimizer into
// recommendations, universe batches and universe construction.
package orchestrator

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/aristath/allocator/internal/domain"
)

// ETFCore is the default basket and the head of every expanded universe
var ETFCore = []string{"VOO", "QQQM", "IWM", "EFA", "EMB", "AGG"}

// volumeLookbackDays is the window for the stored-volume ranking
const volumeLookbackDays = 60

// MostActiveSource returns the vendor's most traded tickers
type MostActiveSource interface {
	MostActive(ctx context.Context, count int) ([]string, error)
}

// VolumeRanker ranks stored assets by average volume
type VolumeRanker interface {
	TopByAverageVolume(ctx context.Context, k, lookbackDays int) ([]string, error)
}

// Universe builds the set of symbols the daily batch covers
type Universe struct {
	active MostActiveSource
	ranker VolumeRanker
	log    zerolog.Logger
}

// NewUniverse creates a universe builder. Either source may be nil.
func NewUniverse(active MostActiveSource, ranker VolumeRanker, log zerolog.Logger) *Universe {
	return &Universe{
		active: active,
		ranker: ranker,
		log:    log.With().Str("component", "universe").Logger(),
	}
}

// TopVolume returns up to count high-volume symbols: the vendor's most-active
// list when available, else the stored volume ranking, else nil.
func (u *Universe) TopVolume(ctx context.Context, count int) []string {
	if u.active != nil {
		symbols, err := u.active.MostActive(ctx, count)
		if err == nil && len(symbols) > 0 {
			return symbols
		}
		if err != nil {
			u.log.Debug().Err(err).Msg("Most-active source unavailable, ranking stored volume")
		}
	}

	if u.ranker != nil {
		symbols, err := u.ranker.TopByAverageVolume(ctx, count, volumeLookbackDays)
		if err == nil && len(symbols) > 0 {
			return symbols
		}
		if err != nil {
			u.log.Warn().Err(err).Msg("Volume ranking failed")
		}
	}
	return nil
}

// ExpandedUniverse returns ETFCore followed by the top-volume symbols,
// de-duplicated with first occurrence kept.
func (u *Universe) ExpandedUniverse(ctx context.Context, count int) []string {
	top := u.TopVolume(ctx, count)

	merged := make([]string, 0, len(ETFCore)+len(top))
	merged = append(merged, ETFCore...)
	merged = append(merged, top...)
	out := domain.NormalizeSymbols(merged)

	u.log.Info().Int("count", len(out)).Int("top_volume", len(top)).Msg("Universe expanded")
	return out
}

// AssetSpecs describes symbols for EnsureAssets: ETFCore members are ETFs,
// everything else is an equity.
func AssetSpecs(symbols []string) []domain.AssetSpec {
	core := make(map[string]struct{}, len(ETFCore))
	for _, s := range ETFCore {
		core[s] = struct{}{}
	}

	specs := make([]domain.AssetSpec, 0, len(symbols))
	for _, s := range symbols {
		class := domain.AssetClassEquity
		if _, ok := core[s]; ok {
			class = domain.AssetClassETF
		}
		specs = append(specs, domain.AssetSpec{Symbol: s, Name: s, AssetClass: class})
	}
	return specs
}
