package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/aristath/allocator/internal/domain"
)

type fakeActive struct {
	symbols []string
	err     error
	calls   int
}

func (f *fakeActive) MostActive(ctx context.Context, count int) ([]string, error) {
	f.calls++
	return f.symbols, f.err
}

type fakeRanker struct {
	symbols  []string
	err      error
	k        int
	lookback int
}

func (f *fakeRanker) TopByAverageVolume(ctx context.Context, k, lookbackDays int) ([]string, error) {
	f.k, f.lookback = k, lookbackDays
	return f.symbols, f.err
}

func TestExpandedUniverse_ETFCoreFirstThenMostActive(t *testing.T) {
	active := &fakeActive{symbols: []string{"AAPL", "VOO", "tsla", "AAPL"}}
	ranker := &fakeRanker{symbols: []string{"MSFT"}}
	u := NewUniverse(active, ranker, zerolog.Nop())

	got := u.ExpandedUniverse(context.Background(), 100)

	assert.Equal(t, []string{"VOO", "QQQM", "IWM", "EFA", "EMB", "AGG", "AAPL", "TSLA"}, got)
	assert.Equal(t, 0, ranker.k, "ranker must not be consulted when most-active succeeds")
}

func TestExpandedUniverse_FallsBackToStoredVolume(t *testing.T) {
	active := &fakeActive{err: errors.New("no key")}
	ranker := &fakeRanker{symbols: []string{"SPY", "AGG", "NVDA"}}
	u := NewUniverse(active, ranker, zerolog.Nop())

	got := u.ExpandedUniverse(context.Background(), 25)

	assert.Equal(t, []string{"VOO", "QQQM", "IWM", "EFA", "EMB", "AGG", "SPY", "NVDA"}, got)
	assert.Equal(t, 25, ranker.k)
	assert.Equal(t, 60, ranker.lookback)
}

func TestExpandedUniverse_ETFCoreOnly(t *testing.T) {
	tests := []struct {
		name   string
		active MostActiveSource
		ranker VolumeRanker
	}{
		{name: "no sources"},
		{name: "both fail", active: &fakeActive{err: errors.New("down")}, ranker: &fakeRanker{err: errors.New("db")}},
		{name: "both empty", active: &fakeActive{}, ranker: &fakeRanker{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := NewUniverse(tt.active, tt.ranker, zerolog.Nop())
			assert.Equal(t, ETFCore, u.ExpandedUniverse(context.Background(), 100))
		})
	}
}

func TestAssetSpecs(t *testing.T) {
	specs := AssetSpecs([]string{"VOO", "AAPL"})

	assert.Equal(t, []domain.AssetSpec{
		{Symbol: "VOO", Name: "VOO", AssetClass: domain.AssetClassETF},
		{Symbol: "AAPL", Name: "AAPL", AssetClass: domain.AssetClassEquity},
	}, specs)
}
