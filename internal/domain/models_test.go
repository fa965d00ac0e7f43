package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSymbols(t *testing.T) {
	got := NormalizeSymbols([]string{" voo", "QQQM", "VOO", "", "iwm "})
	assert.Equal(t, []string{"VOO", "QQQM", "IWM"}, got)
}

func TestParseAssetClass(t *testing.T) {
	c, ok := ParseAssetClass(" ETF ")
	assert.True(t, ok)
	assert.Equal(t, AssetClassETF, c)

	_, ok = ParseAssetClass("commodity")
	assert.False(t, ok)
}

func TestDate(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	d := Date(time.Date(2024, 3, 10, 1, 30, 0, 0, loc))
	assert.Equal(t, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), d)
}

func TestJobState_Terminal(t *testing.T) {
	assert.True(t, JobSucceeded.Terminal())
	assert.True(t, JobFailed.Terminal())
	assert.False(t, JobRetrying.Terminal())
	assert.False(t, JobPending.Terminal())
}
