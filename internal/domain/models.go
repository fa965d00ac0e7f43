// Package domain provides core domain models and types.
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar-date format used in storage and payloads.
const DateLayout = "2006-01-02"

// AssetClass represents the broad class of an instrument
type AssetClass string

const (
	AssetClassEquity AssetClass = "equity"
	AssetClassETF    AssetClass = "etf"
	AssetClassBond   AssetClass = "bond"
	AssetClassCrypto AssetClass = "crypto"
)

// ParseAssetClass validates a class name. Matching is case-insensitive.
func ParseAssetClass(s string) (AssetClass, bool) {
	switch c := AssetClass(strings.ToLower(strings.TrimSpace(s))); c {
	case AssetClassEquity, AssetClassETF, AssetClassBond, AssetClassCrypto:
		return c, true
	default:
		return "", false
	}
}

// NormalizeSymbol returns the canonical (trimmed, upper-case) form of a ticker.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// NormalizeSymbols normalizes and de-duplicates symbols, preserving first occurrence order.
func NormalizeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = NormalizeSymbol(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Date truncates t to its UTC calendar date.
func Date(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the current UTC calendar date.
func Today() time.Time {
	return Date(time.Now())
}

// Asset is a tradable instrument known to the store
type Asset struct {
	CreatedAt  time.Time  `json:"created_at"`
	Symbol     string     `json:"symbol"`
	Name       string     `json:"name"`
	AssetClass AssetClass `json:"asset_class"`
	ID         int64      `json:"id"`
}

// AssetSpec describes an asset to create or update
type AssetSpec struct {
	Symbol     string     `json:"symbol"`
	Name       string     `json:"name"`
	AssetClass AssetClass `json:"asset_class"`
}

// PriceBar is one daily observation as returned by a market data vendor
type PriceBar struct {
	Date   time.Time
	Close  decimal.Decimal
	Volume decimal.Decimal
}

// PriceObservation is a stored daily close, unique per (AssetID, Date)
type PriceObservation struct {
	Date    time.Time
	Close   decimal.Decimal
	Volume  decimal.Decimal
	AssetID int64
}

// SignalKind identifies the type of a stored signal
type SignalKind string

const (
	SignalMomentum  SignalKind = "momentum"
	SignalSentiment SignalKind = "sentiment"
	SignalComposite SignalKind = "composite"
)

// SignalObservation is a stored signal value, unique per (AssetID, Date, Kind)
type SignalObservation struct {
	Date     time.Time
	Metadata map[string]any
	Kind     SignalKind
	AssetID  int64
	Value    float64
}

// Headline is a single news item
type Headline struct {
	PublishedAt time.Time `json:"published_at,omitempty"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	URL         string    `json:"url"`
}

// SignalSnapshot is the per-symbol signal summary returned to callers
type SignalSnapshot struct {
	Symbol    string  `json:"symbol" msgpack:"symbol"`
	Date      string  `json:"date,omitempty" msgpack:"date,omitempty"`
	Error     string  `json:"error,omitempty" msgpack:"error,omitempty"`
	Momentum  float64 `json:"momentum" msgpack:"momentum"`
	Sentiment float64 `json:"sentiment" msgpack:"sentiment"`
	Score     float64 `json:"score" msgpack:"score"`
}

// SavedPortfolio is a user-saved allocation
type SavedPortfolio struct {
	CreatedAt   time.Time          `json:"created_at"`
	Allocations map[string]float64 `json:"allocations"`
	Policy      map[string]any     `json:"policy"`
	UserID      string             `json:"user_id"`
	ID          int64              `json:"id"`
}

// JobState is the lifecycle state of a submitted job
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobRetrying  JobState = "retrying"
	JobFailed    JobState = "failed"
	JobSucceeded JobState = "succeeded"
)

// Terminal reports whether no further transitions will happen.
func (s JobState) Terminal() bool {
	return s == JobFailed || s == JobSucceeded
}

// JobRecord is the persisted view of a job. Payload and Result are msgpack-encoded.
type JobRecord struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	State     JobState  `json:"state"`
	Phase     string    `json:"phase,omitempty"`
	Error     string    `json:"error,omitempty"`
	Payload   []byte    `json:"-"`
	Result    []byte    `json:"-"`
	Attempts  int       `json:"attempts"`
}
