package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrTransient marks failures worth retrying (network, rate limit, 5xx).
	ErrTransient = errors.New("transient provider failure")
	// ErrNoData marks an empty or unusable provider response.
	ErrNoData = errors.New("no data")
	// ErrUnknownAsset is returned when a symbol is not in the store.
	ErrUnknownAsset = errors.New("unknown asset")
	// ErrScorerUnavailable is returned when no sentiment path could initialize.
	ErrScorerUnavailable = errors.New("sentiment scorer unavailable")
)

// ProviderErrorKind classifies a provider failure
type ProviderErrorKind string

const (
	ProviderErrorTransient ProviderErrorKind = "transient"
	ProviderErrorNoData    ProviderErrorKind = "no_data"
)

// ProviderError is returned by vendor clients and the provider gateway
type ProviderError struct {
	Err      error
	Kind     ProviderErrorKind
	Provider string
	Symbol   string
	Status   int // HTTP status, 0 when not applicable
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Provider, e.Kind)
	if e.Symbol != "" {
		msg += " for " + e.Symbol
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the ErrTransient and ErrNoData sentinels.
func (e *ProviderError) Is(target error) bool {
	switch target {
	case ErrTransient:
		return e.Kind == ProviderErrorTransient
	case ErrNoData:
		return e.Kind == ProviderErrorNoData
	}
	return false
}

// NewTransientError wraps a retryable provider failure.
func NewTransientError(provider, symbol string, status int, err error) *ProviderError {
	return &ProviderError{Kind: ProviderErrorTransient, Provider: provider, Symbol: symbol, Status: status, Err: err}
}

// NewNoDataError wraps a non-retryable empty/malformed provider response.
func NewNoDataError(provider, symbol string, status int, err error) *ProviderError {
	return &ProviderError{Kind: ProviderErrorNoData, Provider: provider, Symbol: symbol, Status: status, Err: err}
}

// ClassifyStatus maps an HTTP status to a provider error, or nil for 2xx.
// 429 and 5xx are transient; any other failure status is treated as no data.
func ClassifyStatus(provider, symbol string, status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == 429 || status >= 500:
		return NewTransientError(provider, symbol, status, nil)
	default:
		return NewNoDataError(provider, symbol, status, nil)
	}
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsNoData reports whether err is an empty/malformed response.
func IsNoData(err error) bool {
	return errors.Is(err, ErrNoData)
}

// UnknownAssetError is returned when signal computation targets a symbol not in the store
type UnknownAssetError struct {
	Symbol string
}

func (e *UnknownAssetError) Error() string {
	return fmt.Sprintf("asset not found: %s", e.Symbol)
}

func (e *UnknownAssetError) Is(target error) bool {
	return target == ErrUnknownAsset
}
