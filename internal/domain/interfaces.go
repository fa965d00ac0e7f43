package domain

import (
	"context"
	"time"
)

// PriceProvider fetches daily bars from one market data vendor
type PriceProvider interface {
	Name() string
	FetchDailyPrices(ctx context.Context, symbol string, start, end time.Time) ([]PriceBar, error)
}

// NewsProvider fetches recent headlines from one news vendor
type NewsProvider interface {
	Name() string
	FetchHeadlines(ctx context.Context, symbol string, limit int) ([]Headline, error)
}

// MostActiveProvider lists the most traded symbols of the day
type MostActiveProvider interface {
	MostActive(ctx context.Context, count int) ([]string, error)
}

// SentimentScorer turns a batch of texts into a score in [-1, 1]
type SentimentScorer interface {
	Score(ctx context.Context, texts []string) (float64, error)
}

// SentimentLabels holds class probabilities for one text
type SentimentLabels struct {
	Positive float64 `json:"positive"`
	Negative float64 `json:"negative"`
	Neutral  float64 `json:"neutral"`
}

// SentimentClassifier is a three-class financial sentiment model
type SentimentClassifier interface {
	Classify(ctx context.Context, texts []string) ([]SentimentLabels, error)
}
