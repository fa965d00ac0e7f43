// Package metrics holds the Prometheus collectors shared across modules.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	ProviderCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "allocator",
			Subsystem: "provider",
			Name:      "calls_total",
			Help:      "Provider fetch attempts by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "allocator",
			Subsystem: "provider",
			Name:      "latency_seconds",
			Help:      "Latency of a single provider attempt",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	BatchSymbols = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "allocator",
			Subsystem: "batch",
			Name:      "symbols_total",
			Help:      "Symbols processed by universe batches per phase and outcome",
		},
		[]string{"phase", "outcome"},
	)

	OptimizerRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "allocator",
			Subsystem: "optimizer",
			Name:      "runs_total",
			Help:      "Optimizer runs by result (solved or the fallback reason)",
		},
		[]string{"result"},
	)

	Jobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "allocator",
			Subsystem: "work",
			Name:      "jobs_total",
			Help:      "Jobs reaching a terminal state by type",
		},
		[]string{"type", "state"},
	)

	Backups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "allocator",
			Subsystem: "reliability",
			Name:      "backups_total",
			Help:      "Remote database backups by outcome",
		},
		[]string{"outcome"},
	)
)

// Register adds all collectors to the default registry. Safe to call repeatedly.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(ProviderCalls, ProviderLatency, BatchSymbols, OptimizerRuns, Jobs, Backups)
	})
}
