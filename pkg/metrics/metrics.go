// Package metrics exposes Prometheus instruments for the engine.
//
// Instruments register against the default registerer at init time; the
// API server serves them on /metrics. Library code records through the
// package-level helpers so callers never touch the collectors directly.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "depforge"

var (
	installsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "installs_total",
		Help:      "Package install attempts by result.",
	}, []string{"result"})

	uninstallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "uninstalls_total",
		Help:      "Package uninstall attempts by result.",
	}, []string{"result"})

	fetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetches_total",
		Help:      "Artifact fetches by source and result.",
	}, []string{"source", "result"})

	cacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_hits_total",
		Help:      "Cache lookups by kind and outcome.",
	}, []string{"kind", "outcome"})

	resolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "resolve_duration_seconds",
		Help:      "Wall time of dependency resolution.",
		Buckets:   prometheus.DefBuckets,
	})

	conflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "resolve_conflicts_total",
		Help:      "Resolution conflicts by kind.",
	}, []string{"kind"})
)

// result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultNoOp    = "noop"
)

// RecordInstall counts one install attempt.
func RecordInstall(result string) { installsTotal.WithLabelValues(result).Inc() }

// RecordUninstall counts one uninstall attempt.
func RecordUninstall(result string) { uninstallsTotal.WithLabelValues(result).Inc() }

// RecordFetch counts one artifact fetch.
func RecordFetch(source, result string) { fetchesTotal.WithLabelValues(source, result).Inc() }

// RecordCacheLookup counts one cache lookup. kind is "metadata",
// "versions" or "artifact"; outcome is "hit" or "miss".
func RecordCacheLookup(kind, outcome string) { cacheHitsTotal.WithLabelValues(kind, outcome).Inc() }

// RecordResolve observes one resolution run.
func RecordResolve(d time.Duration, conflictKinds []string) {
	resolveDuration.Observe(d.Seconds())
	for _, kind := range conflictKinds {
		conflictsTotal.WithLabelValues(kind).Inc()
	}
}
