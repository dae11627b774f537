// Package prom provides a Prometheus-backed MetricsCollector.
package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/smallworld"
)

// Compile-time check.
var _ smallworld.MetricsCollector = (*Collector)(nil)

// Collector implements smallworld.MetricsCollector with Prometheus metrics.
type Collector struct {
	builds         prometheus.Counter
	buildItems     prometheus.Counter
	buildErrors    prometheus.Counter
	buildDuration  prometheus.Histogram
	searches       prometheus.Counter
	searchErrors   prometheus.Counter
	searchDuration prometheus.Histogram
	snapshotSaves  *prometheus.CounterVec
	snapshotLoads  *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics with reg.
// Pass prometheus.DefaultRegisterer for the process-wide registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		builds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smallworld_builds_total",
			Help: "Number of graph builds.",
		}),
		buildItems: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smallworld_build_items_total",
			Help: "Number of items inserted across all builds.",
		}),
		buildErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smallworld_build_errors_total",
			Help: "Number of failed graph builds.",
		}),
		buildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "smallworld_build_duration_seconds",
			Help:    "Graph build latency.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		searches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smallworld_searches_total",
			Help: "Number of k-NN searches.",
		}),
		searchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smallworld_search_errors_total",
			Help: "Number of failed k-NN searches.",
		}),
		searchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "smallworld_search_duration_seconds",
			Help:    "k-NN search latency.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 12),
		}),
		snapshotSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smallworld_snapshot_saves_total",
			Help: "Number of snapshot writes by outcome.",
		}, []string{"outcome"}),
		snapshotLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smallworld_snapshot_loads_total",
			Help: "Number of snapshot reads by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		c.builds, c.buildItems, c.buildErrors, c.buildDuration,
		c.searches, c.searchErrors, c.searchDuration,
		c.snapshotSaves, c.snapshotLoads,
	)

	return c
}

// RecordBuild implements smallworld.MetricsCollector.
func (c *Collector) RecordBuild(count int, duration time.Duration, err error) {
	c.builds.Inc()
	c.buildItems.Add(float64(count))
	c.buildDuration.Observe(duration.Seconds())
	if err != nil {
		c.buildErrors.Inc()
	}
}

// RecordSearch implements smallworld.MetricsCollector.
func (c *Collector) RecordSearch(k int, duration time.Duration, err error) {
	c.searches.Inc()
	c.searchDuration.Observe(duration.Seconds())
	if err != nil {
		c.searchErrors.Inc()
	}
}

// RecordSnapshotSave implements smallworld.MetricsCollector.
func (c *Collector) RecordSnapshotSave(duration time.Duration, err error) {
	c.snapshotSaves.WithLabelValues(outcome(err)).Inc()
}

// RecordSnapshotLoad implements smallworld.MetricsCollector.
func (c *Collector) RecordSnapshotLoad(duration time.Duration, err error) {
	c.snapshotLoads.WithLabelValues(outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
