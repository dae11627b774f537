package smallworld

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; the prom
// subpackage ships a Prometheus-backed implementation.
type MetricsCollector interface {
	// RecordBuild is called after BuildGraph.
	// count is the number of items inserted, err is nil if successful.
	RecordBuild(count int, duration time.Duration, err error)

	// RecordSearch is called after each search operation.
	// k is the number of neighbors requested, duration is the time taken,
	// err is nil if successful.
	RecordSearch(k int, duration time.Duration, err error)

	// RecordSnapshotSave is called after each snapshot write.
	RecordSnapshotSave(duration time.Duration, err error)

	// RecordSnapshotLoad is called after each snapshot read.
	RecordSnapshotLoad(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordBuild(int, time.Duration, error)   {}
func (NoopMetricsCollector) RecordSearch(int, time.Duration, error)  {}
func (NoopMetricsCollector) RecordSnapshotSave(time.Duration, error) {}
func (NoopMetricsCollector) RecordSnapshotLoad(time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	BuildCount        atomic.Int64
	BuildItems        atomic.Int64
	BuildErrors       atomic.Int64
	BuildTotalNanos   atomic.Int64
	SearchCount       atomic.Int64
	SearchErrors      atomic.Int64
	SearchTotalNanos  atomic.Int64
	SnapshotSaves     atomic.Int64
	SnapshotSaveFails atomic.Int64
	SnapshotLoads     atomic.Int64
	SnapshotLoadFails atomic.Int64
}

// RecordBuild implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBuild(count int, duration time.Duration, err error) {
	b.BuildCount.Add(1)
	b.BuildItems.Add(int64(count))
	b.BuildTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.BuildErrors.Add(1)
	}
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(k int, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// RecordSnapshotSave implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSnapshotSave(duration time.Duration, err error) {
	b.SnapshotSaves.Add(1)
	if err != nil {
		b.SnapshotSaveFails.Add(1)
	}
}

// RecordSnapshotLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSnapshotLoad(duration time.Duration, err error) {
	b.SnapshotLoads.Add(1)
	if err != nil {
		b.SnapshotLoadFails.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		BuildCount:     b.BuildCount.Load(),
		BuildItems:     b.BuildItems.Load(),
		BuildErrors:    b.BuildErrors.Load(),
		SearchCount:    b.SearchCount.Load(),
		SearchErrors:   b.SearchErrors.Load(),
		SearchAvgNanos: b.getAvgSearchNanos(),
		SnapshotSaves:  b.SnapshotSaves.Load(),
		SnapshotLoads:  b.SnapshotLoads.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgSearchNanos() int64 {
	count := b.SearchCount.Load()
	if count == 0 {
		return 0
	}
	return b.SearchTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	BuildCount     int64
	BuildItems     int64
	BuildErrors    int64
	SearchCount    int64
	SearchErrors   int64
	SearchAvgNanos int64
	SnapshotSaves  int64
	SnapshotLoads  int64
}
