package lshann

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordInsert is called after each insert operation.
	// duration is the total time taken, err is nil if successful.
	RecordInsert(duration time.Duration, err error)

	// RecordRebuild is called after each rebuild.
	// points is the total number of indexed points afterwards.
	RecordRebuild(points int, duration time.Duration, err error)

	// RecordSearch is called after each search operation.
	// k is the number of neighbors requested, duration is the time taken,
	// err is nil if successful.
	RecordSearch(k int, duration time.Duration, err error)

	// RecordCandidates is called after each search that walks the
	// repetition tables with the number of candidates surfaced from them and
	// the number the sketch filter rejected before the exact similarity
	// computation. Searches that fail validation or run on an index without
	// committed points do not call it.
	RecordCandidates(considered, rejected int)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordInsert(time.Duration, error)       {}
func (NoopMetricsCollector) RecordRebuild(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordSearch(int, time.Duration, error)  {}
func (NoopMetricsCollector) RecordCandidates(int, int)               {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	InsertCount         atomic.Int64
	InsertErrors        atomic.Int64
	InsertTotalNanos    atomic.Int64
	RebuildCount        atomic.Int64
	RebuildErrors       atomic.Int64
	RebuildTotalNanos   atomic.Int64
	SearchCount         atomic.Int64
	SearchErrors        atomic.Int64
	SearchTotalNanos    atomic.Int64
	CandidatesTotal     atomic.Int64
	CandidatesRejected  atomic.Int64
	IndexedPoints       atomic.Int64
}

// RecordInsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordInsert(duration time.Duration, err error) {
	b.InsertCount.Add(1)
	b.InsertTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.InsertErrors.Add(1)
	}
}

// RecordRebuild implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRebuild(points int, duration time.Duration, err error) {
	b.RebuildCount.Add(1)
	b.RebuildTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.RebuildErrors.Add(1)
		return
	}
	b.IndexedPoints.Store(int64(points))
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(k int, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// RecordCandidates implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCandidates(considered, rejected int) {
	b.CandidatesTotal.Add(int64(considered))
	b.CandidatesRejected.Add(int64(rejected))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		InsertCount:        b.InsertCount.Load(),
		InsertErrors:       b.InsertErrors.Load(),
		InsertAvgNanos:     avgNanos(&b.InsertTotalNanos, &b.InsertCount),
		RebuildCount:       b.RebuildCount.Load(),
		RebuildErrors:      b.RebuildErrors.Load(),
		SearchCount:        b.SearchCount.Load(),
		SearchErrors:       b.SearchErrors.Load(),
		SearchAvgNanos:     avgNanos(&b.SearchTotalNanos, &b.SearchCount),
		CandidatesTotal:    b.CandidatesTotal.Load(),
		CandidatesRejected: b.CandidatesRejected.Load(),
		IndexedPoints:      b.IndexedPoints.Load(),
	}
}

func avgNanos(total, count *atomic.Int64) int64 {
	c := count.Load()
	if c == 0 {
		return 0
	}
	return total.Load() / c
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	InsertCount        int64
	InsertErrors       int64
	InsertAvgNanos     int64
	RebuildCount       int64
	RebuildErrors      int64
	SearchCount        int64
	SearchErrors       int64
	SearchAvgNanos     int64
	CandidatesTotal    int64
	CandidatesRejected int64
	IndexedPoints      int64
}
