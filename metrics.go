package techmate

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one counter or histogram in the in-process metrics
// system.
type MetricID uint16

const (
	// MetricLoginSuccess counts successful logins.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts rejected logins.
	MetricLoginFailure
	// MetricRegisterSuccess counts successful registrations.
	MetricRegisterSuccess
	// MetricRegisterFailure counts rejected registrations.
	MetricRegisterFailure
	// MetricLogout counts logout calls that cleared a live session.
	MetricLogout
	// MetricSessionRestored counts restores that validated a cached session.
	MetricSessionRestored
	// MetricRestoreInvalid counts restores whose cached session failed
	// server validation and was torn down.
	MetricRestoreInvalid
	// MetricRefreshSuccess counts silent token refreshes that succeeded.
	MetricRefreshSuccess
	// MetricRefreshFailure counts refresh attempts the server rejected.
	MetricRefreshFailure
	// MetricRequestRetried counts original requests re-issued after a refresh.
	MetricRequestRetried
	// MetricSessionTeardown counts full teardowns forced by refresh failure.
	MetricSessionTeardown
	// MetricBreakerRejected counts requests refused by an open breaker.
	MetricBreakerRejected
	// MetricGateRender counts gate evaluations that allowed rendering.
	MetricGateRender
	// MetricGatePending counts gate evaluations that yielded the
	// pending-approval placeholder.
	MetricGatePending
	// MetricGateRedirect counts gate evaluations that redirected the viewer.
	MetricGateRedirect
	// MetricRequestLatency is the request round-trip latency histogram.
	MetricRequestLatency

	metricIDCount
)

type metricCounter struct {
	value uint64
	_     [7]uint64 // pad to a cache line to avoid false sharing
}

const histBucketCount = 8

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

// Metrics holds atomic counters and an optional latency histogram. The zero
// of everything is disabled; construct through [NewMetrics].
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]metricCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time deep copy of all metrics.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a Metrics instance. When cfg.Enabled is false all
// operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recording.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc adds one to the counter for id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records a latency sample. Only MetricRequestLatency has a
// histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || id != MetricRequestLatency {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

// Value returns the current counter for id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot deep-copies every counter and histogram.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricRequestLatency].buckets[i])
		}
		s.Histograms[MetricRequestLatency] = buckets
	}
	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
