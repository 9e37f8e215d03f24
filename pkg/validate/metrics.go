package validate

import (
	"sync/atomic"
	"time"
)

// MetricsCollector records outcomes of the validation loop.
type MetricsCollector interface {
	// RecordPassed records an item that passed every rule.
	RecordPassed(durationNs int64)
	// RecordFailed records an item that failed a rule.
	RecordFailed()
	// RecordSkipped records a blank rule that was not evaluated.
	RecordSkipped()
	// GetMetrics returns the current counters.
	GetMetrics() Metrics
	// Reset clears all counters.
	Reset()
}

// Metrics is a snapshot of the loop counters.
type Metrics struct {
	// ItemsPassed is the count of items forwarded unchanged
	ItemsPassed int64
	// ItemsFailed is the count of items that failed validation
	ItemsFailed int64
	// RulesSkipped is the count of blank rules
	RulesSkipped int64
	// ProcessingTimeNs is the total time spent on passing items in nanoseconds
	ProcessingTimeNs int64
}

// DefaultMetricsCollector is a thread-safe implementation of MetricsCollector.
type DefaultMetricsCollector struct {
	passed           atomic.Int64
	failed           atomic.Int64
	skipped          atomic.Int64
	totalProcessTime atomic.Int64
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *DefaultMetricsCollector {
	return &DefaultMetricsCollector{}
}

// RecordPassed records an item that passed.
func (m *DefaultMetricsCollector) RecordPassed(durationNs int64) {
	m.passed.Add(1)
	m.totalProcessTime.Add(durationNs)
}

// RecordFailed records an item that failed.
func (m *DefaultMetricsCollector) RecordFailed() {
	m.failed.Add(1)
}

// RecordSkipped records a skipped rule.
func (m *DefaultMetricsCollector) RecordSkipped() {
	m.skipped.Add(1)
}

// GetMetrics returns the current metrics.
func (m *DefaultMetricsCollector) GetMetrics() Metrics {
	return Metrics{
		ItemsPassed:      m.passed.Load(),
		ItemsFailed:      m.failed.Load(),
		RulesSkipped:     m.skipped.Load(),
		ProcessingTimeNs: m.totalProcessTime.Load(),
	}
}

// Reset resets all metrics.
func (m *DefaultMetricsCollector) Reset() {
	m.passed.Store(0)
	m.failed.Store(0)
	m.skipped.Store(0)
	m.totalProcessTime.Store(0)
}

// AverageProcessingTime returns the average processing time per passing item.
func (m *DefaultMetricsCollector) AverageProcessingTime() time.Duration {
	passed := m.passed.Load()
	if passed == 0 {
		return 0
	}
	return time.Duration(m.totalProcessTime.Load() / passed)
}

// FailureRate returns the share of failed items as a percentage.
func (m *DefaultMetricsCollector) FailureRate() float64 {
	passed := m.passed.Load()
	failed := m.failed.Load()
	total := passed + failed
	if total == 0 {
		return 0
	}
	return float64(failed) / float64(total) * 100
}

var _ MetricsCollector = (*DefaultMetricsCollector)(nil)

// NoOpMetricsCollector is a metrics collector that does nothing.
type NoOpMetricsCollector struct{}

func (m *NoOpMetricsCollector) RecordPassed(durationNs int64) {}
func (m *NoOpMetricsCollector) RecordFailed()                 {}
func (m *NoOpMetricsCollector) RecordSkipped()                {}
func (m *NoOpMetricsCollector) GetMetrics() Metrics           { return Metrics{} }
func (m *NoOpMetricsCollector) Reset()                        {}

var _ MetricsCollector = (*NoOpMetricsCollector)(nil)
