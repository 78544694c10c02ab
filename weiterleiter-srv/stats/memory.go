package stats

import (
	"context"
	"sync/atomic"
	"time"
)

// MemoryCollector keeps aggregate counters in memory using atomic operations.
// Individual events are not retained; use the SQL backends for that.
type MemoryCollector struct {
	forwarded      atomic.Int64
	filtered       atomic.Int64
	errors         atomic.Int64
	bytesForwarded atomic.Int64
	since          time.Time
}

// NewMemoryCollector creates a new in-memory collector.
func NewMemoryCollector() *MemoryCollector {
	return &MemoryCollector{since: time.Now()}
}

// RecordForwardedRequest increments the forwarded counter.
func (m *MemoryCollector) RecordForwardedRequest(ctx context.Context, clientAddr, targetHost, method string, statusCode int, contentLength int64) error {
	m.forwarded.Add(1)
	if contentLength > 0 {
		m.bytesForwarded.Add(contentLength)
	}
	return nil
}

// RecordFilteredRequest increments the filtered counter.
func (m *MemoryCollector) RecordFilteredRequest(ctx context.Context, clientAddr, targetHost string) error {
	m.filtered.Add(1)
	return nil
}

// RecordError increments the error counter.
func (m *MemoryCollector) RecordError(ctx context.Context, clientAddr, errorType, errorMessage string) error {
	m.errors.Add(1)
	return nil
}

// GetOverviewStats returns a snapshot of the counters.
func (m *MemoryCollector) GetOverviewStats(ctx context.Context) (*OverviewStats, error) {
	return &OverviewStats{
		ForwardedRequests: m.forwarded.Load(),
		FilteredRequests:  m.filtered.Load(),
		Errors:            m.errors.Load(),
		BytesForwarded:    m.bytesForwarded.Load(),
		Since:             m.since,
	}, nil
}

// HealthCheck always succeeds for the in-memory backend.
func (m *MemoryCollector) HealthCheck(ctx context.Context) error {
	return nil
}

// Close cleans up resources (no-op for the in-memory backend).
func (m *MemoryCollector) Close() error {
	return nil
}
