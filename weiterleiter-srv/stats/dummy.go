package stats

import (
	"context"
	"time"
)

// DummyCollector is a no-op implementation of Collector.
// It is used when audit collection is disabled.
type DummyCollector struct{}

// NewDummyCollector creates a new dummy collector.
func NewDummyCollector() *DummyCollector {
	return &DummyCollector{}
}

// RecordForwardedRequest records a forwarded request (no-op).
func (d *DummyCollector) RecordForwardedRequest(ctx context.Context, clientAddr, targetHost, method string, statusCode int, contentLength int64) error {
	return nil
}

// RecordFilteredRequest records a filtered request (no-op).
func (d *DummyCollector) RecordFilteredRequest(ctx context.Context, clientAddr, targetHost string) error {
	return nil
}

// RecordError records an error (no-op).
func (d *DummyCollector) RecordError(ctx context.Context, clientAddr, errorType, errorMessage string) error {
	return nil
}

// GetOverviewStats returns zeroed counters.
func (d *DummyCollector) GetOverviewStats(ctx context.Context) (*OverviewStats, error) {
	return &OverviewStats{Since: time.Now()}, nil
}

// HealthCheck always succeeds.
func (d *DummyCollector) HealthCheck(ctx context.Context) error {
	return nil
}

// Close cleans up resources (no-op).
func (d *DummyCollector) Close() error {
	return nil
}
