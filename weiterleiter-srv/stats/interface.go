package stats

import (
	"context"
	"time"
)

// Collector defines the interface for recording proxy audit events.
// Implementations must be safe for concurrent use; every in-flight request
// may record events independently.
type Collector interface {
	// RecordForwardedRequest records a request that passed admission and was
	// answered by the upstream server.
	RecordForwardedRequest(ctx context.Context, clientAddr, targetHost, method string, statusCode int, contentLength int64) error

	// RecordFilteredRequest records a request that was rejected by an
	// admission filter. The inner handler was never invoked for it.
	RecordFilteredRequest(ctx context.Context, clientAddr, targetHost string) error

	// RecordError records a failed forwarding attempt.
	RecordError(ctx context.Context, clientAddr, errorType, errorMessage string) error

	// GetOverviewStats returns aggregate counters for all recorded events.
	GetOverviewStats(ctx context.Context) (*OverviewStats, error)

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error

	// Close cleans up resources.
	Close() error
}

// OverviewStats holds aggregate counters over all recorded events.
type OverviewStats struct {
	ForwardedRequests int64     `json:"forwarded_requests"`
	FilteredRequests  int64     `json:"filtered_requests"`
	Errors            int64     `json:"errors"`
	BytesForwarded    int64     `json:"bytes_forwarded"`
	Since             time.Time `json:"since"`
}
