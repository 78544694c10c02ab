package stats

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteCollector(t *testing.T) *SQLiteCollector {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.db")
	c, err := NewSQLiteCollector(path)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, c.Close())
	})
	return c
}

func TestSQLiteCollectorRoundTrip(t *testing.T) {
	c := newTestSQLiteCollector(t)
	ctx := context.Background()

	require.NoError(t, c.RecordForwardedRequest(ctx, "10.0.0.1:1234", "example.com", "GET", 200, 2048))
	require.NoError(t, c.RecordForwardedRequest(ctx, "10.0.0.1:1234", "example.com", "GET", 404, 64))
	require.NoError(t, c.RecordFilteredRequest(ctx, "10.0.0.2:4321", "blocked.example"))
	require.NoError(t, c.RecordError(ctx, "10.0.0.3:1111", "forward_error", "dial tcp: connection refused"))

	overview, err := c.GetOverviewStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), overview.ForwardedRequests)
	assert.Equal(t, int64(1), overview.FilteredRequests)
	assert.Equal(t, int64(1), overview.Errors)
	assert.Equal(t, int64(2112), overview.BytesForwarded)
	assert.False(t, overview.Since.IsZero())
}

func TestSQLiteCollectorEmptyDatabase(t *testing.T) {
	c := newTestSQLiteCollector(t)

	overview, err := c.GetOverviewStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), overview.ForwardedRequests)
	assert.Equal(t, int64(0), overview.FilteredRequests)
	assert.Equal(t, int64(0), overview.Errors)
}

func TestSQLiteCollectorHealthCheck(t *testing.T) {
	c := newTestSQLiteCollector(t)
	assert.NoError(t, c.HealthCheck(context.Background()))
}

func TestSQLiteCollectorRejectsBadPath(t *testing.T) {
	_, err := NewSQLiteCollector("/nonexistent-dir/sub/audit.db")
	require.Error(t, err)
}
