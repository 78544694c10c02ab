package stats

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/codefionn/weiterleiter/weiterleiter-srv/logger"
	_ "github.com/lib/pq"
)

// PostgreSQLCollector implements Collector using PostgreSQL as the backend.
type PostgreSQLCollector struct {
	db *sql.DB
}

// NewPostgreSQLCollector creates a new PostgreSQL-based audit collector.
func NewPostgreSQLCollector(dsn string) (*PostgreSQLCollector, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	collector := &PostgreSQLCollector{db: db}
	if err := collector.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Debug("Initialized postgres audit collector")

	return collector, nil
}

func (p *PostgreSQLCollector) initSchema() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS forwarded_requests (
			id BIGSERIAL PRIMARY KEY,
			client_addr TEXT NOT NULL,
			target_host TEXT NOT NULL,
			method TEXT NOT NULL,
			status_code INTEGER NOT NULL,
			content_length BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS filtered_requests (
			id BIGSERIAL PRIMARY KEY,
			client_addr TEXT NOT NULL,
			target_host TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS request_errors (
			id BIGSERIAL PRIMARY KEY,
			client_addr TEXT NOT NULL,
			error_type TEXT NOT NULL,
			error_message TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_forwarded_created ON forwarded_requests(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_filtered_created ON filtered_requests(created_at)`,
	}
	for _, stmt := range schema {
		if _, err := p.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// RecordForwardedRequest records a forwarded request.
func (p *PostgreSQLCollector) RecordForwardedRequest(ctx context.Context, clientAddr, targetHost, method string, statusCode int, contentLength int64) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO forwarded_requests (client_addr, target_host, method, status_code, content_length, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		clientAddr, targetHost, method, statusCode, max(contentLength, 0), time.Now())
	if err != nil {
		return fmt.Errorf("failed to record forwarded request: %w", err)
	}
	return nil
}

// RecordFilteredRequest records a rejected request.
func (p *PostgreSQLCollector) RecordFilteredRequest(ctx context.Context, clientAddr, targetHost string) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO filtered_requests (client_addr, target_host, created_at) VALUES ($1, $2, $3)`,
		clientAddr, targetHost, time.Now())
	if err != nil {
		return fmt.Errorf("failed to record filtered request: %w", err)
	}
	return nil
}

// RecordError records a failed forwarding attempt.
func (p *PostgreSQLCollector) RecordError(ctx context.Context, clientAddr, errorType, errorMessage string) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO request_errors (client_addr, error_type, error_message, created_at) VALUES ($1, $2, $3, $4)`,
		clientAddr, errorType, errorMessage, time.Now())
	if err != nil {
		return fmt.Errorf("failed to record error: %w", err)
	}
	return nil
}

// GetOverviewStats returns aggregate counters.
func (p *PostgreSQLCollector) GetOverviewStats(ctx context.Context) (*OverviewStats, error) {
	overview := &OverviewStats{}

	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(content_length), 0) FROM forwarded_requests`).
		Scan(&overview.ForwardedRequests, &overview.BytesForwarded)
	if err != nil {
		return nil, fmt.Errorf("failed to query forwarded requests: %w", err)
	}

	var since sql.NullTime
	err = p.db.QueryRowContext(ctx,
		`SELECT created_at FROM forwarded_requests ORDER BY created_at LIMIT 1`).Scan(&since)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to query first request time: %w", err)
	}
	if since.Valid {
		overview.Since = since.Time
	} else {
		overview.Since = time.Now()
	}

	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM filtered_requests`).Scan(&overview.FilteredRequests); err != nil {
		return nil, fmt.Errorf("failed to query filtered requests: %w", err)
	}

	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM request_errors`).Scan(&overview.Errors); err != nil {
		return nil, fmt.Errorf("failed to query errors: %w", err)
	}

	return overview, nil
}

// HealthCheck verifies the database is reachable.
func (p *PostgreSQLCollector) HealthCheck(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection.
func (p *PostgreSQLCollector) Close() error {
	return p.db.Close()
}
