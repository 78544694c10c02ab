package stats

import (
	"fmt"

	"github.com/codefionn/weiterleiter/weiterleiter-srv/config"
)

// CollectorFactory creates audit collectors based on configuration.
type CollectorFactory struct{}

// NewCollectorFactory creates a new collector factory.
func NewCollectorFactory() *CollectorFactory {
	return &CollectorFactory{}
}

// CreateCollector creates an audit collector based on the provided configuration.
func (f *CollectorFactory) CreateCollector(cfg *config.AuditConfig) (Collector, error) {
	if !cfg.Enabled {
		return NewDummyCollector(), nil
	}

	switch cfg.Backend {
	case "memory", "":
		return NewMemoryCollector(), nil
	case "sqlite":
		sqlitePath := cfg.SQLitePath
		if sqlitePath == "" {
			sqlitePath = "weiterleiter_audit.db"
		}
		collector, err := NewSQLiteCollector(sqlitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to create sqlite collector: %w", err)
		}
		return collector, nil
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres-dsn is required for postgres backend")
		}
		collector, err := NewPostgreSQLCollector(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres collector: %w", err)
		}
		return collector, nil
	case "dummy":
		return NewDummyCollector(), nil
	default:
		return nil, fmt.Errorf("unsupported audit backend: %s", cfg.Backend)
	}
}
