// internal/common/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"relationship-metrics/internal/common/config"

	_ "github.com/lib/pq"
)

// Snapshot loads only read; sessions are opened read-only and tagged so
// long scans are easy to spot in pg_stat_activity.
const postgresSessionOptions = " application_name=relationship-metrics default_transaction_read_only=on"

// PostgresClient holds the pool used by the Postgres snapshot source.
type PostgresClient struct {
	DB *sql.DB
}

func NewPostgres(cfg config.PostgresConfig) (*PostgresClient, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("postgres host is required")
	}
	db, err := sql.Open("postgres", cfg.GetDSN()+postgresSessionOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	maxOpen := cfg.MaxConnections
	if maxOpen <= 0 {
		maxOpen = 4
	}
	maxIdle := cfg.MaxIdle
	if maxIdle <= 0 || maxIdle > maxOpen {
		maxIdle = maxOpen
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxIdleTime(10 * time.Minute)

	return &PostgresClient{DB: db}, nil
}

func (c *PostgresClient) Ping(ctx context.Context) error {
	if err := c.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}

func (c *PostgresClient) Close() error {
	if c.DB == nil {
		return nil
	}
	return c.DB.Close()
}

// Source returns a snapshot source using $n placeholders.
func (c *PostgresClient) Source(tables SourceTables, timeout time.Duration) (*SnapshotSource, error) {
	return NewSnapshotSource(c.DB, DialectPostgres, tables, timeout)
}
