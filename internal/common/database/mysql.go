// internal/common/database/mysql.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"relationship-metrics/internal/common/config"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLClient wraps a MySQL or MariaDB connection pool.
type MySQLClient struct {
	DB *sql.DB
}

// NewMySQL opens a pool from a driver DSN or a mysql:// / mariadb:// URL.
func NewMySQL(cfg config.MySQLConfig) (*MySQLClient, error) {
	dsn, err := cfg.DriverDSN()
	if err != nil {
		return nil, fmt.Errorf("invalid mysql dsn: %w", err)
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql: %w", err)
	}

	maxOpen := cfg.MaxConnections
	if maxOpen <= 0 {
		maxOpen = 10
	}
	maxIdle := cfg.MaxIdle
	if maxIdle <= 0 {
		maxIdle = maxOpen
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &MySQLClient{DB: db}, nil
}

func (c *MySQLClient) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

func (c *MySQLClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// Source returns a snapshot source over table using "?" placeholders.
func (c *MySQLClient) Source(tables SourceTables, timeout time.Duration) (*SnapshotSource, error) {
	return NewSnapshotSource(c.DB, DialectMySQL, tables, timeout)
}
