// Package postgres stores policy configuration and calculation records in
// PostgreSQL. Queries are built with goqu and run through lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/clinicops/coverage/internal/calculation"
	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/lib/pq"
)

// RetryConfig controls the connection attempts made by Open.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig gives the database roughly half a minute to come up.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   8,
		InitialDelay:  200 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
	}
}

// Open connects to dsn, pinging with exponential backoff until the database
// answers or the attempts run out.
func Open(ctx context.Context, dsn string, cfg RetryConfig, logger calculation.Logger) (*Store, error) {
	if logger == nil {
		logger = calculation.NopLogger{}
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := pingWithRetry(ctx, db, cfg, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	logger.Infof("connected to PostgreSQL")
	return New(db), nil
}

func pingWithRetry(ctx context.Context, db *sql.DB, cfg RetryConfig, logger calculation.Logger) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	delay := cfg.InitialDelay

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		lastErr = db.PingContext(pingCtx)
		cancel()
		if lastErr == nil {
			return nil
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		logger.Warnf("PostgreSQL connection attempt %d failed: %v; retrying in %v", attempt, lastErr, delay)
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry aborted after %d attempts: %w (last error: %v)", attempt, ctx.Err(), lastErr)
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * cfg.BackoffFactor)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return fmt.Errorf("max retry attempts (%d) exceeded: %w", cfg.MaxAttempts, lastErr)
}

// Store implements calculation.SnapshotSource and calculation.Recorder.
type Store struct {
	db      *sql.DB
	dialect goqu.DialectWrapper
	NewID   func() string
}

// DB returns the underlying connection pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
