// Package storage implements the Persister, DLQ Sink, Metrics Recorder
// store-side, and the partition-cursor table (spec.md §4.4, §4.5, §4.6,
// §4.9) on top of database/sql and lib/pq.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sony/gobreaker/v2"
)

// Store owns the connection pool and the circuit breaker guarding the
// transient-failure path of Persist.
type Store struct {
	conn    *sql.DB
	breaker *gobreaker.CircuitBreaker[any]
}

// BreakerConfig tunes the circuit breaker wrapping transient store failures
// (spec.md §7: repeated transient failure escalates past per-message retry).
type BreakerConfig struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// Open opens the connection pool, verifies connectivity, and wires the
// circuit breaker. It does not run migrations — call Migrate separately.
func Open(dsn string, minPool, maxPool int, connectTimeout time.Duration, bc BreakerConfig) (*Store, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	conn.SetMaxOpenConns(maxPool)
	conn.SetMaxIdleConns(minPool)
	conn.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	settings := gobreaker.Settings{
		Name:        "store-persist",
		MaxRequests: 1,
		Timeout:     bc.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bc.FailureThreshold
		},
	}

	return &Store{
		conn:    conn,
		breaker: gobreaker.NewCircuitBreaker[any](settings),
	}, nil
}

// DB exposes the underlying *sql.DB, e.g. for Migrate.
func (s *Store) DB() *sql.DB { return s.conn }

// Close shuts down the connection pool.
func (s *Store) Close() error {
	return s.conn.Close()
}
