// Package store implements the relational repositories of NetPulse on
// PostgreSQL via pgx. Schema names are contractual and shared with the other
// GridWatch services: npm.* for telemetry, syslog.* for the event buffer,
// stig.* for compliance.
//
// Connections come from a single pgxpool acquired per operation; the
// data-plane holds no long transactions.
package store

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store bundles the repositories over one connection pool.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger

	Devices *DeviceRepo
	Metrics *MetricsRepo
	Syslog  *SyslogRepo
	STIG    *STIGRepo
}

// Connect opens the pool and pings it once. A failure here is fatal to the
// process by design — nothing in the core works without the database.
func Connect(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	s := &Store{pool: pool, logger: logger}
	s.Devices = &DeviceRepo{pool: pool, logger: logger}
	s.Metrics = &MetricsRepo{pool: pool, logger: logger}
	s.Syslog = &SyslogRepo{pool: pool, logger: logger}
	s.STIG = &STIGRepo{pool: pool, logger: logger}

	logger.Info("store: connected")
	return s, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}
