// Package store is the authoritative relational layer: entities, raw
// SQL access and the transactional updates the pipeline and the poller
// serialize through.
package store

import (
	"context"
	"database/sql"

	"github.com/DE-IBH/b3lb/internal/logging"
)

// Store wraps the Postgres connection with the balancer's queries.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

// New creates a Store on an open connection.
func New(db *sql.DB, logger logging.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// DB exposes the underlying connection for health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping probes the database with a trivial read, mirroring the
// monitoring ping contract.
func (s *Store) Ping(ctx context.Context) error {
	var one int
	return s.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one)
}
