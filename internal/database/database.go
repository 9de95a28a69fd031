// Package database provides the PostgreSQL connection pool and schema
// bootstrap for the card registry.
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koffiyao/cartes/internal/config"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx, so queries can run inside or
// outside a transaction without caring which.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Connect parses the database config, builds a pgx pool and verifies the
// connection with a ping.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	// Safety timeout: a stuck acquire is force-released rather than hanging
	// an import worker forever.
	poolConfig.ConnConfig.ConnectTimeout = cfg.AcquireTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// EnsureSchema creates the registry tables if they do not exist yet.
// Production deployments run real migrations; this keeps fresh environments
// and local development working without extra tooling.
func EnsureSchema(ctx context.Context, db DBTX) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS cartes (
			id BIGSERIAL PRIMARY KEY,
			enrollment_location TEXT NOT NULL DEFAULT '',
			withdrawal_site TEXT NOT NULL DEFAULT '',
			storage_location TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL,
			first_names TEXT NOT NULL,
			birth_date DATE,
			birth_place TEXT NOT NULL DEFAULT '',
			contact_phone VARCHAR(8) NOT NULL DEFAULT '',
			delivery_status TEXT NOT NULL DEFAULT '',
			withdrawal_contact_phone VARCHAR(8) NOT NULL DEFAULT '',
			delivery_date DATE,
			import_batch_id UUID,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cartes_match_key
			ON cartes (lower(last_name), lower(first_names))`,
		`CREATE INDEX IF NOT EXISTS idx_cartes_import_batch
			ON cartes (import_batch_id)`,
		`CREATE TABLE IF NOT EXISTS journal (
			id BIGSERIAL PRIMARY KEY,
			actor TEXT NOT NULL DEFAULT '',
			action_type TEXT NOT NULL,
			table_name TEXT NOT NULL DEFAULT '',
			record_id BIGINT,
			old_value JSONB,
			new_value JSONB,
			import_batch_id UUID,
			details TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_journal_created_at
			ON journal (created_at DESC)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}

	return nil
}
