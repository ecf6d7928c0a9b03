// Package storepg holds the Postgres-backed durable storage for
// ChakraOps: snapshot metadata/rows, universe, regime history, and
// freeze state. The repository shape (sqlx.DB + context.WithTimeout +
// JSON-marshaled columns) is grounded on the teacher's
// internal/persistence/postgres/regime_repo.go.
package storepg

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const defaultTimeout = 5 * time.Second

// schemaStatements are idempotent CREATE TABLE IF NOT EXISTS migrations,
// applied in order. The teacher repo migrates via ad-hoc SQL files; here
// we keep the full schema inline since ChakraOps has no migration tool
// in its dependency stack.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS universe (
		symbol TEXT PRIMARY KEY,
		enabled BOOLEAN NOT NULL DEFAULT true,
		notes TEXT NOT NULL DEFAULT '',
		priority INTEGER NOT NULL DEFAULT 0,
		sector TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS snapshot_metadata (
		snapshot_id TEXT PRIMARY KEY,
		snapshot_timestamp TIMESTAMPTZ NOT NULL,
		source TEXT NOT NULL,
		source_detail TEXT NOT NULL DEFAULT '',
		symbol_count INTEGER NOT NULL DEFAULT 0,
		symbols_with_data INTEGER NOT NULL DEFAULT 0,
		data_age_minutes DOUBLE PRECISION NOT NULL DEFAULT 0,
		is_frozen BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_snapshot_metadata_frozen
		ON snapshot_metadata (is_frozen)
		WHERE is_frozen = true`,
	`CREATE INDEX IF NOT EXISTS idx_snapshot_metadata_timestamp
		ON snapshot_metadata (snapshot_timestamp DESC)`,
	`CREATE TABLE IF NOT EXISTS snapshot_rows (
		snapshot_id TEXT NOT NULL REFERENCES snapshot_metadata(snapshot_id) ON DELETE CASCADE,
		symbol TEXT NOT NULL,
		date TIMESTAMPTZ NOT NULL,
		open DOUBLE PRECISION,
		high DOUBLE PRECISION,
		low DOUBLE PRECISION,
		close DOUBLE PRECISION,
		volume DOUBLE PRECISION,
		iv_rank DOUBLE PRECISION,
		has_data BOOLEAN NOT NULL DEFAULT false,
		PRIMARY KEY (snapshot_id, symbol)
	)`,
	`CREATE TABLE IF NOT EXISTS regime_history (
		id BIGSERIAL PRIMARY KEY,
		regime TEXT NOT NULL,
		detected_at TIMESTAMPTZ NOT NULL,
		signals JSONB NOT NULL DEFAULT '{}',
		stable BOOLEAN NOT NULL DEFAULT false
	)`,
	`CREATE INDEX IF NOT EXISTS idx_regime_history_detected_at
		ON regime_history (detected_at DESC)`,
	`CREATE TABLE IF NOT EXISTS freeze_state (
		id INTEGER PRIMARY KEY DEFAULT 1,
		frozen BOOLEAN NOT NULL DEFAULT false,
		frozen_at TIMESTAMPTZ,
		config_hash TEXT NOT NULL DEFAULT '',
		config_snapshot JSONB NOT NULL DEFAULT '{}',
		run_mode TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT freeze_state_singleton CHECK (id = 1)
	)`,
}

// Migrate applies the schema, matching the teacher's pattern of running
// idempotent DDL on startup rather than a versioned migration tool.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("storepg: migrate: %w", err)
		}
	}
	return nil
}
