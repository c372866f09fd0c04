package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is the subset of pgx used for DDL.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Schema is the archive DDL, applied idempotently at startup.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS raw_bars (
		code   TEXT NOT NULL,
		date   DATE NOT NULL,
		open   DOUBLE PRECISION NOT NULL,
		high   DOUBLE PRECISION NOT NULL,
		low    DOUBLE PRECISION NOT NULL,
		close  DOUBLE PRECISION NOT NULL,
		volume DOUBLE PRECISION NOT NULL,
		amount DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (code, date)
	)`,
	`CREATE TABLE IF NOT EXISTS adjustment_factors (
		code   TEXT NOT NULL,
		date   DATE NOT NULL,
		factor DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (code, date)
	)`,
	`CREATE TABLE IF NOT EXISTS status_flags (
		code             TEXT NOT NULL,
		date             DATE NOT NULL,
		high_limit_price DOUBLE PRECISION NOT NULL DEFAULT 0,
		low_limit_price  DOUBLE PRECISION NOT NULL DEFAULT 0,
		is_st            BOOLEAN NOT NULL DEFAULT FALSE,
		is_suspended     BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (code, date)
	)`,
}

// EnsureSchema creates any missing archive tables.
func EnsureSchema(ctx context.Context, db Execer) error {
	for _, stmt := range Schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
