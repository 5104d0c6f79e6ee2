package database

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

//go:embed migrations/001_init_schema.sql
var migrationSQL string

const upgradeSQL = `ALTER TABLE accounts ADD COLUMN IF NOT EXISTS version BIGINT NOT NULL DEFAULT 0`

// RunMigrations runs database migrations on startup
func RunMigrations(ctx context.Context, db *pgxpool.Pool, logger *zap.Logger) error {
	logger.Info("Running database migrations...")

	// Check if the ledger table exists
	var exists bool
	err := db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_name = 'ledger_entries'
		)
	`).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check if migrations needed: %w", err)
	}

	if exists {
		// columns added after the initial schema
		if _, err := db.Exec(ctx, upgradeSQL); err != nil {
			return fmt.Errorf("failed to upgrade schema: %w", err)
		}
		logger.Info("Database already migrated, skipping")
		return nil
	}

	logger.Info("Database is empty, running migrations")

	// Run migration SQL from embedded file
	if _, err := db.Exec(ctx, migrationSQL); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("Database migrations completed")
	return nil
}
