package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/alim08/marketgql/pkg/logger"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	UpSQL       string
	DownSQL     string
}

// Migrations holds all database migrations
var Migrations = []Migration{
	{
		Version:     1,
		Description: "Create launchpad archive",
		UpSQL: `
			CREATE TABLE IF NOT EXISTS launchpad_events (
				id BIGSERIAL PRIMARY KEY,
				stream_id VARCHAR(64) NOT NULL UNIQUE,
				token_key VARCHAR(128) NOT NULL,
				address VARCHAR(64) NOT NULL,
				network_id INTEGER NOT NULL CHECK (network_id > 0),
				protocol VARCHAR(32) NOT NULL,
				event_type VARCHAR(16) NOT NULL,
				price DOUBLE PRECISION CHECK (price >= 0),
				market_cap NUMERIC(38,12),
				liquidity NUMERIC(38,12),
				holders INTEGER,
				payload JSONB NOT NULL,
				received_at TIMESTAMP WITH TIME ZONE NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_launchpad_events_token ON launchpad_events(token_key, received_at DESC);
			CREATE INDEX IF NOT EXISTS idx_launchpad_events_received ON launchpad_events(received_at DESC);
			CREATE INDEX IF NOT EXISTS idx_launchpad_events_protocol ON launchpad_events(protocol, event_type);

			CREATE TABLE IF NOT EXISTS price_anomalies (
				id BIGSERIAL PRIMARY KEY,
				token_key VARCHAR(128) NOT NULL,
				address VARCHAR(64) NOT NULL,
				network_id INTEGER NOT NULL,
				protocol VARCHAR(32) NOT NULL,
				event_type VARCHAR(16),
				price DOUBLE PRECISION NOT NULL CHECK (price >= 0),
				mean DOUBLE PRECISION NOT NULL,
				std_dev DOUBLE PRECISION NOT NULL CHECK (std_dev >= 0),
				z_score DOUBLE PRECISION NOT NULL,
				detected_at BIGINT NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_price_anomalies_token ON price_anomalies(token_key, detected_at DESC);
			CREATE INDEX IF NOT EXISTS idx_price_anomalies_detected ON price_anomalies(detected_at DESC);
		`,
		DownSQL: `
			DROP TABLE IF EXISTS price_anomalies;
			DROP TABLE IF EXISTS launchpad_events;
		`,
	},
	{
		Version:     2,
		Description: "Add token snapshots",
		UpSQL: `
			CREATE TABLE IF NOT EXISTS token_snapshots (
				id BIGSERIAL PRIMARY KEY,
				token_key VARCHAR(128) NOT NULL,
				address VARCHAR(64) NOT NULL,
				network_id INTEGER NOT NULL,
				price_usd NUMERIC(38,18),
				market_cap NUMERIC(38,12),
				liquidity NUMERIC(38,12),
				volume24 NUMERIC(38,12),
				holders INTEGER,
				payload JSONB NOT NULL,
				snapshot_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE (token_key, snapshot_at)
			);

			CREATE INDEX IF NOT EXISTS idx_token_snapshots_latest ON token_snapshots(token_key, snapshot_at DESC);

			CREATE OR REPLACE VIEW latest_token_snapshots AS
			SELECT DISTINCT ON (token_key)
				token_key, address, network_id, price_usd, market_cap, liquidity, volume24, holders, payload, snapshot_at
			FROM token_snapshots
			ORDER BY token_key, snapshot_at DESC;
		`,
		DownSQL: `
			DROP VIEW IF EXISTS latest_token_snapshots;
			DROP TABLE IF EXISTS token_snapshots;
		`,
	},
}

// MigrationStatus represents the status of a migration
type MigrationStatus struct {
	Version     int       `json:"version"`
	Applied     bool      `json:"applied"`
	AppliedAt   time.Time `json:"applied_at,omitempty"`
	Description string    `json:"description"`
}

// RunMigrations runs all pending database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	logger.Log.Info("starting database migrations")

	if err := db.createMigrationsTable(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := db.getAppliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, migration := range Migrations {
		if _, ok := applied[migration.Version]; ok {
			logger.Log.Debug("migration already applied", zap.Int("version", migration.Version))
			continue
		}

		logger.Log.Info("applying migration",
			zap.Int("version", migration.Version),
			zap.String("description", migration.Description))

		if err := db.applyMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
		}
	}

	logger.Log.Info("database migrations completed")
	return nil
}

func (db *DB) createMigrationsTable(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);
	`)
	return err
}

// getAppliedMigrations maps applied versions to when they were applied.
func (db *DB) getAppliedMigrations(ctx context.Context) (map[int]time.Time, error) {
	rows, err := db.QueryContext(ctx, `SELECT version, applied_at FROM migrations ORDER BY version`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var at time.Time
		if err := rows.Scan(&version, &at); err != nil {
			return nil, err
		}
		applied[version] = at
	}
	return applied, rows.Err()
}

func (db *DB) applyMigration(ctx context.Context, migration Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, migration.UpSQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO migrations (version, description) VALUES ($1, $2)`,
		migration.Version, migration.Description); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return tx.Commit()
}

// GetMigrationStatus returns the status of all migrations
func (db *DB) GetMigrationStatus(ctx context.Context) ([]MigrationStatus, error) {
	applied, err := db.getAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	return migrationStatus(applied), nil
}

func migrationStatus(applied map[int]time.Time) []MigrationStatus {
	status := make([]MigrationStatus, 0, len(Migrations))
	for _, m := range Migrations {
		at, ok := applied[m.Version]
		status = append(status, MigrationStatus{
			Version:     m.Version,
			Applied:     ok,
			AppliedAt:   at,
			Description: m.Description,
		})
	}
	return status
}

// RollbackMigration rolls back the last applied migration
func (db *DB) RollbackMigration(ctx context.Context) error {
	var version int
	var description string
	err := db.QueryRowContext(ctx, `SELECT version, description FROM migrations ORDER BY version DESC LIMIT 1`).
		Scan(&version, &description)
	if err != nil {
		return fmt.Errorf("no migrations to rollback: %w", err)
	}

	var migration *Migration
	for i := range Migrations {
		if Migrations[i].Version == version {
			migration = &Migrations[i]
			break
		}
	}
	if migration == nil {
		return fmt.Errorf("migration version %d not found", version)
	}

	logger.Log.Info("rolling back migration",
		zap.Int("version", version),
		zap.String("description", description))

	return db.Transaction(ctx, func(tx *sql.Tx) error {
		if migration.DownSQL != "" {
			if _, err := tx.ExecContext(ctx, migration.DownSQL); err != nil {
				return fmt.Errorf("failed to execute rollback SQL: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM migrations WHERE version = $1`, version); err != nil {
			return fmt.Errorf("failed to remove migration record: %w", err)
		}
		return nil
	})
}
