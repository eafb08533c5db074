package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// InitSchema creates all necessary tables and indexes.
func InitSchema(ctx context.Context, db *sql.DB) error {
	if err := createOccupancyTable(ctx, db); err != nil {
		return err
	}
	return createSettingsTable(ctx, db)
}

func createOccupancyTable(ctx context.Context, db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS occupancy_results (
		date TEXT PRIMARY KEY,
		scan_id TEXT,
		payload TEXT NOT NULL,
		stored_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_occupancy_expires_at ON occupancy_results(expires_at);
	`

	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create occupancy_results table: %w", err)
	}

	return nil
}

// settings holds one JSON document per name ("links", "times").
func createSettingsTable(ctx context.Context, db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS settings (
		name TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`

	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create settings table: %w", err)
	}

	return nil
}
