// Package db persists the session journal in Postgres via pgx.
package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const logPrefix = "db:pool"

// NewPool creates a new pgx connection pool from the given database URL.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	slog.Info(fmt.Sprintf("%s - Connecting to database", logPrefix))

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to parse database URL: %w", logPrefix, err)
	}

	config.MaxConns = 10
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to create pool: %w", logPrefix, err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s - failed to ping database: %w", logPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Database connection established", logPrefix))
	return pool, nil
}

// RunMigrations applies migrations in order and stops at the first failure.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, migrations []Migration) error {
	slog.Info(fmt.Sprintf("%s - Running %d migrations", logPrefix, len(migrations)))

	for _, m := range migrations {
		if _, err := pool.Exec(ctx, m.SQL); err != nil {
			return fmt.Errorf("%s - migration %s failed: %w", logPrefix, m.Name, err)
		}
		slog.Debug(fmt.Sprintf("%s - Applied %s", logPrefix, m.Name))
	}

	slog.Info(fmt.Sprintf("%s - Migrations complete", logPrefix))
	return nil
}

// MigrationState describes what migrate status reports.
type MigrationState struct {
	Applied bool
	Files   int
	Path    string
}

func (m MigrationState) String() string {
	if m.Applied {
		return fmt.Sprintf("applied (packet_sessions present, %d migration files in %s)", m.Files, m.Path)
	}
	return fmt.Sprintf("not applied (run 'packetd migrate up'), %d migration files in %s", m.Files, m.Path)
}

// MigrationStatus checks for the packet_sessions table and counts migration files.
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool, migrationPath string) (MigrationState, error) {
	const statusLogPrefix = "db:MigrationStatus"
	state := MigrationState{Path: migrationPath}

	err := pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = 'packet_sessions')`).Scan(&state.Applied)
	if err != nil {
		return state, fmt.Errorf("%s - failed to check schema: %w", statusLogPrefix, err)
	}

	files, err := LoadMigrations(migrationPath)
	if err != nil {
		return state, fmt.Errorf("%s - load migration list: %w", statusLogPrefix, err)
	}
	state.Files = len(files)
	return state, nil
}

// MigrationDown is a no-op: migrations are forward-only.
func MigrationDown(_ context.Context, _ *pgxpool.Pool, _ string) error {
	slog.Warn(fmt.Sprintf("%s - migrate down is not supported, use 'packetd clear' to reset the journal", logPrefix))
	return nil
}
