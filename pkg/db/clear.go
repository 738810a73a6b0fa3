package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const clearLogPrefix = "db:clear"

// ClearSessions truncates the session journal. Schema is preserved.
func ClearSessions(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info(fmt.Sprintf("%s - Clearing session journal", clearLogPrefix))

	if _, err := pool.Exec(ctx, `TRUNCATE TABLE packet_sessions`); err != nil {
		return fmt.Errorf("%s - truncate failed: %w", clearLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Session journal cleared", clearLogPrefix))
	return nil
}
