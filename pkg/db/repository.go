package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repoLogPrefix = "db:repository"

// SessionRepository journals session lifecycle to Postgres.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository with the given connection pool.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// RecordConnect inserts an open session row. Reconnecting with the same ID reopens it.
func (r *SessionRepository) RecordConnect(ctx context.Context, id, peer string, at time.Time) error {
	slog.Debug(fmt.Sprintf("%s - RecordConnect id=%s peer=%s", repoLogPrefix, id, peer))

	_, err := r.pool.Exec(ctx,
		`INSERT INTO packet_sessions (id, peer, connected_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET
		   peer = EXCLUDED.peer,
		   connected_at = EXCLUDED.connected_at,
		   disconnected_at = NULL,
		   disconnect_reason = NULL`,
		id, peer, at.UTC())
	if err != nil {
		return fmt.Errorf("%s - record connect failed: %w", repoLogPrefix, err)
	}
	return nil
}

// SetProtocolVersion stores the version agreed during hello.
func (r *SessionRepository) SetProtocolVersion(ctx context.Context, id, version string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE packet_sessions SET protocol_version = $2 WHERE id = $1`, id, version)
	if err != nil {
		return fmt.Errorf("%s - set protocol version failed: %w", repoLogPrefix, err)
	}
	return nil
}

// RecordDisconnect closes a session row. Unknown or already closed sessions are left untouched.
func (r *SessionRepository) RecordDisconnect(ctx context.Context, id, reason string, processed int64, at time.Time) error {
	slog.Debug(fmt.Sprintf("%s - RecordDisconnect id=%s reason=%s", repoLogPrefix, id, reason))

	tag, err := r.pool.Exec(ctx,
		`UPDATE packet_sessions
		 SET disconnected_at = $2, disconnect_reason = $3, packets_processed = $4
		 WHERE id = $1 AND disconnected_at IS NULL`,
		id, at.UTC(), reason, processed)
	if err != nil {
		return fmt.Errorf("%s - record disconnect failed: %w", repoLogPrefix, err)
	}
	if tag.RowsAffected() == 0 {
		slog.Warn(fmt.Sprintf("%s - no open session %s to close", repoLogPrefix, id))
	}
	return nil
}

// GetSession finds a session by ID. Returns nil when not found.
func (r *SessionRepository) GetSession(ctx context.Context, id string) (*Session, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, peer, protocol_version, connected_at, disconnected_at, disconnect_reason, packets_processed
		 FROM packet_sessions
		 WHERE id = $1`, id)

	var s Session
	err := row.Scan(&s.ID, &s.Peer, &s.ProtocolVersion, &s.ConnectedAt, &s.DisconnectedAt, &s.DisconnectReason, &s.PacketsProcessed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s - scan session failed: %w", repoLogPrefix, err)
	}
	return &s, nil
}

// CountOpen returns the number of sessions without a disconnect record.
func (r *SessionRepository) CountOpen(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM packet_sessions WHERE disconnected_at IS NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%s - count open sessions failed: %w", repoLogPrefix, err)
	}
	return n, nil
}

// CloseDangling marks every open session as broken. Used at startup after an unclean shutdown.
func (r *SessionRepository) CloseDangling(ctx context.Context, at time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE packet_sessions
		 SET disconnected_at = $1, disconnect_reason = 'broken'
		 WHERE disconnected_at IS NULL`, at.UTC())
	if err != nil {
		return 0, fmt.Errorf("%s - close dangling sessions failed: %w", repoLogPrefix, err)
	}
	if n := tag.RowsAffected(); n > 0 {
		slog.Info(fmt.Sprintf("%s - Closed %d dangling sessions", repoLogPrefix, n))
	}
	return tag.RowsAffected(), nil
}
