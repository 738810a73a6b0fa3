package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/morezero/packet-router/pkg/events"
	"github.com/morezero/packet-router/pkg/router"
)

const journalLogPrefix = "server:journal"

// SessionStore is the persistence the journal writes to. *db.SessionRepository implements it.
type SessionStore interface {
	RecordConnect(ctx context.Context, id, peer string, at time.Time) error
	RecordDisconnect(ctx context.Context, id, reason string, processed int64, at time.Time) error
	SetProtocolVersion(ctx context.Context, id, version string) error
}

// JournalHandler records session lifecycle and publishes session events.
// A nil store skips persistence.
type JournalHandler struct {
	sess      SessionInfo
	store     SessionStore
	publisher events.EventPublisher
	now       func() time.Time
}

// NewJournalHandler creates a JournalHandler for sess.
func NewJournalHandler(sess SessionInfo, store SessionStore, publisher events.EventPublisher) *JournalHandler {
	if publisher == nil {
		publisher = &events.NoOpPublisher{}
	}
	return &JournalHandler{sess: sess, store: store, publisher: publisher, now: time.Now}
}

// Declare implements router.Handler.
func (j *JournalHandler) Declare() []router.Declaration {
	return []router.Declaration{
		router.OnConnect("journal", j.connected),
		router.OnDisconnect("journal", j.disconnected),
	}
}

// RecordVersion stores the protocol version agreed by hello.
func (j *JournalHandler) RecordVersion(ctx context.Context, version string) error {
	if j.store == nil {
		return nil
	}
	return j.store.SetProtocolVersion(ctx, j.sess.ID(), version)
}

func (j *JournalHandler) connected(ctx context.Context, conn router.Connection) error {
	at := j.now().UTC()
	var errs []error
	if j.store != nil {
		if err := j.store.RecordConnect(ctx, conn.ID(), conn.Peer(), at); err != nil {
			errs = append(errs, err)
		}
	}
	if err := j.publish(ctx, events.KindConnected, "", at); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (j *JournalHandler) disconnected(ctx context.Context, reason router.DisconnectReason) error {
	at := j.now().UTC()
	var errs []error
	if j.store != nil {
		if err := j.store.RecordDisconnect(ctx, j.sess.ID(), reason.String(), j.sess.Processed(), at); err != nil {
			errs = append(errs, err)
		}
	}
	if err := j.publish(ctx, events.KindDisconnected, reason.String(), at); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (j *JournalHandler) publish(ctx context.Context, kind, reason string, at time.Time) error {
	err := j.publisher.PublishSession(ctx, &events.SessionEvent{
		SessionID: j.sess.ID(),
		Peer:      j.sess.Peer(),
		Kind:      kind,
		Reason:    reason,
		Timestamp: at.Format(time.RFC3339),
	})
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - publish %s event for %s: %v", journalLogPrefix, kind, j.sess.ID(), err))
	}
	return err
}
