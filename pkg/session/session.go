// Package session runs one Router per connected peer. Every session owns a
// bounded inbox drained by a single goroutine, so packets of one session are
// processed strictly in arrival order while sessions run in parallel.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/packet-router/pkg/commsutil"
	"github.com/morezero/packet-router/pkg/dispatcher"
	"github.com/morezero/packet-router/pkg/packet"
	"github.com/morezero/packet-router/pkg/router"
)

const sessionLogPrefix = "session:session"

// job is one unit of work for a session goroutine.
type job struct {
	req *dispatcher.Request
	msg *comms.Msg
	// set for close jobs
	closing bool
	reason  router.DisconnectReason
	done    chan error
}

// Session is a connected peer. It implements router.Connection.
type Session struct {
	id          string
	peer        string
	clientID    string
	connectedAt time.Time

	nc       *comms.Conn
	subjects commsutil.Subjects
	opts     Options

	router     *router.Router
	dispatcher *dispatcher.Dispatcher

	// mu orders inbox sends against shutdown; closed is set before drain.
	mu        sync.Mutex
	closed    bool
	inbox     chan job
	done      chan struct{}
	connErr   error
	processed atomic.Int64
	reason    atomic.Int32
}

func newSession(nc *comms.Conn, subjects commsutil.Subjects, opts Options, peer, clientID string) *Session {
	return &Session{
		id:          uuid.NewString(),
		peer:        peer,
		clientID:    clientID,
		connectedAt: time.Now().UTC(),
		nc:          nc,
		subjects:    subjects,
		opts:        opts,
		inbox:       make(chan job, opts.QueueSize),
		done:        make(chan struct{}),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Peer returns the peer name given at connect.
func (s *Session) Peer() string { return s.peer }

// ConnectedAt returns when the session was opened.
func (s *Session) ConnectedAt() time.Time { return s.connectedAt }

// Processed returns the number of packets the session has dispatched.
func (s *Session) Processed() int64 { return s.processed.Load() }

// Routes returns a snapshot of the session's route table.
func (s *Session) Routes() []router.RouteEntry { return s.router.Routes() }

// Done is closed once the session has run its disconnect callbacks.
func (s *Session) Done() <-chan struct{} { return s.done }

// Reason returns how the session ended. Only meaningful after Done is closed.
func (s *Session) Reason() router.DisconnectReason {
	return router.DisconnectReason(s.reason.Load())
}

// Send pushes p to the client subject of the session.
func (s *Session) Send(p *packet.Packet) error {
	data, err := commsutil.EncodePayload(&Push{
		ID:      uuid.NewString(),
		Session: s.id,
		Packet:  *packet.FromPacket(p),
	})
	if err != nil {
		return fmt.Errorf("%s - encode push: %w", sessionLogPrefix, err)
	}
	if err := s.nc.Publish(s.subjects.Client(s.clientID), data); err != nil {
		return fmt.Errorf("%s - publish push for session %s: %w", sessionLogPrefix, s.id, err)
	}
	return nil
}

// enqueue hands a packet to the session without blocking. It reports false
// when the inbox is full or the session has ended. An accepted packet is
// always either processed or drained.
func (s *Session) enqueue(j job) (accepted bool, ended bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, true
	}
	select {
	case s.inbox <- j:
		return true, false
	default:
		return false, false
	}
}

// close queues a disconnect behind any pending packets and waits for it.
func (s *Session) close(ctx context.Context, reason router.DisconnectReason) error {
	j := job{closing: true, reason: reason, done: make(chan error, 1)}
	select {
	case s.inbox <- j:
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-j.done:
		return err
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the session goroutine. onReady, when set, is called once the
// connect callbacks have finished.
func (s *Session) run(ctx context.Context, onReady, onExit func(*Session)) {
	defer func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
		s.drain()
		onExit(s)
	}()

	cctx, cancel := s.callbackContext(ctx)
	s.connErr = s.router.OnConnect(cctx, s)
	cancel()
	if s.connErr != nil {
		slog.Warn(fmt.Sprintf("%s - connect callbacks for %s: %v", sessionLogPrefix, s.id, s.connErr))
	}
	if onReady != nil {
		onReady(s)
	}

	var idle <-chan time.Time
	var timer *time.Timer
	if s.opts.IdleTimeout > 0 {
		timer = time.NewTimer(s.opts.IdleTimeout)
		defer timer.Stop()
		idle = timer.C
	}

	for {
		select {
		case j := <-s.inbox:
			if j.closing {
				j.done <- s.disconnect(ctx, j.reason)
				return
			}
			s.handle(ctx, j)
			if timer != nil {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(s.opts.IdleTimeout)
			}
		case <-idle:
			slog.Info(fmt.Sprintf("%s - session %s idle for %s", sessionLogPrefix, s.id, s.opts.IdleTimeout))
			_ = s.disconnect(ctx, router.Broken)
			return
		case <-ctx.Done():
			_ = s.disconnect(context.WithoutCancel(ctx), router.Broken)
			return
		}
	}
}

func (s *Session) handle(ctx context.Context, j job) {
	rctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	resp := s.dispatcher.Dispatch(rctx, j.req)
	s.processed.Add(1)
	respond(j.msg, resp)
}

func (s *Session) disconnect(ctx context.Context, reason router.DisconnectReason) error {
	s.reason.Store(int32(reason))
	cctx, cancel := s.callbackContext(ctx)
	defer cancel()

	err := s.router.OnDisconnect(cctx, reason)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - disconnect callbacks for %s: %v", sessionLogPrefix, s.id, err))
	}
	slog.Info(fmt.Sprintf("%s - Session %s (%s) closed: %s after %d packets", sessionLogPrefix, s.id, s.peer, reason, s.Processed()))
	return err
}

// drain answers packets still queued after the session ended.
func (s *Session) drain() {
	for {
		select {
		case j := <-s.inbox:
			if j.closing {
				j.done <- nil
				continue
			}
			respond(j.msg, dispatcher.ErrorResponse(j.req.ID, dispatcher.CodeSessionNotFound, "session closed", false))
		default:
			return
		}
	}
}

func (s *Session) callbackContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.RequestTimeout)
}

func respond(msg *comms.Msg, resp interface{}) {
	if err := commsutil.Reply(msg, resp); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to respond: %v", sessionLogPrefix, err))
	}
}
