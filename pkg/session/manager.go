package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/packet-router/pkg/commsutil"
	"github.com/morezero/packet-router/pkg/dispatcher"
	"github.com/morezero/packet-router/pkg/router"
)

const managerLogPrefix = "session:manager"

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("session manager closed")

// RouterFactory builds the Router for a new session. Handlers may keep s to
// reach the session from disconnect callbacks.
type RouterFactory func(s *Session) (*router.Router, error)

// Options tune a Manager.
type Options struct {
	Subjects       commsutil.Subjects
	RequestTimeout time.Duration
	// IdleTimeout of zero disables idle disconnects.
	IdleTimeout time.Duration
	QueueSize   int
}

func (o Options) withDefaults() Options {
	if o.Subjects.Prefix == "" {
		o.Subjects = commsutil.NewSubjects("")
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 5 * time.Second
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	return o
}

// Manager accepts sessions over NATS and routes their packets.
type Manager struct {
	nc      *comms.Conn
	factory RouterFactory
	opts    Options

	mu       sync.RWMutex
	sessions map[string]*Session
	byPeer   map[string]*Session
	subs     []*comms.Subscription
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a Manager. Call Start to begin accepting sessions.
func NewManager(nc *comms.Conn, factory RouterFactory, opts Options) *Manager {
	return &Manager{
		nc:       nc,
		factory:  factory,
		opts:     opts.withDefaults(),
		sessions: make(map[string]*Session),
		byPeer:   make(map[string]*Session),
	}
}

// Subjects returns the subjects the manager listens on.
func (m *Manager) Subjects() commsutil.Subjects { return m.opts.Subjects }

// Start subscribes to the connect, packet and disconnect subjects.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.ctx, m.cancel = context.WithCancel(ctx)

	s := m.opts.Subjects
	handlers := []struct {
		subject string
		handler comms.MsgHandler
	}{
		{s.Connect(), m.handleConnect},
		{s.SessionWildcard(), m.handlePacket},
		{s.DisconnectWildcard(), m.handleDisconnect},
	}
	for _, h := range handlers {
		sub, err := m.nc.Subscribe(h.subject, h.handler)
		if err != nil {
			m.unsubscribeLocked()
			return fmt.Errorf("%s - failed to subscribe to %s: %w", managerLogPrefix, h.subject, err)
		}
		m.subs = append(m.subs, sub)
	}
	if err := m.nc.Flush(); err != nil {
		m.unsubscribeLocked()
		return fmt.Errorf("%s - flush after subscribe: %w", managerLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Accepting sessions on %s", managerLogPrefix, s.Connect()))
	return nil
}

// Count returns the number of open sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Session looks up an open session.
func (m *Manager) Session(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Disconnect closes a session and waits for its disconnect callbacks.
func (m *Manager) Disconnect(ctx context.Context, id string, reason router.DisconnectReason) error {
	s, ok := m.Session(id)
	if !ok {
		return fmt.Errorf("%s - session %s not found", managerLogPrefix, id)
	}
	return s.close(ctx, reason)
}

// Close stops accepting sessions and disconnects every open session gracefully.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.unsubscribeLocked()
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.Unlock()

	slog.Info(fmt.Sprintf("%s - Closing %d sessions", managerLogPrefix, len(open)))
	var errs []error
	for _, s := range open {
		if err := s.close(ctx, router.Graceful); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", s.id, err))
		}
	}

	// Anything still running past ctx ends as broken.
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	return errors.Join(errs...)
}

func (m *Manager) unsubscribeLocked() {
	for _, sub := range m.subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Warn(fmt.Sprintf("%s - unsubscribe %s: %v", managerLogPrefix, sub.Subject, err))
		}
	}
	m.subs = nil
}

func (m *Manager) handleConnect(msg *comms.Msg) {
	var req ConnectRequest
	if err := commsutil.DecodePayload(msg.Data, &req); err != nil {
		respond(msg, connectError(dispatcher.CodeInvalidRequest, "invalid connect request: "+err.Error()))
		return
	}
	if req.ClientID == "" {
		respond(msg, connectError(dispatcher.CodeInvalidRequest, "clientId is required"))
		return
	}

	// Answered from the session goroutine once connect callbacks finish.
	_, err := m.open(req, func(s *Session) {
		respond(msg, &ConnectResponse{Session: s.id, Ok: true})
	})
	if err != nil {
		slog.Error(fmt.Sprintf("%s - open session for %q: %v", managerLogPrefix, req.Peer, err))
		respond(msg, connectError(dispatcher.CodeInternal, err.Error()))
	}
}

func (m *Manager) open(req ConnectRequest, onReady func(*Session)) (*Session, error) {
	s := newSession(m.nc, m.opts.Subjects, m.opts, req.Peer, req.ClientID)
	r, err := m.factory(s)
	if err != nil {
		return nil, fmt.Errorf("%s - router factory: %w", managerLogPrefix, err)
	}
	s.router = r
	s.dispatcher = dispatcher.NewDispatcher(r)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	var replaced *Session
	if req.Peer != "" {
		replaced = m.byPeer[req.Peer]
		m.byPeer[req.Peer] = s
	}
	m.sessions[s.id] = s
	m.wg.Add(1)
	ctx := m.ctx
	m.mu.Unlock()

	if replaced != nil {
		slog.Info(fmt.Sprintf("%s - Peer %s reconnected, dropping session %s", managerLogPrefix, req.Peer, replaced.id))
		go func() {
			cctx, cancel := context.WithTimeout(ctx, m.opts.RequestTimeout)
			defer cancel()
			_ = replaced.close(cctx, router.Broken)
		}()
	}

	go s.run(ctx, onReady, m.remove)
	slog.Info(fmt.Sprintf("%s - Session %s opened for peer %q", managerLogPrefix, s.id, s.peer))
	return s, nil
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.id)
	if m.byPeer[s.peer] == s {
		delete(m.byPeer, s.peer)
	}
	m.mu.Unlock()
	m.wg.Done()
}

func (m *Manager) handlePacket(msg *comms.Msg) {
	id, ok := m.opts.Subjects.SessionID(msg.Subject)
	if !ok {
		return
	}

	var req dispatcher.Request
	if err := commsutil.DecodePayload(msg.Data, &req); err != nil {
		respond(msg, dispatcher.ErrorResponse("", dispatcher.CodeInvalidRequest, "invalid request: "+err.Error(), false))
		return
	}
	req.Session = id

	s, found := m.Session(id)
	if !found {
		respond(msg, dispatcher.ErrorResponse(req.ID, dispatcher.CodeSessionNotFound, "session "+id+" not found", false))
		return
	}
	accepted, ended := s.enqueue(job{req: &req, msg: msg})
	switch {
	case ended:
		respond(msg, dispatcher.ErrorResponse(req.ID, dispatcher.CodeSessionNotFound, "session "+id+" closed", false))
	case !accepted:
		respond(msg, dispatcher.ErrorResponse(req.ID, dispatcher.CodeSessionBusy, "session inbox full", true))
	}
}

func (m *Manager) handleDisconnect(msg *comms.Msg) {
	id, ok := m.opts.Subjects.SessionID(msg.Subject)
	if !ok {
		return
	}
	s, found := m.Session(id)
	if !found {
		respond(msg, dispatcher.ErrorResponse(id, dispatcher.CodeSessionNotFound, "session "+id+" not found", false))
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.opts.RequestTimeout)
		defer cancel()
		// Callback failures are logged by the session; the session is closed either way.
		_ = s.close(ctx, router.Graceful)
		if ctx.Err() != nil {
			respond(msg, dispatcher.ErrorToResponse(id, ctx.Err()))
			return
		}
		respond(msg, &dispatcher.Response{ID: id, Ok: true})
	}()
}

func connectError(code, message string) *ConnectResponse {
	return &ConnectResponse{Ok: false, Error: &dispatcher.ErrorDetail{Code: code, Message: message}}
}
