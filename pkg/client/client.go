// Package client connects to a packet server over NATS, sends packets on a
// session and receives server pushes.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/packet-router/pkg/commsutil"
	"github.com/morezero/packet-router/pkg/dispatcher"
	"github.com/morezero/packet-router/pkg/packet"
	"github.com/morezero/packet-router/pkg/session"
)

const logPrefix = "client:client"

// PushBuffer is the number of undelivered pushes kept before new ones are dropped.
const PushBuffer = 64

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("client closed")

// Error is a failed response from the server.
type Error struct {
	dispatcher.ErrorDetail
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// response mirrors dispatcher.Response with a typed result.
type response struct {
	ID     string                  `json:"id"`
	Ok     bool                    `json:"ok"`
	Result *dispatcher.Result      `json:"result,omitempty"`
	Error  *dispatcher.ErrorDetail `json:"error,omitempty"`
}

// Client is one session on a packet server.
type Client struct {
	nc       *comms.Conn
	subjects commsutil.Subjects
	peer     string
	session  string

	sub     *comms.Subscription
	pushes  chan *packet.Packet
	pushOut <-chan *packet.Packet

	mu     sync.Mutex
	closed bool
}

// Dial opens a session for peer. When version is non-empty a hello packet
// carrying it is sent before Dial returns, and a rejected version fails Dial.
func Dial(ctx context.Context, nc *comms.Conn, prefix, peer, version string) (*Client, error) {
	c := &Client{
		nc:       nc,
		subjects: commsutil.NewSubjects(prefix),
		peer:     peer,
		pushes:   make(chan *packet.Packet, PushBuffer),
	}
	c.pushOut = c.pushes

	clientID := uuid.NewString()
	sub, err := nc.Subscribe(c.subjects.Client(clientID), c.handlePush)
	if err != nil {
		return nil, fmt.Errorf("%s - subscribe to pushes: %w", logPrefix, err)
	}
	c.sub = sub

	var resp session.ConnectResponse
	if err := c.request(ctx, c.subjects.Connect(), &session.ConnectRequest{Peer: peer, ClientID: clientID}, &resp); err != nil {
		c.shutdown()
		return nil, fmt.Errorf("%s - connect: %w", logPrefix, err)
	}
	if !resp.Ok {
		c.shutdown()
		if resp.Error == nil {
			return nil, fmt.Errorf("%s - connect: failed response without error", logPrefix)
		}
		return nil, &Error{ErrorDetail: *resp.Error}
	}
	c.session = resp.Session
	slog.Debug(fmt.Sprintf("%s - Connected as %q, session %s", logPrefix, peer, c.session))

	if version != "" {
		if _, err := c.Send(ctx, packet.New("hello").Set("version", version)); err != nil {
			_ = c.Close(ctx)
			return nil, err
		}
	}
	return c, nil
}

// Session returns the server assigned session id.
func (c *Client) Session() string { return c.session }

// Send delivers p and waits for the server's response.
func (c *Client) Send(ctx context.Context, p *packet.Packet) (*dispatcher.Result, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	req := &dispatcher.Request{
		ID:      uuid.NewString(),
		Session: c.session,
		Packet:  *packet.FromPacket(p),
	}
	var resp response
	if err := c.request(ctx, c.subjects.Session(c.session), req, &resp); err != nil {
		return nil, fmt.Errorf("%s - send %s: %w", logPrefix, p.Action(), err)
	}
	if !resp.Ok {
		if resp.Error == nil {
			return nil, fmt.Errorf("%s - send %s: failed response without error", logPrefix, p.Action())
		}
		return nil, &Error{ErrorDetail: *resp.Error}
	}
	if resp.Result == nil {
		return &dispatcher.Result{}, nil
	}
	return resp.Result, nil
}

// Pushes returns packets the server sent to this session. The channel is
// closed by Close.
func (c *Client) Pushes() <-chan *packet.Packet {
	return c.pushOut
}

// Close disconnects the session gracefully.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	var resp response
	err := c.request(ctx, c.subjects.Disconnect(c.session), struct{}{}, &resp)
	c.shutdown()
	if err != nil {
		return fmt.Errorf("%s - disconnect: %w", logPrefix, err)
	}
	if !resp.Ok && resp.Error != nil {
		return &Error{ErrorDetail: *resp.Error}
	}
	return nil
}

func (c *Client) shutdown() {
	if err := c.sub.Unsubscribe(); err != nil && !errors.Is(err, comms.ErrConnectionClosed) {
		slog.Warn(fmt.Sprintf("%s - unsubscribe pushes: %v", logPrefix, err))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.pushes != nil {
		close(c.pushes)
		c.pushes = nil
	}
}

func (c *Client) handlePush(msg *comms.Msg) {
	var push session.Push
	if err := commsutil.DecodePayload(msg.Data, &push); err != nil {
		slog.Warn(fmt.Sprintf("%s - dropping malformed push: %v", logPrefix, err))
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pushes == nil {
		return
	}
	select {
	case c.pushes <- push.Packet.Packet():
	default:
		slog.Warn(fmt.Sprintf("%s - push buffer full, dropping %s", logPrefix, push.Packet.Action))
	}
}

func (c *Client) request(ctx context.Context, subject string, body, out interface{}) error {
	data, err := commsutil.EncodePayload(body)
	if err != nil {
		return err
	}
	msg, err := c.nc.RequestWithContext(ctx, subject, data)
	if err != nil {
		return err
	}
	return commsutil.DecodePayload(msg.Data, out)
}
