package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/morezero/packet-router/pkg/packet"
	"github.com/morezero/packet-router/pkg/router"
	"github.com/morezero/packet-router/pkg/semver"
)

const systemLogPrefix = "server:system"

// CodeUnsupportedVersion is returned by hello when the client version is rejected.
const CodeUnsupportedVersion = "UNSUPPORTED_VERSION"

// Route indices of the built-in handler. Application handlers placed
// between them run after the system routes and before tracing.
const (
	indexQuit   = -100
	indexSystem = 0
	indexTrace  = 1000
)

// SessionInfo is what the system routes report about their session.
// *session.Session implements it.
type SessionInfo interface {
	ID() string
	Peer() string
	Processed() int64
	Routes() []router.RouteEntry
}

// SystemHandler declares the built-in routes every session gets.
type SystemHandler struct {
	sess       SessionInfo
	negotiator *semver.Negotiator
	// onHello is called with the agreed version after a successful hello.
	onHello func(ctx context.Context, version string) error
}

// NewSystemHandler creates a SystemHandler for sess.
func NewSystemHandler(sess SessionInfo, negotiator *semver.Negotiator, onHello func(context.Context, string) error) *SystemHandler {
	return &SystemHandler{sess: sess, negotiator: negotiator, onHello: onHello}
}

// Declare implements router.Handler.
func (h *SystemHandler) Declare() []router.Declaration {
	return []router.Declaration{
		router.OnConnect("welcome", h.welcome),
		router.Route(router.Method{
			Name:   "hello",
			Params: []router.Param{router.Arg("version", router.String)},
			Invoke: router.Invoke1(h.hello),
		}, router.WithIndex(indexSystem)),
		router.Route(router.Method{
			Name:   "ping",
			Params: []router.Param{router.Opt("nonce", router.String, "")},
			Invoke: router.Invoke1(h.ping),
		}, router.WithIndex(indexSystem)),
		router.Route(router.Method{
			Name:   "echo",
			Params: []router.Param{router.RequestArg("packet")},
			Invoke: router.Invoke1(h.echo),
		}, router.WithIndex(indexSystem)),
		router.Route(router.Method{
			Name:   "quit",
			Invoke: router.Invoke0(h.quit),
		}, router.WithIndex(indexQuit)),
		router.Route(router.Method{
			Name:   "debug",
			Params: []router.Param{router.RequestArg("packet")},
			Invoke: router.Invoke1(h.debug),
		}, router.WithRule(`^debug\.`), router.WithIndex(indexSystem)),
		router.Route(router.Method{
			Name:   "trace",
			Params: []router.Param{router.RequestArg("packet")},
			Invoke: router.Invoke1(h.trace),
		}, router.WithRule(`.`), router.WithIndex(indexTrace)),
	}
}

func (h *SystemHandler) welcome(_ context.Context, conn router.Connection) error {
	return conn.Send(packet.New("welcome").
		Set("session", conn.ID()).
		Set("server", h.negotiator.Server.String()))
}

func (h *SystemHandler) hello(c *router.Call, version string) error {
	v, err := h.negotiator.Check(version)
	if err != nil {
		return &router.RouteError{
			Code:      CodeUnsupportedVersion,
			Message:   fmt.Sprintf("client version %q not accepted, server speaks %s", version, h.negotiator.Constraint),
			Method:    "hello",
			Parameter: "version",
			Err:       err,
		}
	}
	agreed := h.negotiator.Agreed(v).String()
	if h.onHello != nil {
		if err := h.onHello(c.Context(), agreed); err != nil {
			slog.Warn(fmt.Sprintf("%s - hello hook for %s: %v", systemLogPrefix, h.sess.ID(), err))
		}
	}
	c.Reply(map[string]interface{}{
		"version": agreed,
		"server":  h.negotiator.Server.String(),
	})
	return nil
}

func (h *SystemHandler) ping(c *router.Call, nonce string) error {
	reply := map[string]interface{}{
		"pong": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if nonce != "" {
		reply["nonce"] = nonce
	}
	c.Reply(reply)
	return nil
}

func (h *SystemHandler) echo(c *router.Call, p *packet.Packet) error {
	c.Reply(packet.FromPacket(p))
	return nil
}

// quit answers and stops every later route for this packet.
func (h *SystemHandler) quit(c *router.Call) error {
	c.Reply("bye")
	c.Terminate()
	return nil
}

func (h *SystemHandler) debug(c *router.Call, p *packet.Packet) error {
	c.Reply(map[string]interface{}{
		"session":   h.sess.ID(),
		"peer":      h.sess.Peer(),
		"processed": h.sess.Processed(),
		"action":    p.Action(),
		"fields":    p.Len(),
		"routes":    len(h.sess.Routes()),
	})
	return nil
}

func (h *SystemHandler) trace(_ *router.Call, p *packet.Packet) error {
	slog.Debug(fmt.Sprintf("%s - session=%s action=%s", systemLogPrefix, h.sess.ID(), p.Action()))
	return nil
}
