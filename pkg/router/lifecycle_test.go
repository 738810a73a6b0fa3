package router

import (
	"context"
	"errors"
	"testing"

	"github.com/morezero/packet-router/pkg/packet"
)

const lifecycleTestPrefix = "router:lifecycle_test"

type fakeConn struct {
	id   string
	peer string
	sent []*packet.Packet
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Peer() string { return c.peer }

func (c *fakeConn) Send(p *packet.Packet) error {
	c.sent = append(c.sent, p)
	return nil
}

func TestOnConnect_RunsAllInOrder(t *testing.T) {
	var log []string
	failing := errors.New("journal down")
	r := New()
	err := r.AddHandlers(
		HandlerFunc(func() []Declaration {
			return []Declaration{
				OnConnect("greet", func(_ context.Context, c Connection) error {
					log = append(log, "greet:"+c.ID()+"@"+c.Peer())
					return c.Send(packet.New("welcome"))
				}),
				OnConnect("journal", func(context.Context, Connection) error {
					log = append(log, "journal")
					return failing
				}),
			}
		}),
		HandlerFunc(func() []Declaration {
			return []Declaration{OnConnect("audit", func(context.Context, Connection) error {
				log = append(log, "audit")
				return nil
			})}
		}),
	)
	if err != nil {
		t.Fatalf("%s - AddHandlers failed: %v", lifecycleTestPrefix, err)
	}

	conn := &fakeConn{id: "s1", peer: "ana"}
	err = r.OnConnect(context.Background(), conn)
	if !errors.Is(err, failing) {
		t.Errorf("%s - expected joined callback error, got %v", lifecycleTestPrefix, err)
	}
	if !equalStrings(log, []string{"greet:s1@ana", "journal", "audit"}) {
		t.Errorf("%s - callbacks ran %v", lifecycleTestPrefix, log)
	}
	if len(conn.sent) != 1 || conn.sent[0].Action() != "welcome" {
		t.Errorf("%s - expected welcome push", lifecycleTestPrefix)
	}
}

func TestOnDisconnect_PassesReason(t *testing.T) {
	var reasons []DisconnectReason
	r := New()
	err := r.AddHandler(HandlerFunc(func() []Declaration {
		return []Declaration{
			OnDisconnect("a", func(_ context.Context, reason DisconnectReason) error {
				reasons = append(reasons, reason)
				return nil
			}),
			OnDisconnect("b", func(_ context.Context, reason DisconnectReason) error {
				reasons = append(reasons, reason)
				return nil
			}),
		}
	}))
	if err != nil {
		t.Fatalf("%s - AddHandler failed: %v", lifecycleTestPrefix, err)
	}

	if err := r.OnDisconnect(context.Background(), Broken); err != nil {
		t.Fatalf("%s - OnDisconnect failed: %v", lifecycleTestPrefix, err)
	}
	if len(reasons) != 2 || reasons[0] != Broken || reasons[1] != Broken {
		t.Errorf("%s - reasons = %v, want [broken broken]", lifecycleTestPrefix, reasons)
	}
}

func TestLifecycle_NotRouted(t *testing.T) {
	var connected bool
	r := New()
	err := r.AddHandler(HandlerFunc(func() []Declaration {
		return []Declaration{OnConnect("connect", func(context.Context, Connection) error {
			connected = true
			return nil
		})}
	}))
	if err != nil {
		t.Fatalf("%s - AddHandler failed: %v", lifecycleTestPrefix, err)
	}

	res, err := r.Process(context.Background(), packet.New("connect"))
	if err != nil {
		t.Fatalf("%s - Process failed: %v", lifecycleTestPrefix, err)
	}
	if res.Matched != 0 || connected {
		t.Errorf("%s - lifecycle callbacks must not be part of the route table", lifecycleTestPrefix)
	}
	if len(r.Routes()) != 0 {
		t.Errorf("%s - Routes should be empty", lifecycleTestPrefix)
	}
}

func TestDisconnectReason_String(t *testing.T) {
	if Graceful.String() != "graceful" || Broken.String() != "broken" {
		t.Errorf("%s - unexpected reason strings %q %q", lifecycleTestPrefix, Graceful, Broken)
	}
	if DisconnectReason(9).String() != "unknown" {
		t.Errorf("%s - expected unknown for out of range reason", lifecycleTestPrefix)
	}
}
