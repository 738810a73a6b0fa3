package client

import (
	"context"
	"errors"
	"testing"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/packet-router/pkg/commsutil"
	"github.com/morezero/packet-router/pkg/packet"
	"github.com/morezero/packet-router/pkg/router"
	"github.com/morezero/packet-router/pkg/session"
)

const clientTestPrefix = "client:client_test"

const testPrefix = "client.v1"

// startBackend runs an in-process NATS server and a session manager whose
// sessions greet on connect and answer "greet" and "version".
func startBackend(t *testing.T) (*comms.Conn, chan router.DisconnectReason) {
	t.Helper()

	ns, err := commsserver.NewServer(&commsserver.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	if err != nil {
		t.Fatalf("%s - failed to create server: %v", clientTestPrefix, err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatalf("%s - server failed to start", clientTestPrefix)
	}
	nc, err := comms.Connect(ns.ClientURL())
	if err != nil {
		ns.Shutdown()
		t.Fatalf("%s - failed to connect: %v", clientTestPrefix, err)
	}

	reasons := make(chan router.DisconnectReason, 4)
	factory := func(s *session.Session) (*router.Router, error) {
		r := router.New()
		return r, r.AddHandler(router.HandlerFunc(func() []router.Declaration {
			return []router.Declaration{
				router.OnConnect("welcome", func(_ context.Context, c router.Connection) error {
					return c.Send(packet.New("welcome").Set("peer", s.Peer()))
				}),
				router.OnDisconnect("track", func(_ context.Context, reason router.DisconnectReason) error {
					reasons <- reason
					return nil
				}),
				router.Route(router.Method{
					Name:   "greet",
					Params: []router.Param{router.Opt("name", router.String, "world")},
					Invoke: router.Invoke1(func(c *router.Call, name string) error {
						c.Reply("hello " + name)
						return nil
					}),
				}),
				router.Route(router.Method{
					Name:   "hello",
					Params: []router.Param{router.Arg("version", router.String)},
					Invoke: router.Invoke1(func(_ *router.Call, v string) error {
						if v != "1.0.0" {
							return &router.RouteError{Code: "UNSUPPORTED_VERSION", Method: "hello", Message: v}
						}
						return nil
					}),
				}),
			}
		}))
	}

	m := session.NewManager(nc, factory, session.Options{Subjects: commsutil.NewSubjects(testPrefix)})
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("%s - manager start: %v", clientTestPrefix, err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Close(ctx)
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return nc, reasons
}

func TestDial_SendAndClose(t *testing.T) {
	nc, reasons := startBackend(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, nc, testPrefix, "ivy", "1.0.0")
	if err != nil {
		t.Fatalf("%s - Dial failed: %v", clientTestPrefix, err)
	}
	if c.Session() == "" {
		t.Errorf("%s - expected session id", clientTestPrefix)
	}

	select {
	case p := <-c.Pushes():
		if p.Action() != "welcome" {
			t.Errorf("%s - push action = %q, want welcome", clientTestPrefix, p.Action())
		}
		if v, _ := p.Get("peer"); v != "ivy" {
			t.Errorf("%s - push peer = %v, want ivy", clientTestPrefix, v)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("%s - no welcome push", clientTestPrefix)
	}

	res, err := c.Send(ctx, packet.New("greet", "gophers"))
	if err != nil {
		t.Fatalf("%s - Send failed: %v", clientTestPrefix, err)
	}
	if len(res.Replies) != 1 || res.Replies[0] != "hello gophers" {
		t.Errorf("%s - replies = %v", clientTestPrefix, res.Replies)
	}

	res, err = c.Send(ctx, packet.New("greet"))
	if err != nil || res.Replies[0] != "hello world" {
		t.Errorf("%s - default greet = %v, %v", clientTestPrefix, res, err)
	}

	if err := c.Close(ctx); err != nil {
		t.Fatalf("%s - Close failed: %v", clientTestPrefix, err)
	}
	select {
	case r := <-reasons:
		if r != router.Graceful {
			t.Errorf("%s - reason = %v, want graceful", clientTestPrefix, r)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("%s - no disconnect callback", clientTestPrefix)
	}

	if _, err := c.Send(ctx, packet.New("greet")); !errors.Is(err, ErrClosed) {
		t.Errorf("%s - Send after Close = %v, want ErrClosed", clientTestPrefix, err)
	}
	if _, open := <-c.Pushes(); open {
		t.Errorf("%s - pushes channel should be closed", clientTestPrefix)
	}
	if err := c.Close(ctx); err != nil {
		t.Errorf("%s - second Close = %v, want nil", clientTestPrefix, err)
	}
}

func TestDial_RejectedVersion(t *testing.T) {
	nc, reasons := startBackend(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := Dial(ctx, nc, testPrefix, "jay", "9.9.9")
	var remote *Error
	if !errors.As(err, &remote) || remote.Code != "UNSUPPORTED_VERSION" {
		t.Fatalf("%s - expected UNSUPPORTED_VERSION, got %v", clientTestPrefix, err)
	}

	select {
	case r := <-reasons:
		if r != router.Graceful {
			t.Errorf("%s - reason = %v, want graceful", clientTestPrefix, r)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("%s - rejected session was not closed", clientTestPrefix)
	}
}

func TestSend_RemoteError(t *testing.T) {
	nc, _ := startBackend(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, nc, testPrefix, "kim", "")
	if err != nil {
		t.Fatalf("%s - Dial failed: %v", clientTestPrefix, err)
	}
	defer c.Close(ctx)

	_, err = c.Send(ctx, packet.New("hello"))
	var remote *Error
	if !errors.As(err, &remote) || remote.Code != router.CodeMissingParameter {
		t.Errorf("%s - expected MISSING_PARAMETER, got %v", clientTestPrefix, err)
	}
}

func TestDial_NoServer(t *testing.T) {
	nc, _ := startBackend(t)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if _, err := Dial(ctx, nc, "nobody.home", "x", ""); err == nil {
		t.Errorf("%s - expected error dialing a prefix nobody serves", clientTestPrefix)
	}
}

func TestDial_FailedConnectWithoutDetail(t *testing.T) {
	nc, _ := startBackend(t)
	subjects := commsutil.NewSubjects("bare.v1")
	sub, err := nc.Subscribe(subjects.Connect(), func(msg *comms.Msg) {
		_ = msg.Respond([]byte(`{"ok":false}`))
	})
	if err != nil {
		t.Fatalf("%s - subscribe: %v", clientTestPrefix, err)
	}
	t.Cleanup(func() { _ = sub.Unsubscribe() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, nc, "bare.v1", "x", "")
	if err == nil {
		t.Fatalf("%s - expected error, got client %v", clientTestPrefix, c.Session())
	}
	var remote *Error
	if errors.As(err, &remote) {
		t.Errorf("%s - expected local error for a detail-less failure, got %v", clientTestPrefix, err)
	}
}
