package session

import (
	"context"
	"testing"
	"time"

	"github.com/morezero/packet-router/pkg/commsutil"
	"github.com/morezero/packet-router/pkg/dispatcher"
	"github.com/morezero/packet-router/pkg/packet"
	"github.com/morezero/packet-router/pkg/router"
)

const sessionTestPrefix = "session:session_test"

func newBareSession(queue int) *Session {
	opts := Options{RequestTimeout: time.Second, QueueSize: queue}
	s := newSession(nil, commsutil.NewSubjects("test.v1"), opts, "peer", "client")
	s.router = router.New()
	s.dispatcher = dispatcher.NewDispatcher(s.router)
	return s
}

func TestEnqueue_NothingStrandedAfterExit(t *testing.T) {
	for round := 0; round < 200; round++ {
		s := newBareSession(8)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		exited := make(chan struct{})
		go s.run(ctx, nil, func(*Session) { close(exited) })

		accepted := 0
		for {
			ok, ended := s.enqueue(job{req: &dispatcher.Request{ID: "r", Packet: packet.Envelope{Action: "noop"}}})
			if ended {
				break
			}
			if ok {
				accepted++
			}
		}

		select {
		case <-exited:
		case <-time.After(5 * time.Second):
			t.Fatalf("%s - session did not exit", sessionTestPrefix)
		}
		if n := len(s.inbox); n != 0 {
			t.Fatalf("%s - round %d: %d of %d accepted jobs left in inbox", sessionTestPrefix, round, n, accepted)
		}
		if ok, ended := s.enqueue(job{req: &dispatcher.Request{ID: "late"}}); ok || !ended {
			t.Fatalf("%s - enqueue after exit = (%v, %v), want (false, true)", sessionTestPrefix, ok, ended)
		}
	}
}

func TestRun_OnReadyAfterConnectCallbacks(t *testing.T) {
	s := newBareSession(4)
	var connected bool
	err := s.router.AddHandler(router.HandlerFunc(func() []router.Declaration {
		return []router.Declaration{router.OnConnect("mark", func(context.Context, router.Connection) error {
			connected = true
			return nil
		})}
	}))
	if err != nil {
		t.Fatalf("%s - AddHandler failed: %v", sessionTestPrefix, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan bool, 1)
	exited := make(chan struct{})
	go s.run(ctx, func(*Session) { ready <- connected }, func(*Session) { close(exited) })

	select {
	case saw := <-ready:
		if !saw {
			t.Errorf("%s - onReady ran before connect callbacks", sessionTestPrefix)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("%s - onReady not called", sessionTestPrefix)
	}
	cancel()
	<-exited
	if s.Reason() != router.Broken {
		t.Errorf("%s - Reason = %s, want broken", sessionTestPrefix, s.Reason())
	}
}
